// Package netdevice implements an [audio.Device] fed over the network. Remote
// engines connect with a WebSocket and stream rendered blocks as binary
// messages (see [Frame]); every decoded block is dispatched to the registered
// buffer listeners exactly as a local render tick would be.
//
// Each connection gets its own owner name ("net-<uuid>") so listeners can tell
// concurrent engines apart.
//
// Usage:
//
//	dev := netdevice.New(48000)
//	mux.Handle("GET /submix", dev)
//	provider := audio.StaticProvider{Device: dev}
package netdevice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/submixtap/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Device = (*Device)(nil)
	_ http.Handler = (*Device)(nil)
)

// defaultReadLimit allows one second of 8-channel 48 kHz audio per message.
const defaultReadLimit = HeaderSize + 4*8*48000

// Option configures a [Device].
type Option func(*Device)

// WithConnectionHook registers fn to be called with +1 when an engine
// connects and -1 when it disconnects.
func WithConnectionHook(fn func(delta int64)) Option {
	return func(d *Device) { d.onConn = fn }
}

// WithReadLimit sets the maximum accepted message size in bytes.
func WithReadLimit(n int64) Option {
	return func(d *Device) {
		if n > 0 {
			d.readLimit = n
		}
	}
}

// WithAcceptOptions overrides the WebSocket accept options, e.g. to allow
// cross-origin engines.
func WithAcceptOptions(o *websocket.AcceptOptions) Option {
	return func(d *Device) { d.acceptOpts = o }
}

// Device is a network-fed audio device. It implements [http.Handler] for the
// WebSocket ingest endpoint.
type Device struct {
	sampleRate int
	listeners  audio.Listeners

	onConn     func(delta int64)
	readLimit  int64
	acceptOpts *websocket.AcceptOptions

	conns  atomic.Int64
	blocks atomic.Uint64

	mu     sync.Mutex
	active map[string]*websocket.Conn
}

// New creates a [Device] that reports sampleRate as its nominal rate. Blocks
// arriving at other rates are still dispatched with their own rate.
func New(sampleRate int, opts ...Option) *Device {
	d := &Device{
		sampleRate: sampleRate,
		readLimit:  defaultReadLimit,
		active:     make(map[string]*websocket.Conn),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SampleRate implements [audio.Device].
func (d *Device) SampleRate() int { return d.sampleRate }

// RegisterBufferListener implements [audio.Device].
func (d *Device) RegisterBufferListener(l audio.BufferListener) { d.listeners.Add(l) }

// UnregisterBufferListener implements [audio.Device].
func (d *Device) UnregisterBufferListener(l audio.BufferListener) { d.listeners.Remove(l) }

// Connections returns the number of connected engines.
func (d *Device) Connections() int { return int(d.conns.Load()) }

// Blocks returns the total number of blocks dispatched.
func (d *Device) Blocks() uint64 { return d.blocks.Load() }

// ServeHTTP accepts a WebSocket and dispatches incoming frames until the peer
// disconnects or the request context ends.
func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, d.acceptOpts)
	if err != nil {
		slog.Warn("netdevice: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(d.readLimit)

	owner := "net-" + uuid.NewString()
	d.track(owner, conn)
	defer d.untrack(owner)

	slog.Info("netdevice: engine connected", "owner", owner, "remote", r.RemoteAddr)
	err = d.readLoop(r.Context(), owner, conn)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		slog.Info("netdevice: engine disconnected", "owner", owner)
	default:
		slog.Warn("netdevice: engine stream ended", "owner", owner, "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (d *Device) readLoop(ctx context.Context, owner string, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			slog.Debug("netdevice: ignoring text message", "owner", owner)
			continue
		}
		f, err := DecodeFrame(data)
		if err != nil {
			conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			return err
		}
		d.blocks.Add(1)
		d.listeners.Dispatch(owner, f.Samples, f.Channels, f.SampleRate, f.Clock)
	}
}

func (d *Device) track(owner string, conn *websocket.Conn) {
	d.mu.Lock()
	d.active[owner] = conn
	d.mu.Unlock()
	d.conns.Add(1)
	if d.onConn != nil {
		d.onConn(1)
	}
}

func (d *Device) untrack(owner string) {
	d.mu.Lock()
	delete(d.active, owner)
	d.mu.Unlock()
	d.conns.Add(-1)
	if d.onConn != nil {
		d.onConn(-1)
	}
}

// Close disconnects every engine with a going-away status. Handlers return
// once their read fails.
func (d *Device) Close() error {
	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.active))
	for _, c := range d.active {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "shutting down")
	}
	return nil
}

// ─── Sender ───────────────────────────────────────────────────────────────────

// Sender streams blocks to a [Device] endpoint. It is the engine side of the
// protocol and is safe for concurrent use.
type Sender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the ingest endpoint at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Sender, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn}, nil
}

// Send writes one block.
func (s *Sender) Send(ctx context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(ctx, websocket.MessageBinary, EncodeFrame(f))
}

// Close ends the stream with a normal closure.
func (s *Sender) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "done")
}
