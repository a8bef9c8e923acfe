package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/submixtap/internal/health"
	"github.com/MrWong99/submixtap/internal/observe"
	"github.com/MrWong99/submixtap/pkg/audio"
	"github.com/MrWong99/submixtap/pkg/reverse"
)

// maxRequestBody caps JSON request bodies on the control API.
const maxRequestBody = 1 << 16

// pathResolver is implemented by writers that can validate a recording name
// before the write starts, such as [wavfile.Writer].
type pathResolver interface {
	Path(name string) (string, error)
}

// StatusResponse is the body of GET /tap/status.
type StatusResponse struct {
	Initialized       bool         `json:"initialized"`
	Saving            bool         `json:"saving"`
	Session           *SessionInfo `json:"session,omitempty"`
	Target            audio.Format `json:"target"`
	AccumulatedFrames int          `json:"accumulated_frames"`
	LastRecording     string       `json:"last_recording,omitempty"`
}

type sessionRequest struct {
	Handle uint64 `json:"handle"`
}

type recordingStopRequest struct {
	Name string `json:"name"`
}

type recordingStopResponse struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// routes builds the control API mux.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tap/start", a.handleTapStart)
	mux.HandleFunc("POST /tap/stop", a.handleTapStop)
	mux.HandleFunc("GET /tap/status", a.handleTapStatus)
	mux.HandleFunc("PUT /tap/session", a.handleSessionStart)
	mux.HandleFunc("DELETE /tap/session", a.handleSessionStop)
	mux.HandleFunc("POST /recording/start", a.handleRecordingStart)
	mux.HandleFunc("POST /recording/stop", a.handleRecordingStop)
	mux.HandleFunc("GET /recordings", a.handleRecordings)

	if h, ok := a.comps.Device.(http.Handler); ok {
		mux.Handle("GET /submix", h)
	}
	mux.Handle("GET /metrics", a.metricsHandler)

	hasDevice := a.comps.Device != nil
	health.New(
		health.Condition("device", func() bool { return hasDevice }, "no audio device"),
		health.Condition("tap", a.tap.Initialized, "tap not registered with a device"),
	).Register(mux)

	return mux
}

// ─── Tap ─────────────────────────────────────────────────────────────────────

func (a *App) handleTapStart(w http.ResponseWriter, r *http.Request) {
	_, span, log := observe.StartControlSpan(r.Context(), "tap.start")
	defer span.End()

	a.tap.Start()
	if !a.tap.Initialized() {
		log.Warn("tap start requested without an audio device")
		writeError(w, http.StatusServiceUnavailable, errors.New("no audio device available"))
		return
	}
	writeJSON(w, http.StatusOK, a.status())
}

func (a *App) handleTapStop(w http.ResponseWriter, r *http.Request) {
	_, span, _ := observe.StartControlSpan(r.Context(), "tap.stop")
	defer span.End()

	a.tap.Stop()
	writeJSON(w, http.StatusOK, a.status())
}

func (a *App) handleTapStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.status())
}

func (a *App) status() StatusResponse {
	res := StatusResponse{
		Initialized:       a.tap.Initialized(),
		Saving:            a.tap.Saving(),
		Target:            a.tap.Target(),
		AccumulatedFrames: a.tap.AccumulatedFrames(),
	}
	if a.sessions.IsActive() {
		info := a.sessions.Info()
		res.Session = &info
	}
	if recs := a.Recordings(); len(recs) > 0 {
		res.LastRecording = recs[len(recs)-1]
	}
	return res
}

// ─── Sessions ────────────────────────────────────────────────────────────────

func (a *App) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Handle == 0 {
		writeError(w, http.StatusBadRequest, errors.New("handle must be non-zero"))
		return
	}

	_, span, log := observe.StartControlSpan(r.Context(), "session.start",
		observe.AttrSessionHandle.String(strconv.FormatUint(req.Handle, 10)))
	defer span.End()

	if err := a.sessions.Start(reverse.Handle(req.Handle)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("session start failed", "handle", req.Handle, "err", err)
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, a.sessions.Info())
}

func (a *App) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	_, span, _ := observe.StartControlSpan(r.Context(), "session.stop")
	defer span.End()

	if err := a.sessions.Stop(); err != nil {
		if errors.Is(err, ErrNoSession) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Recording ───────────────────────────────────────────────────────────────

func (a *App) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	_, span, log := observe.StartControlSpan(r.Context(), "recording.start")
	defer span.End()

	a.tap.StartAccumulating()
	log.Info("recording started")
	writeJSON(w, http.StatusOK, a.status())
}

func (a *App) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	var req recordingStopRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Name == "" {
		req.Name = "recording-" + uuid.NewString() + ".wav"
	}

	_, span, log := observe.StartControlSpan(r.Context(), "recording.stop",
		observe.AttrRecordingName.String(req.Name))
	defer span.End()

	res := recordingStopResponse{Name: req.Name}
	if pr, ok := a.writer.(pathResolver); ok {
		p, err := pr.Path(req.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res.Path = p
	}

	a.tap.StopAccumulating(req.Name)
	log.Info("recording stop requested", "name", req.Name, "path", res.Path)
	writeJSON(w, http.StatusAccepted, res)
}

func (a *App) handleRecordings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"recordings": a.Recordings()})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
