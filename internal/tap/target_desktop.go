//go:build !android && !ios

package tap

// DefaultSampleRate is the rate the reverse processor expects on desktop
// platforms.
const DefaultSampleRate = 48000
