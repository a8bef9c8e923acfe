//go:build android || ios

package tap

// DefaultSampleRate is the rate the reverse processor expects on mobile
// platforms.
const DefaultSampleRate = 44100
