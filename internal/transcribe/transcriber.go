// Package transcribe wraps an offline whisper.cpp model for speech-to-text
// and serializes access to it.
//
// The model is loaded once, lazily, on the first transcription request; the
// underlying whisper context is not safe for concurrent invocation, so all
// requests funnel through a single worker goroutine (see Engine).
package transcribe

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Process transcribes mono 16kHz float32 audio samples to text.
	// An empty string means no speech was detected; it is not an error.
	Process(samples []float32) (string, error)
	// Close releases backend resources.
	Close() error
}
