package transcribe

import (
	"fmt"
	"io"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperTranscriber runs speech-to-text through a whisper.cpp model. It
// holds one decoding context for its whole lifetime, so Process must not be
// called concurrently; the Engine's single worker provides that
// serialization.
type WhisperTranscriber struct {
	model whisper.Model
	wctx  whisper.Context
}

// NewWhisperTranscriber loads the model at modelPath and prepares its
// decoding context. sampleRate is the rate the extraction stage produces;
// whisper models accept exactly one rate, so a mismatch fails here instead
// of surfacing as garbled transcriptions later.
func NewWhisperTranscriber(modelPath string, sampleRate int) (*WhisperTranscriber, error) {
	if sampleRate != whisper.SampleRate {
		return nil, fmt.Errorf("transcribe: model expects %d Hz input, pipeline configured for %d Hz",
			whisper.SampleRate, sampleRate)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", modelPath, err)
	}
	wctx, err := model.NewContext()
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("transcribe: create whisper context: %w", err)
	}
	return &WhisperTranscriber{model: model, wctx: wctx}, nil
}

// Close releases the model resources.
func (t *WhisperTranscriber) Close() error {
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// Process transcribes mono float32 samples and returns the joined segment
// text. A window with no samples or no speech transcribes to "".
func (t *WhisperTranscriber) Process(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	if err := t.wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process window: %w", err)
	}

	var b strings.Builder
	for {
		seg, err := t.wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: read segment: %w", err)
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(seg.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
