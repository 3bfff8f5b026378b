// Package segment extracts a bounded time window of an audio source as raw
// PCM samples, independent of the source's container or codec.
//
// Extraction shells out to ffmpeg with an input-side seek so only the
// requested range (plus codec frame alignment) is decoded, then reads the
// intermediate WAV back with go-audio. Output is always normalized to the
// mono sample rate the transcription engine expects.
package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// Sentinel errors, matched with errors.Is by the orchestrator.
var (
	// ErrDecode means the source data is unreadable, corrupt, or in an
	// unsupported format.
	ErrDecode = errors.New("segment: decode failed")

	// ErrRange means the requested window cannot be satisfied by the
	// underlying source.
	ErrRange = errors.New("segment: range unsatisfiable")
)

// DurationUnknown is reported when the source does not declare a duration.
const DurationUnknown int64 = -1

// Segment holds decoded PCM for one extracted window.
//
// StartMs/EndMs are the effective bounds: when the requested end overruns a
// source whose real duration was unknown at window-computation time, EndMs
// reflects where the audio actually stopped.
type Segment struct {
	SampleRate int
	Channels   int
	StartMs    int64
	EndMs      int64
	Samples    []float32
}

// DurationMs returns the segment length implied by its bounds.
func (s *Segment) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// Extractor decodes ranged windows out of arbitrary audio sources.
type Extractor struct {
	sampleRate int
	timeout    time.Duration
	tempDir    string

	ffmpegPath  string
	ffprobePath string
}

// NewExtractor creates an extractor that normalizes output to the given
// mono sample rate. Each extraction is bounded by timeout so a source that
// became unreadable mid-decode surfaces as ErrDecode rather than hanging.
func NewExtractor(sampleRate int, timeout time.Duration) *Extractor {
	return &Extractor{
		sampleRate:  sampleRate,
		timeout:     timeout,
		tempDir:     os.TempDir(),
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
}

// ProbeDurationMs returns the declared duration of the source in
// milliseconds, or DurationUnknown if the source does not declare one.
func (e *Extractor) ProbeDurationMs(ctx context.Context, path string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, ErrDecode)
	}

	return parseProbeDuration(string(out))
}

// Extract decodes [startMs, endMs) of the source at path into normalized
// PCM. It fails with ErrRange if the window lies outside the source and
// ErrDecode if the source cannot be read.
func (e *Extractor) Extract(ctx context.Context, path string, startMs, endMs int64) (*Segment, error) {
	if startMs < 0 || endMs <= startMs {
		return nil, fmt.Errorf("window [%d, %d): %w", startMs, endMs, ErrRange)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// A source can be shorter than its metadata claimed (truncated
	// download, lying container). Probe before decoding so a window past
	// the real end is a range error, not a silent empty decode.
	durMs, err := e.ProbeDurationMs(ctx, path)
	if err != nil {
		return nil, err
	}
	if durMs != DurationUnknown {
		if startMs >= durMs {
			return nil, fmt.Errorf("window starts at %dms but source ends at %dms: %w", startMs, durMs, ErrRange)
		}
		if endMs > durMs {
			endMs = durMs
		}
	}

	tmp, err := os.CreateTemp(e.tempDir, "earmark-segment-*.wav")
	if err != nil {
		return nil, fmt.Errorf("segment: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := extractArgs(path, startMs, endMs, e.sampleRate, tmpPath)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extracting %s: %v: %w", filepath.Base(path), ctx.Err(), ErrDecode)
		}
		return nil, fmt.Errorf("extracting %s: %s: %w", filepath.Base(path), stderrTail(stderr.String()), ErrDecode)
	}

	samples, err := readWAVSamples(tmpPath)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("window [%d, %d) yielded no audio: %w", startMs, endMs, ErrRange)
	}

	return &Segment{
		SampleRate: e.sampleRate,
		Channels:   1,
		StartMs:    startMs,
		EndMs:      endMs,
		Samples:    samples,
	}, nil
}

// extractArgs builds the ffmpeg invocation for a ranged decode. The seek
// (-ss) precedes the input so ffmpeg seeks in the container instead of
// decoding from the start of the file.
func extractArgs(path string, startMs, endMs int64, sampleRate int, outPath string) []string {
	return []string{
		"-v", "error",
		"-ss", formatMs(startMs),
		"-t", formatMs(endMs - startMs),
		"-i", path,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y",
		outPath,
	}
}

// readWAVSamples decodes a 16-bit PCM WAV file into mono float32 samples
// normalized to [-1.0, 1.0].
func readWAVSamples(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segment: opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decoding %s: not a valid WAV file: %w", filepath.Base(path), ErrDecode)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", filepath.Base(path), err, ErrDecode)
	}

	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

// parseProbeDuration converts ffprobe's duration output (seconds, or "N/A")
// to milliseconds.
func parseProbeDuration(out string) (int64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return DurationUnknown, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("segment: unexpected ffprobe duration %q: %w", s, err)
	}
	return int64(sec * 1000), nil
}

// formatMs renders milliseconds as the fractional-seconds form ffmpeg takes.
func formatMs(ms int64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

// stderrTail keeps the last line of ffmpeg stderr for error messages.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "ffmpeg failed"
	}
	return s
}
