package segment

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestParseProbeDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"3600.000000\n", 3600000},
		{"1.5", 1500},
		{"0.045", 45},
		{"N/A\n", DurationUnknown},
		{"", DurationUnknown},
	}

	for _, tt := range tests {
		got, err := parseProbeDuration(tt.in)
		if err != nil {
			t.Errorf("parseProbeDuration(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseProbeDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if _, err := parseProbeDuration("garbage"); err == nil {
		t.Error("parseProbeDuration(garbage) should return error")
	}
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0.000"},
		{45000, "45.000"},
		{1830, "1.830"},
		{3565000, "3565.000"},
		{7, "0.007"},
	}

	for _, tt := range tests {
		if got := formatMs(tt.ms); got != tt.want {
			t.Errorf("formatMs(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestExtractArgs(t *testing.T) {
	args := extractArgs("/tmp/show.mp3", 1770000, 1830000, 16000, "/tmp/out.wav")

	// Input-side seek: -ss must come before -i.
	var ssIdx, iIdx int = -1, -1
	for i, a := range args {
		switch a {
		case "-ss":
			ssIdx = i
		case "-i":
			iIdx = i
		}
	}
	if ssIdx == -1 || iIdx == -1 || ssIdx > iIdx {
		t.Fatalf("expected -ss before -i, got %v", args)
	}
	if args[ssIdx+1] != "1770.000" {
		t.Errorf("seek = %q, want 1770.000", args[ssIdx+1])
	}

	// Window length, not absolute end.
	for i, a := range args {
		if a == "-t" && args[i+1] != "60.000" {
			t.Errorf("-t = %q, want 60.000", args[i+1])
		}
	}
}

func TestExtractRejectsDegenerateRange(t *testing.T) {
	e := NewExtractor(16000, time.Second)

	for _, tt := range []struct{ start, end int64 }{
		{1000, 1000},
		{2000, 1000},
		{-1, 1000},
	} {
		_, err := e.Extract(context.Background(), "/tmp/nope.mp3", tt.start, tt.end)
		if !errors.Is(err, ErrRange) {
			t.Errorf("Extract(%d, %d) error = %v, want ErrRange", tt.start, tt.end, err)
		}
	}
}

// writeSilenceWAV writes durMs of 16 kHz mono silence to path.
func writeSilenceWAV(t *testing.T, path string, durMs int64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, durMs*16000/1000),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode WAV: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close WAV encoder: %v", err)
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH: %v", bin, err)
		}
	}
}

func TestExtractSilence(t *testing.T) {
	requireFFmpeg(t)

	src := filepath.Join(t.TempDir(), "silence.wav")
	writeSilenceWAV(t, src, 3000)

	e := NewExtractor(16000, 10*time.Second)
	seg, err := e.Extract(context.Background(), src, 500, 1500)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if seg.SampleRate != 16000 || seg.Channels != 1 {
		t.Errorf("format = %d Hz / %d ch, want 16000 Hz / 1 ch", seg.SampleRate, seg.Channels)
	}
	if seg.StartMs != 500 || seg.EndMs != 1500 {
		t.Errorf("bounds = [%d, %d), want [500, 1500)", seg.StartMs, seg.EndMs)
	}

	// One second of 16 kHz audio, within one frame of rounding tolerance.
	want := 16000
	if diff := len(seg.Samples) - want; diff < -1 || diff > 1 {
		t.Errorf("len(Samples) = %d, want %d ±1", len(seg.Samples), want)
	}
	for i, s := range seg.Samples {
		if s != 0 {
			t.Fatalf("sample[%d] = %f, want silence", i, s)
		}
	}
}

func TestExtractClampsToActualDuration(t *testing.T) {
	requireFFmpeg(t)

	src := filepath.Join(t.TempDir(), "short.wav")
	writeSilenceWAV(t, src, 2000)

	e := NewExtractor(16000, 10*time.Second)

	// Requested end overruns the real duration: effective EndMs shrinks.
	seg, err := e.Extract(context.Background(), src, 1000, 5000)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if seg.EndMs != 2000 {
		t.Errorf("EndMs = %d, want 2000 (clamped)", seg.EndMs)
	}

	// Start beyond the real end is a range error.
	if _, err := e.Extract(context.Background(), src, 3000, 4000); !errors.Is(err, ErrRange) {
		t.Errorf("Extract past end error = %v, want ErrRange", err)
	}
}

func TestExtractUnreadableSource(t *testing.T) {
	requireFFmpeg(t)

	src := filepath.Join(t.TempDir(), "corrupt.mp3")
	if err := os.WriteFile(src, []byte("this is not audio"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor(16000, 10*time.Second)
	if _, err := e.Extract(context.Background(), src, 0, 1000); !errors.Is(err, ErrDecode) {
		t.Errorf("Extract(corrupt) error = %v, want ErrDecode", err)
	}
}
