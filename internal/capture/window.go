package capture

import "github.com/earmark-audio/earmark/internal/playback"

// Window is the half-open [StartMs, EndMs) range of audio around an anchor.
// Computed at trigger time, consumed within one pipeline run, never
// persisted as-is.
type Window struct {
	AnchorMs int64
	StartMs  int64
	EndMs    int64
}

// DurationMs returns the window length.
func (w Window) DurationMs() int64 { return w.EndMs - w.StartMs }

// ComputeWindow builds the capture window around anchorMs, clamped to the
// source bounds. halfMs is the configured half-window size.
//
// A durationMs of playback.DurationUnknown leaves the end unclamped; the
// extractor settles the real end when it reaches the audio. A window that
// degenerates to zero length after clamping (anchor at the very end of a
// zero-length source, say) is rejected with KindValidation before any
// decode work starts.
func ComputeWindow(anchorMs, durationMs, halfMs int64) (Window, error) {
	if halfMs <= 0 {
		return Window{}, kindErrf(KindValidation, "half-window %dms must be positive", halfMs)
	}
	if anchorMs < 0 {
		return Window{}, kindErrf(KindValidation, "anchor %dms is negative", anchorMs)
	}

	bounded := durationMs != playback.DurationUnknown
	if bounded && anchorMs > durationMs {
		anchorMs = durationMs
	}

	start := anchorMs - halfMs
	if start < 0 {
		start = 0
	}

	end := anchorMs + halfMs
	if bounded && end > durationMs {
		end = durationMs
	}

	if end <= start {
		return Window{}, kindErrf(KindValidation, "window [%d, %d) around anchor %dms is empty", start, end, anchorMs)
	}

	return Window{AnchorMs: anchorMs, StartMs: start, EndMs: end}, nil
}
