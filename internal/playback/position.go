// Package playback provides the transport position contract the capture
// pipeline reads from, and a minimal local player backed by malgo.
package playback

// DurationUnknown is the duration reported by a source that cannot declare
// one yet (e.g. a download still in progress). Window computation treats it
// as unbounded.
const DurationUnknown int64 = -1

// PositionSource exposes the live transport position of a playing source.
//
// Snapshot returns position and duration read in the same call epoch so the
// pair is consistent. The capture pipeline only ever reads; it never mutates
// playback state. There are no error states: an unknown duration is the
// DurationUnknown sentinel.
type PositionSource interface {
	Snapshot() (positionMs, durationMs int64)
}

// FixedSnapshot is a PositionSource pinned to a single moment. Used for
// one-shot captures against an explicit anchor, and in tests.
type FixedSnapshot struct {
	PositionMs int64
	DurationMs int64
}

func (f FixedSnapshot) Snapshot() (int64, int64) {
	return f.PositionMs, f.DurationMs
}
