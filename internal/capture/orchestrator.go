// Package capture runs the pipeline that turns a marked playback moment
// into a persisted, transcribed snippet.
//
// One run moves linearly through window computation, ranged extraction,
// transcription, persistence, and export sync. At most one run is in flight
// per source at a time; a trigger against a busy source is rejected
// immediately rather than queued, so overlapping reads of a moving playback
// position can never produce duplicate or nonsensical windows. The
// single-flight hold extends over the export sync step; the exporter's own
// per-source lock additionally serializes manual regenerates against an
// in-flight run's sync, including the capture-set read each one starts from.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/earmark-audio/earmark/internal/export"
	"github.com/earmark-audio/earmark/internal/playback"
	"github.com/earmark-audio/earmark/internal/segment"
	"github.com/earmark-audio/earmark/internal/source"
	"github.com/earmark-audio/earmark/internal/store"
)

// State is the pipeline position of a run.
type State int32

const (
	StateIdle State = iota
	StateWindowComputed
	StateExtracting
	StateTranscribing
	StatePersisting
	StateSyncing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWindowComputed:
		return "window-computed"
	case StateExtracting:
		return "extracting"
	case StateTranscribing:
		return "transcribing"
	case StatePersisting:
		return "persisting"
	case StateSyncing:
		return "syncing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Extractor decodes a window of a source into PCM.
type Extractor interface {
	Extract(ctx context.Context, path string, startMs, endMs int64) (*segment.Segment, error)
}

// Transcriber converts PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// CaptureStore persists capture records.
type CaptureStore interface {
	InsertCapture(ctx context.Context, c store.Capture) error
	ListForSource(ctx context.Context, sourceKey string) ([]store.Capture, error)
}

// Exporter keeps the derived document for a source in sync with its
// capture set. The set is read through the list callback under the
// exporter's per-source lock, so a sync never writes from a snapshot taken
// before an earlier sync's write.
type Exporter interface {
	Sync(sourceKey string, list export.ListFunc, meta export.Metadata) (string, error)
}

// MetadataFunc supplies the export header input for a source.
type MetadataFunc func(src source.Source) export.Metadata

// Deps are the orchestrator's collaborators; all are required except
// Metadata, Logger, and Now.
type Deps struct {
	HalfWindowMs int64
	Resolver     source.Resolver
	Extractor    Extractor
	Engine       Transcriber
	Store        CaptureStore
	Exporter     Exporter
	Metadata     MetadataFunc
	Logger       *log.Logger
	Now          func() time.Time
}

// Orchestrator sequences capture runs and enforces the single-flight rule.
type Orchestrator struct {
	deps Deps

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New validates deps and creates an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.HalfWindowMs <= 0 {
		return nil, fmt.Errorf("capture: half-window must be positive, got %d", deps.HalfWindowMs)
	}
	if deps.Resolver == nil || deps.Extractor == nil || deps.Engine == nil ||
		deps.Store == nil || deps.Exporter == nil {
		return nil, fmt.Errorf("capture: resolver, extractor, engine, store, and exporter are all required")
	}
	if deps.Metadata == nil {
		deps.Metadata = func(src source.Source) export.Metadata {
			return export.Metadata{Title: src.ID()}
		}
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps, inflight: make(map[string]struct{})}, nil
}

// Outcome is the terminal result of a run.
type Outcome struct {
	// Capture is set iff the run succeeded.
	Capture *store.Capture
	// Err classifies the failure; nil on success.
	Err error
	// ExportWarning reports a failed export sync on an otherwise
	// successful run. The record is persisted; the document can be
	// regenerated on demand.
	ExportWarning error
}

// Succeeded reports whether the capture record was persisted.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Busy reports whether the trigger was rejected because a run for the same
// source was already in flight.
func (o Outcome) Busy() bool { return KindOf(o.Err) == KindBusy }

// Run is the caller's handle on an in-flight pipeline run.
type Run struct {
	state   atomic.Int32
	done    chan struct{}
	outcome Outcome
}

// State returns the run's current pipeline position.
func (r *Run) State() State { return State(r.state.Load()) }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Outcome returns the terminal result. Only valid after Done is closed.
func (r *Run) Outcome() Outcome { return r.outcome }

// Wait blocks until the run finishes or ctx expires.
func (r *Run) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (r *Run) finish(outcome Outcome) {
	if outcome.Err == nil {
		r.state.Store(int32(StateSucceeded))
	} else {
		r.state.Store(int32(StateFailed))
	}
	r.outcome = outcome
	close(r.done)
}

// Trigger starts a capture run for src at the position source's current
// moment. It returns immediately; the heavy stages run on their own
// goroutine and the caller observes completion through the returned Run.
//
// A trigger while a run for the same source is active finishes immediately
// with a busy outcome.
func (o *Orchestrator) Trigger(ctx context.Context, src source.Source, pos playback.PositionSource) *Run {
	run := &Run{done: make(chan struct{})}

	if src.IsZero() {
		run.finish(Outcome{Err: kindErrf(KindValidation, "no source")})
		return run
	}
	key := src.Key()

	o.mu.Lock()
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		run.finish(Outcome{Err: kindErrf(KindBusy, "capture already in flight for %s", key)})
		return run
	}
	o.inflight[key] = struct{}{}
	o.mu.Unlock()

	// Snapshot and window computation are cheap and happen on the
	// trigger's thread so a degenerate window is rejected synchronously.
	anchorMs, durationMs := pos.Snapshot()
	win, err := ComputeWindow(anchorMs, durationMs, o.deps.HalfWindowMs)
	if err != nil {
		o.release(key)
		run.finish(Outcome{Err: err})
		return run
	}
	run.state.Store(int32(StateWindowComputed))

	go func() {
		outcome := o.execute(ctx, run, src, key, win)
		// Release before finishing so a caller woken by Done can
		// re-trigger the same source without a spurious busy.
		o.release(key)
		run.finish(outcome)
	}()

	return run
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	delete(o.inflight, key)
	o.mu.Unlock()
}

// execute runs the extraction, transcription, persistence, and sync stages.
// Cancellation is checked between stages; a cancelled run persists nothing.
func (o *Orchestrator) execute(ctx context.Context, run *Run, src source.Source, key string, win Window) Outcome {
	path, err := o.deps.Resolver.Resolve(src)
	if err != nil {
		return Outcome{Err: kindErr(KindDecode, err)}
	}

	if err := ctx.Err(); err != nil {
		return Outcome{Err: kindErr(KindCanceled, err)}
	}

	run.state.Store(int32(StateExtracting))
	seg, err := o.deps.Extractor.Extract(ctx, path, win.StartMs, win.EndMs)
	if err != nil {
		// The extractor runs under its own timeout; only the caller's
		// context decides whether this was a cooperative cancellation.
		if ctx.Err() != nil {
			return Outcome{Err: kindErr(KindCanceled, ctx.Err())}
		}
		return Outcome{Err: classifyExtract(err)}
	}

	if err := ctx.Err(); err != nil {
		return Outcome{Err: kindErr(KindCanceled, err)}
	}

	run.state.Store(int32(StateTranscribing))
	text, err := o.deps.Engine.Transcribe(ctx, seg.Samples)
	if err != nil {
		if ctxErr(err) {
			return Outcome{Err: kindErr(KindCanceled, err)}
		}
		return Outcome{Err: kindErr(KindEngine, err)}
	}

	if err := ctx.Err(); err != nil {
		return Outcome{Err: kindErr(KindCanceled, err)}
	}

	// The record carries the segment's effective bounds: for a source of
	// unknown duration the real end is only known after extraction.
	rec := store.Capture{
		ID:            uuid.NewString(),
		SourceKey:     key,
		AnchorMs:      win.AnchorMs,
		WindowStartMs: seg.StartMs,
		WindowEndMs:   seg.EndMs,
		Transcription: text,
		CreatedAt:     o.deps.Now().UTC(),
	}

	run.state.Store(int32(StatePersisting))
	if err := o.deps.Store.InsertCapture(ctx, rec); err != nil {
		return Outcome{Err: kindErr(KindStorage, err)}
	}

	// The capture is durable from here on. A sync failure degrades to a
	// warning: the document is a projection, not the source of truth.
	run.state.Store(int32(StateSyncing))
	var warn error
	if _, err := o.deps.Exporter.Sync(key, o.listFunc(ctx, key), o.deps.Metadata(src)); err != nil {
		warn = kindErr(KindExportSync, err)
		o.deps.Logger.Printf("WARN: export sync for %s failed: %v", key, warn)
	}

	return Outcome{Capture: &rec, ExportWarning: warn}
}

// Regenerate re-renders the export document for src from the stored capture
// set. Invoked on demand by the export-viewing collaborator; repeated calls
// on an unchanged set produce identical documents. The set is read inside
// the exporter's per-source lock, so a regenerate racing an in-flight run
// can never overwrite the run's sync with a stale snapshot.
func (o *Orchestrator) Regenerate(ctx context.Context, src source.Source) (string, error) {
	key := src.Key()

	var listErr error
	list := func() ([]store.Capture, error) {
		captures, err := o.deps.Store.ListForSource(ctx, key)
		if err != nil {
			listErr = err
		}
		return captures, err
	}

	path, err := o.deps.Exporter.Sync(key, list, o.deps.Metadata(src))
	if err != nil {
		if listErr != nil {
			return "", kindErr(KindStorage, listErr)
		}
		return "", kindErr(KindExportSync, err)
	}
	return path, nil
}

func (o *Orchestrator) listFunc(ctx context.Context, key string) export.ListFunc {
	return func() ([]store.Capture, error) {
		return o.deps.Store.ListForSource(ctx, key)
	}
}

func classifyExtract(err error) *Error {
	switch {
	case errors.Is(err, segment.ErrRange):
		return kindErr(KindRange, err)
	default:
		return kindErr(KindDecode, err)
	}
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
