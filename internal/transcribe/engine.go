package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotReady means the model had not finished loading within the
	// configured wait.
	ErrNotReady = errors.New("transcribe: engine not ready")

	// ErrClosed means the engine was shut down.
	ErrClosed = errors.New("transcribe: engine closed")
)

// loaderFunc constructs the backing Transcriber. Split out so tests can
// substitute a fake without a model file on disk.
type loaderFunc func() (Transcriber, error)

type request struct {
	samples []float32
	resp    chan result
}

type result struct {
	text string
	err  error
}

// Engine owns the lifecycle of a Transcriber and serializes calls into it.
//
// The model loads lazily on the first Transcribe call and is reused until
// Close. Callers arriving during the load block up to the configured wait.
// The whisper context is confined to a single worker goroutine; concurrent
// Transcribe calls queue behind each other.
type Engine struct {
	loader   loaderFunc
	loadWait time.Duration

	once    sync.Once
	ready   chan struct{}
	loadErr error

	reqCh chan request

	closeOnce sync.Once
	done      chan struct{}
}

// NewEngine creates an engine backed by a whisper model at modelPath,
// fed samples recorded at sampleRate. loadWait bounds how long a
// Transcribe call waits for the one-time load.
func NewEngine(modelPath string, sampleRate int, loadWait time.Duration) *Engine {
	return newEngine(func() (Transcriber, error) {
		return NewWhisperTranscriber(modelPath, sampleRate)
	}, loadWait)
}

func newEngine(loader loaderFunc, loadWait time.Duration) *Engine {
	return &Engine{
		loader:   loader,
		loadWait: loadWait,
		ready:    make(chan struct{}),
		reqCh:    make(chan request),
		done:     make(chan struct{}),
	}
}

// Transcribe converts samples to text through the serialized worker. An
// empty result with a nil error means no speech was detected.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.once.Do(func() { go e.run() })

	wait := time.NewTimer(e.loadWait)
	defer wait.Stop()

	select {
	case <-e.ready:
		if e.loadErr != nil {
			return "", e.loadErr
		}
	case <-wait.C:
		return "", fmt.Errorf("model load exceeded %s: %w", e.loadWait, ErrNotReady)
	case <-e.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	req := request{samples: samples, resp: make(chan result, 1)}

	select {
	case e.reqCh <- req:
	case <-e.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.resp:
		return res.text, res.err
	case <-ctx.Done():
		// The worker finishes the in-flight call and drops the result
		// into the buffered resp channel; nothing leaks.
		return "", ctx.Err()
	}
}

// Close shuts the worker down and releases the model. Safe to call more
// than once and before the model ever loaded.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	return nil
}

func (e *Engine) run() {
	tr, err := e.loader()
	if err != nil {
		e.loadErr = fmt.Errorf("%w: %v", ErrNotReady, err)
		close(e.ready)
		return
	}
	close(e.ready)
	defer tr.Close()

	for {
		select {
		case <-e.done:
			return
		case req := <-e.reqCh:
			text, err := tr.Process(req.samples)
			req.resp <- result{text: text, err: err}
		}
	}
}
