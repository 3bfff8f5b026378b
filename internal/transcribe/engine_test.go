package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTranscriber counts calls and fails the test if two Process calls
// ever overlap.
type fakeTranscriber struct {
	t        *testing.T
	delay    time.Duration
	text     string
	err      error
	inFlight atomic.Int32
	calls    atomic.Int32
	closed   atomic.Bool
}

func (f *fakeTranscriber) Process(samples []float32) (string, error) {
	if f.inFlight.Add(1) > 1 {
		f.t.Error("concurrent Process calls reached the transcriber")
	}
	defer f.inFlight.Add(-1)
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.text, f.err
}

func (f *fakeTranscriber) Close() error {
	f.closed.Store(true)
	return nil
}

func TestEngineLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	fake := &fakeTranscriber{t: t, text: "hello"}
	e := newEngine(func() (Transcriber, error) {
		loads.Add(1)
		return fake, nil
	}, time.Second)
	defer e.Close()

	for i := 0; i < 3; i++ {
		text, err := e.Transcribe(context.Background(), []float32{0})
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if text != "hello" {
			t.Errorf("text = %q, want %q", text, "hello")
		}
	}

	if got := loads.Load(); got != 1 {
		t.Errorf("loader ran %d times, want 1", got)
	}
	if got := fake.calls.Load(); got != 3 {
		t.Errorf("Process ran %d times, want 3", got)
	}
}

func TestEngineSerializesCalls(t *testing.T) {
	fake := &fakeTranscriber{t: t, delay: 20 * time.Millisecond}
	e := newEngine(func() (Transcriber, error) { return fake, nil }, time.Second)
	defer e.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Transcribe(context.Background(), []float32{0}); err != nil {
				t.Errorf("Transcribe: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fake.calls.Load(); got != 5 {
		t.Errorf("Process ran %d times, want 5", got)
	}
}

func TestEngineLoadFailure(t *testing.T) {
	e := newEngine(func() (Transcriber, error) {
		return nil, fmt.Errorf("no model file")
	}, time.Second)
	defer e.Close()

	for i := 0; i < 2; i++ {
		_, err := e.Transcribe(context.Background(), []float32{0})
		if !errors.Is(err, ErrNotReady) {
			t.Errorf("Transcribe after failed load: error = %v, want ErrNotReady", err)
		}
	}
}

func TestEngineLoadWaitTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	e := newEngine(func() (Transcriber, error) {
		<-block
		return &fakeTranscriber{t: t}, nil
	}, 10*time.Millisecond)
	defer e.Close()

	_, err := e.Transcribe(context.Background(), []float32{0})
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Transcribe during slow load: error = %v, want ErrNotReady", err)
	}
}

func TestEngineEmptyResultIsNotError(t *testing.T) {
	fake := &fakeTranscriber{t: t, text: ""}
	e := newEngine(func() (Transcriber, error) { return fake, nil }, time.Second)
	defer e.Close()

	text, err := e.Transcribe(context.Background(), make([]float32, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestEngineClose(t *testing.T) {
	fake := &fakeTranscriber{t: t}
	e := newEngine(func() (Transcriber, error) { return fake, nil }, time.Second)

	if _, err := e.Transcribe(context.Background(), []float32{0}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Double close is fine.
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := e.Transcribe(context.Background(), []float32{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("Transcribe after Close: error = %v, want ErrClosed", err)
	}

	// The worker releases the model on shutdown.
	deadline := time.Now().Add(time.Second)
	for !fake.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("transcriber was not closed after engine shutdown")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineCancelledContext(t *testing.T) {
	e := newEngine(func() (Transcriber, error) { return &fakeTranscriber{t: t}, nil }, time.Second)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Transcribe(ctx, []float32{0}); !errors.Is(err, context.Canceled) {
		t.Errorf("Transcribe with cancelled ctx: error = %v, want context.Canceled", err)
	}
}
