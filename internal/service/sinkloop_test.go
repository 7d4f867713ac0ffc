package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/edirooss/blocklog/internal/logsink"
	"github.com/edirooss/blocklog/internal/storage/memstore"
)

func newLoop(t *testing.T, opts logsink.Options, interval time.Duration) (*SinkLoop, *memstore.Store, chan []byte) {
	t.Helper()
	store := memstore.New(1 << 20)
	opts.Halter = logsink.HaltFunc(func(d logsink.Diagnostic) {})
	sink, err := logsink.New(nil, store, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Open("log000.txt"); err != nil {
		t.Fatal(err)
	}
	input := make(chan []byte)
	return NewSinkLoop(nil, sink, interval, input), store, input
}

func TestSinkLoopDrainsOnShutdown(t *testing.T) {
	loop, store, input := newLoop(t, logsink.Options{PrimarySize: 64}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	input <- []byte("first\n")
	input <- []byte("second\n")
	// Round-trip a request so both chunks are consumed before cancelling.
	if _, err := loop.Stats(context.Background()); err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := string(store.Bytes()); got != "first\nsecond\n" {
		t.Fatalf("unexpected stream %q", got)
	}
	if store.IsOpen() {
		t.Fatal("sink not closed on shutdown")
	}
	if err := loop.Do(context.Background(), func(*logsink.Sink) error { return nil }); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("expected ErrLoopStopped, got %v", err)
	}
}

func TestSinkLoopFlushesWhenPrimaryFills(t *testing.T) {
	loop, store, input := newLoop(t, logsink.Options{PrimarySize: 8, ReadySize: 4}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	payload := strings.Repeat("0123456789", 5)
	input <- []byte(payload)

	st, err := loop.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Dropped != 0 {
		t.Fatalf("expected no drops, got %d", st.Dropped)
	}
	if err := loop.Do(context.Background(), (*logsink.Sink).Drain); err != nil {
		t.Fatal(err)
	}
	if got := string(store.Bytes()); got != payload {
		t.Fatalf("unexpected stream %q", got)
	}
}

func TestSinkLoopPeriodicFlush(t *testing.T) {
	loop, store, input := newLoop(t, logsink.Options{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	input <- []byte("tick\n")
	deadline := time.Now().Add(2 * time.Second)
	for string(store.Bytes()) != "tick\n" {
		if time.Now().After(deadline) {
			t.Fatalf("periodic flush did not commit, got %q", store.Bytes())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSinkLoopDoHonoursContext(t *testing.T) {
	loop, _, _ := newLoop(t, logsink.Options{}, time.Hour)
	// Loop not running: the request can never be accepted.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := loop.Do(ctx, func(*logsink.Sink) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSinkLoopReturnsRequestError(t *testing.T) {
	loop, _, _ := newLoop(t, logsink.Options{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	want := errors.New("boom")
	if err := loop.Do(context.Background(), func(*logsink.Sink) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestSinkLoopCountsInputRefusedAfterHalt(t *testing.T) {
	loop, store, input := newLoop(t, logsink.Options{PrimarySize: 16}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	input <- []byte("ok")
	store.Inject(memstore.Faults{Flush: errors.New("sync failed")})
	if err := loop.Do(context.Background(), (*logsink.Sink).Flush); !errors.Is(err, logsink.ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}

	input <- []byte("lost")
	st, err := loop.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Dropped != 4 {
		t.Fatalf("expected 4 dropped, got %d", st.Dropped)
	}
}
