package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageResourceDone))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies partial batches are flushed on the interval.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   20 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWhenFull asserts Emit drops instead of blocking.
func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains buffered events and closes sinks.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageResourceDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	require.True(t, sink.closed)

	// Events after close are ignored and Close stays idempotent.
	hub.Emit(sampleEvent(StageResourceDone))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

// TestHubDiscardsInvalidEvents ensures malformed events never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchWait: time.Minute}, sink)
	hub.Emit(Event{Stage: StageRunStart})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

// TestHubSinkErrorsDoNotStopFanout checks a failing sink does not starve others.
func TestHubSinkErrorsDoNotStopFanout(t *testing.T) {
	t.Parallel()

	good := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Minute}, failingSink{}, good)
	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, good.Batches(), 1)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := sampleEvent(StageResourceDone)
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{name: "missing run id", mutate: func(e *Event) { e.RunID = [16]byte{} }},
		{name: "missing timestamp", mutate: func(e *Event) { e.TS = time.Time{} }},
		{name: "unknown stage", mutate: func(e *Event) { e.Stage = "NOPE" }},
		{name: "missing uri", mutate: func(e *Event) { e.URI = "" }},
		{name: "missing status class", mutate: func(e *Event) { e.StatusClass = "" }},
		{name: "negative duration", mutate: func(e *Event) { e.Dur = -time.Second }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt := sampleEvent(StageResourceDone)
			tt.mutate(&evt)
			require.Error(t, evt.Validate())
		})
	}
}

func TestResourceEvent(t *testing.T) {
	t.Parallel()

	runID := UUIDToBytes(uuid.New())
	res := warmer.NewResource(3, "https://Example.com/a")
	res.Apply(warmer.Classification{CacheStatus: warmer.CacheStatusHit, HTTPStatus: 200, CaptchaFound: true})

	evt := ResourceEvent(runID, 1, res, time.Now())
	require.NoError(t, evt.Validate())
	require.Equal(t, StageResourceDone, evt.Stage)
	require.Equal(t, "example.com", evt.Site)
	require.Equal(t, Status2xx, evt.StatusClass)
	require.True(t, evt.Captcha)

	failed := warmer.NewResource(4, "https://example.com/b")
	failed.Fail(errors.New("connection refused"))
	evt = ResourceEvent(runID, 1, failed, time.Now())
	require.NoError(t, evt.Validate())
	require.Equal(t, StageResourceError, evt.Stage)
	require.Equal(t, StatusNone, evt.StatusClass)
	require.Equal(t, "connection refused", evt.Note)
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusNone, ClassifyStatus(0))
	require.Equal(t, Status1xx, ClassifyStatus(103))
	require.Equal(t, Status2xx, ClassifyStatus(204))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(429))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusOther, ClassifyStatus(799))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

type failingSink struct{}

func (failingSink) Consume(context.Context, []Event) error { return errors.New("sink down") }
func (failingSink) Close(context.Context) error            { return nil }

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Stage: stage,
	}
	if stage == StageResourceDone {
		evt.URI = "https://example.com/"
		evt.Site = "example.com"
		evt.CacheStatus = warmer.CacheStatusMiss
		evt.HTTPStatus = 200
		evt.StatusClass = Status2xx
	}
	return evt
}
