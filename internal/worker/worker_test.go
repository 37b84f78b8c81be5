package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/cache-warmer/internal/classify"
	"github.com/JakeFAU/cache-warmer/internal/fetcher/httpfetch"
	"github.com/JakeFAU/cache-warmer/internal/progress"
	"github.com/JakeFAU/cache-warmer/internal/registry"
	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

func TestWorker_DrainsRegistry(t *testing.T) {
	t.Parallel()

	reg := registry.New([]string{"http://x/a", "http://x/b", "http://x/c"})
	fetcher := &fakeFetcher{
		responses: map[string]warmer.FetchResponse{
			"http://x/a": response(http.StatusOK, "HIT", "a"),
			"http://x/b": response(http.StatusNotFound, "MISS", "b"),
			"http://x/c": response(http.StatusOK, "", "c"),
		},
	}
	emitter := &recordingEmitter{}

	w := New(reg, fetcher, classify.New(""), emitter, fakeClock{}, Config{}, zap.NewNop())
	w.Run(context.Background())

	done := byURI(reg.Done())
	require.Len(t, done, 3)
	require.Equal(t, warmer.CacheStatusHit, done["http://x/a"].CacheStatus)
	require.Equal(t, http.StatusNotFound, done["http://x/b"].HTTPStatus)
	require.Equal(t, warmer.CacheStatusUnset, done["http://x/c"].CacheStatus)
	require.Equal(t, int64(1), done["http://x/a"].Bytes)
	require.Zero(t, reg.TodoCount())
	require.Len(t, emitter.events(), 3)
}

func TestWorker_TransportErrorIsRecorded(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	reg := registry.New([]string{"http://x/down", "http://x/up"})
	fetcher := &fakeFetcher{
		responses: map[string]warmer.FetchResponse{"http://x/up": response(http.StatusOK, "MISS", "")},
		errs:      map[string]error{"http://x/down": fmt.Errorf("%w: dial tcp: refused", warmer.ErrTransport)},
	}

	New(reg, fetcher, classify.New(""), nil, fakeClock{}, Config{}, zap.New(core)).Run(context.Background())

	done := byURI(reg.Done())
	require.Len(t, done, 2, "failed resources are finalized too")
	failed := done["http://x/down"]
	require.Equal(t, warmer.CacheStatusError, failed.CacheStatus)
	require.Equal(t, warmer.HTTPStatusUnset, failed.HTTPStatus)
	require.Contains(t, failed.Err, "refused")
	require.Equal(t, warmer.CacheStatusMiss, done["http://x/up"].CacheStatus)

	warnings := logs.FilterMessage("request failed").All()
	require.Len(t, warnings, 1)
	require.Equal(t, "http://x/down", warnings[0].ContextMap()["uri"])
}

func TestWorker_PanicFinalizesResource(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	reg := registry.New([]string{"http://x/ok", "http://x/boom"})
	fetcher := &panickingFetcher{
		fakeFetcher: fakeFetcher{responses: map[string]warmer.FetchResponse{
			"http://x/ok": response(http.StatusOK, "HIT", ""),
		}},
		panicOn: "http://x/boom",
	}

	New(reg, fetcher, classify.New(""), nil, fakeClock{}, Config{}, zap.New(core)).Run(context.Background())

	require.Zero(t, reg.InFlightCount())
	require.Zero(t, reg.TodoCount())
	done := byURI(reg.Done())
	require.Len(t, done, 2)
	boom := done["http://x/boom"]
	require.Equal(t, warmer.CacheStatusError, boom.CacheStatus)
	require.Equal(t, warmer.HTTPStatusUnset, boom.HTTPStatus)
	require.Contains(t, boom.Err, "decoder exploded")
	require.Equal(t, warmer.CacheStatusHit, done["http://x/ok"].CacheStatus)
	require.Equal(t, 1, logs.FilterMessage("panic while processing resource").Len())
}

func TestWorker_MislabeledEncodingStillClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set(classify.CacheStatusHeader, "HIT")
		_, _ = w.Write([]byte("<html>are you a ROBOT?</html>"))
	}))
	defer srv.Close()

	reg := registry.New([]string{srv.URL + "/captcha"})
	fetcher := httpfetch.New(httpfetch.Config{KeepAlive: true, Compression: true})

	New(reg, fetcher, classify.New("ROBOT"), nil, fakeClock{}, Config{}, zap.NewNop()).Run(context.Background())

	require.True(t, reg.CaptchaDetected())
	done := reg.Done()
	require.Len(t, done, 1)
	require.Equal(t, warmer.CacheStatusHit, done[0].CacheStatus)
	require.Equal(t, http.StatusOK, done[0].HTTPStatus)
	require.True(t, done[0].CaptchaFound)
	require.Empty(t, done[0].Err)
}

func TestWorker_CaptchaStopsSingleWorker(t *testing.T) {
	t.Parallel()

	// Resources are popped from the back: d, c, b, a.
	reg := registry.New([]string{"http://x/a", "http://x/b", "http://x/c", "http://x/d"})
	fetcher := &fakeFetcher{
		responses: map[string]warmer.FetchResponse{
			"http://x/d": response(http.StatusOK, "MISS", "fine"),
			"http://x/c": response(http.StatusOK, "HIT", "prove you are not a ROBOT"),
		},
	}

	New(reg, fetcher, classify.New("ROBOT"), nil, fakeClock{}, Config{}, zap.NewNop()).Run(context.Background())

	require.True(t, reg.CaptchaDetected())
	require.Equal(t, 2, reg.DoneCount())
	require.Equal(t, 2, reg.TodoCount())
	require.Equal(t, []string{"http://x/d", "http://x/c"}, fetcher.calls())
}

func TestWorker_CaptchaStopsPool(t *testing.T) {
	t.Parallel()

	uris := []string{"http://x/1", "http://x/2", "http://x/3", "http://x/4"}
	reg := registry.New(uris)
	fetcher := &fakeFetcher{
		responses: map[string]warmer.FetchResponse{
			"http://x/1": response(http.StatusOK, "MISS", ""),
			"http://x/2": response(http.StatusOK, "HIT", "<h1>ROBOT</h1>"),
			"http://x/3": response(http.StatusOK, "MISS", ""),
			"http://x/4": response(http.StatusOK, "MISS", ""),
		},
	}
	classifier := classify.New("ROBOT")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			New(reg, fetcher, classifier, nil, fakeClock{}, Config{Index: i}, zap.NewNop()).Run(context.Background())
		}(i)
	}
	wg.Wait()

	require.True(t, reg.CaptchaDetected())
	done := byURI(reg.Done())
	require.GreaterOrEqual(t, len(done), 1)
	require.LessOrEqual(t, len(done), 4)
	second, ok := done["http://x/2"]
	require.True(t, ok)
	require.Equal(t, warmer.CacheStatusHit, second.CacheStatus)
	require.True(t, second.CaptchaFound)
	require.Equal(t, 4, reg.DoneCount()+reg.TodoCount()+reg.InFlightCount())
}

func TestWorker_CancelLetsInFlightRequestFinish(t *testing.T) {
	t.Parallel()

	reg := registry.New([]string{"http://x/a", "http://x/b"})
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		New(reg, fetcher, classify.New(""), nil, fakeClock{}, Config{}, zap.NewNop()).Run(ctx)
		close(finished)
	}()

	<-fetcher.started
	cancel()
	close(fetcher.release)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	require.NoError(t, fetcher.ctxErr, "in-flight request must not be aborted")
	require.Equal(t, 1, reg.DoneCount())
	require.Equal(t, 1, reg.TodoCount())
}

func TestWorker_DelayIsAppliedPerRequest(t *testing.T) {
	t.Parallel()

	reg := registry.New([]string{"http://x/a", "http://x/b", "http://x/c"})
	fetcher := &fakeFetcher{responses: map[string]warmer.FetchResponse{}}
	w := New(reg, fetcher, classify.New(""), nil, fakeClock{}, Config{Delay: 30 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	w.Run(context.Background())
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	require.Equal(t, 3, reg.DoneCount())
}

func TestWorker_DelayInterruptedByCancel(t *testing.T) {
	t.Parallel()

	reg := registry.New([]string{"http://x/a", "http://x/b"})
	fetcher := &fakeFetcher{responses: map[string]warmer.FetchResponse{}}
	ctx, cancel := context.WithCancel(context.Background())
	w := New(reg, fetcher, classify.New(""), nil, fakeClock{}, Config{Delay: time.Hour}, zap.NewNop())

	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()
	require.Eventually(t, func() bool { return reg.DoneCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker did not wake from delay on cancel")
	}
	require.Equal(t, 1, reg.TodoCount())
}

func response(status int, cacheStatus, body string) warmer.FetchResponse {
	h := http.Header{}
	if cacheStatus != "" {
		h.Set(classify.CacheStatusHeader, cacheStatus)
	}
	return warmer.FetchResponse{StatusCode: status, Headers: h, Body: []byte(body)}
}

func byURI(resources []warmer.Resource) map[string]warmer.Resource {
	out := make(map[string]warmer.Resource, len(resources))
	for _, r := range resources {
		out[r.URI] = r
	}
	return out
}

type fakeFetcher struct {
	responses map[string]warmer.FetchResponse
	errs      map[string]error

	mu      sync.Mutex
	visited []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req warmer.FetchRequest) (warmer.FetchResponse, error) {
	f.mu.Lock()
	f.visited = append(f.visited, req.URI)
	f.mu.Unlock()
	if err, ok := f.errs[req.URI]; ok {
		return warmer.FetchResponse{}, err
	}
	resp, ok := f.responses[req.URI]
	if !ok {
		resp = response(http.StatusOK, "", "")
	}
	resp.URI = req.URI
	return resp, nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

type panickingFetcher struct {
	fakeFetcher
	panicOn string
}

func (f *panickingFetcher) Fetch(ctx context.Context, req warmer.FetchRequest) (warmer.FetchResponse, error) {
	if req.URI == f.panicOn {
		panic("decoder exploded")
	}
	return f.fakeFetcher.Fetch(ctx, req)
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  error
}

func (f *blockingFetcher) Fetch(ctx context.Context, req warmer.FetchRequest) (warmer.FetchResponse, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	f.ctxErr = ctx.Err()
	if f.ctxErr != nil {
		return warmer.FetchResponse{}, errors.New("aborted")
	}
	return warmer.FetchResponse{URI: req.URI, StatusCode: http.StatusOK}, nil
}

type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Unix(100, 0) }

type recordingEmitter struct {
	mu  sync.Mutex
	got []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, evt)
}

func (r *recordingEmitter) events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.got...)
}
