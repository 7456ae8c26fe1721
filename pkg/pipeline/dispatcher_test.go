package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/annobot/annobot/pkg/annotate"
	"github.com/annobot/annobot/pkg/config"
)

type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *captureSink) Emit(_ annotate.Origin, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *captureSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func pipelineConfig(t *testing.T, mutate func(*config.Config)) *config.Store {
	t.Helper()
	cfg := config.Default()
	off := false
	cfg.HTTP.GloballyRoutableOnly = &off
	cfg.HTTP.TimeoutSecs = 2
	cfg.Pipeline.MaxRuntimeSecs = 3
	cfg.Pipeline.GlobalRate = config.RateConfig{Burst: 100, PerSecond: 100}
	cfg.Pipeline.ChannelRate = config.RateConfig{Burst: 100, PerSecond: 100}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return config.NewStaticStore(cfg)
}

func titleServer(t *testing.T, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>Example Domain</title></head></html>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

var testOrigin = annotate.Origin{Network: "libera", Channel: "#go", Nick: "gopher"}

func TestEndToEndFetchAndCache(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, nil)
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	msg := "check " + srv.URL + "/ out"
	d.HandleMessage(context.Background(), testOrigin, msg)
	d.Wait()

	lines := sink.all()
	if len(lines) != 1 || !strings.Contains(lines[0], "Example Domain") {
		t.Fatalf("lines = %v", lines)
	}
	if fetches.Load() != 1 {
		t.Fatalf("fetches = %d, want 1", fetches.Load())
	}

	// Same message again within the TTL: same output, no new fetch.
	d.HandleMessage(context.Background(), testOrigin, msg)
	d.Wait()
	lines = sink.all()
	if len(lines) != 2 {
		t.Fatalf("lines after repeat = %v", lines)
	}
	if lines[1] != lines[0] {
		t.Fatalf("cached line differs: %q vs %q", lines[1], lines[0])
	}
	if fetches.Load() != 1 {
		t.Fatalf("fetches after repeat = %d, want 1", fetches.Load())
	}
}

func TestPerMessageCap(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, func(cfg *config.Config) {
		cfg.Pipeline.MaxPerMessage = 2
	})
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	msg := fmt.Sprintf("%s/a %s/b %s/c %s/d", srv.URL, srv.URL, srv.URL, srv.URL)
	d.HandleMessage(context.Background(), testOrigin, msg)
	d.Wait()

	if got := len(sink.all()); got != 2 {
		t.Fatalf("emitted %d lines, want 2", got)
	}
	if fetches.Load() != 2 {
		t.Fatalf("fetches = %d, want 2", fetches.Load())
	}
}

func TestIgnoreListFiltersBeforeCap(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, func(cfg *config.Config) {
		cfg.Pipeline.MaxPerMessage = 2
		cfg.HTTP.IgnoreURL = []string{`/boring`}
	})
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	// The ignored URL comes first; it must not consume a cap slot.
	msg := fmt.Sprintf("%s/boring %s/a %s/b", srv.URL, srv.URL, srv.URL)
	d.HandleMessage(context.Background(), testOrigin, msg)
	d.Wait()

	if got := len(sink.all()); got != 2 {
		t.Fatalf("emitted %d lines, want 2", got)
	}
	for _, line := range sink.all() {
		if strings.Contains(line, "boring") {
			t.Fatalf("ignored URL produced output: %q", line)
		}
	}
	if fetches.Load() != 2 {
		t.Fatalf("fetches = %d, want 2", fetches.Load())
	}
}

func TestIgnoredOnlyMessageIsSilent(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, func(cfg *config.Config) {
		cfg.HTTP.IgnoreURL = []string{`example|127\.0\.0\.1`}
	})
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	d.HandleMessage(context.Background(), testOrigin, srv.URL+"/page")
	d.Wait()

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("expected silence, got %v", got)
	}
	if fetches.Load() != 0 {
		t.Fatalf("fetches = %d, want 0", fetches.Load())
	}
}

func TestRateLimitDropsSilently(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, func(cfg *config.Config) {
		cfg.Pipeline.MaxPerMessage = 5
		cfg.Pipeline.GlobalRate = config.RateConfig{Burst: 1, PerSecond: 0.001}
	})
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	msg := fmt.Sprintf("%s/a %s/b %s/c", srv.URL, srv.URL, srv.URL)
	d.HandleMessage(context.Background(), testOrigin, msg)
	d.Wait()

	if got := len(sink.all()); got != 1 {
		t.Fatalf("emitted %d lines, want 1 admitted", got)
	}
}

func TestChannelRateLimitIsPerChannel(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, func(cfg *config.Config) {
		cfg.Pipeline.ChannelRate = config.RateConfig{Burst: 1, PerSecond: 0.001}
	})
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	ctx := context.Background()
	d.HandleMessage(ctx, annotate.Origin{Network: "libera", Channel: "#a"}, srv.URL+"/x")
	d.HandleMessage(ctx, annotate.Origin{Network: "libera", Channel: "#a"}, srv.URL+"/y")
	// A different channel has its own bucket.
	d.HandleMessage(ctx, annotate.Origin{Network: "libera", Channel: "#b"}, srv.URL+"/z")
	d.Wait()

	if got := len(sink.all()); got != 2 {
		t.Fatalf("emitted %d lines, want 2", got)
	}
}

func TestFailuresProduceNoOutput(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	store := pipelineConfig(t, nil)
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	d.HandleMessage(context.Background(), testOrigin, srv.URL+"/missing")
	d.Wait()

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("expected silence on failure, got %v", got)
	}
}

func TestFailureRetriedOnNextMessage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><title>Recovered</title></html>"))
	}))
	defer srv.Close()
	store := pipelineConfig(t, nil)
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	d.HandleMessage(context.Background(), testOrigin, srv.URL+"/page")
	d.Wait()
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("first attempt should fail silently, got %v", got)
	}

	// A fresh identical message gets a fresh attempt: the failure was
	// not cached.
	d.HandleMessage(context.Background(), testOrigin, srv.URL+"/page")
	d.Wait()
	got := sink.all()
	if len(got) != 1 || !strings.Contains(got[0], "Recovered") {
		t.Fatalf("retry lines = %v", got)
	}
}

func TestConcurrentSameURLFetchesOnce(t *testing.T) {
	var fetches atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		<-release
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><title>Shared</title></html>"))
	}))
	defer srv.Close()
	store := pipelineConfig(t, nil)
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d.HandleMessage(ctx, testOrigin, srv.URL+"/shared")
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	d.Wait()

	if fetches.Load() != 1 {
		t.Fatalf("fetches = %d, want 1 for concurrent identical requests", fetches.Load())
	}
	if got := len(sink.all()); got != 5 {
		t.Fatalf("emitted %d lines, want 5", got)
	}
}

func TestCommandMessage(t *testing.T) {
	store := pipelineConfig(t, nil)
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	d.HandleMessage(context.Background(), testOrigin, "!calc (1+3)*10")
	d.Wait()

	got := sink.all()
	if len(got) != 1 || !strings.Contains(got[0], "= 40") {
		t.Fatalf("lines = %v", got)
	}
}

func TestGateReleasedAfterRuns(t *testing.T) {
	var fetches atomic.Int32
	srv := titleServer(t, &fetches)
	store := pipelineConfig(t, func(cfg *config.Config) {
		cfg.Pipeline.MaxConcurrency = 1
	})
	sink := &captureSink{}
	d := New(store, sink, zerolog.Nop())

	// With one slot, sequential messages still all complete; a leaked
	// slot would hang the second run until its deadline.
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d.HandleMessage(ctx, testOrigin, fmt.Sprintf("%s/p%d", srv.URL, i))
		d.Wait()
	}
	if got := len(sink.all()); got != 3 {
		t.Fatalf("emitted %d lines, want 3", got)
	}
}
