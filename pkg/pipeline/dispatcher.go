// Package pipeline turns incoming chat messages into annotation
// output. One message fans out into at most max_per_message requests;
// each passes the rate limiters, queues on the concurrency gate, runs
// its annotator at most once per key through the result cache, and
// emits lines as they become ready. Failures never reach the channel;
// they are logged and counted only.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/annobot/annobot/pkg/annotate"
	"github.com/annobot/annobot/pkg/config"
	"github.com/annobot/annobot/pkg/fetch"
	"github.com/annobot/annobot/pkg/ratelimit"
	"github.com/annobot/annobot/pkg/resultcache"
)

// globalScope is the rate-limit scope shared by all traffic.
const globalScope = "global"

// Sink receives finished annotation lines. Implementations must be
// safe for concurrent use; lines for one message may arrive in any
// order.
type Sink interface {
	Emit(origin annotate.Origin, line string)
}

// Dispatcher owns the shared pipeline state. Construct with New, then
// feed it messages with HandleMessage.
type Dispatcher struct {
	store      *config.Store
	registry   *annotate.Registry
	cache      *resultcache.Cache
	gate       *Gate
	limGlobal  *ratelimit.Limiter
	limChannel *ratelimit.Limiter
	sink       Sink
	log        zerolog.Logger

	wg sync.WaitGroup
}

// New builds a dispatcher from the store's current snapshot. The
// structural tunables (gate capacity, cache size, bucket rates) are
// fixed at construction; per-request tunables (caps, bounds, ignore
// list, credentials) come from the snapshot active when each message
// arrives.
func New(store *config.Store, sink Sink, log zerolog.Logger) *Dispatcher {
	cfg := store.Current()
	cache := resultcache.New(cfg.Pipeline.CacheEntries, time.Duration(cfg.Pipeline.CacheTimeSecs)*time.Second)
	cache.Observe(cacheHits.Inc, cacheMisses.Inc)
	return &Dispatcher{
		store:      store,
		registry:   annotate.NewRegistry(fetch.New()),
		cache:      cache,
		gate:       NewGate(cfg.Pipeline.MaxConcurrency),
		limGlobal:  ratelimit.New(cfg.Pipeline.GlobalRate.Burst, cfg.Pipeline.GlobalRate.PerSecond),
		limChannel: ratelimit.New(cfg.Pipeline.ChannelRate.Burst, cfg.Pipeline.ChannelRate.PerSecond),
		sink:       sink,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Cache exposes the result cache for the periodic sweep job.
func (d *Dispatcher) Cache() *resultcache.Cache { return d.cache }

// Limiters exposes the rate limiters for the periodic prune job.
func (d *Dispatcher) Limiters() (global, channel *ratelimit.Limiter) {
	return d.limGlobal, d.limChannel
}

// HandleMessage extracts candidates from one chat message and
// schedules the surviving ones. Extraction, filtering and admission
// happen synchronously in source order; execution and emission are
// concurrent and unordered.
func (d *Dispatcher) HandleMessage(ctx context.Context, origin annotate.Origin, text string) {
	cfg := d.store.Current()
	log := d.log.With().
		Str("trace", xid.New().String()).
		Str("network", origin.Network).
		Str("channel", origin.Channel).
		Logger()

	admitted := 0
	for _, req := range extractCandidates(origin, text) {
		if req.Kind == annotate.KindURL && cfg.IgnoreURL(req.URL.String()) {
			droppedTotal.WithLabelValues("ignored").Inc()
			continue
		}
		if admitted >= cfg.Pipeline.MaxPerMessage {
			droppedTotal.WithLabelValues("capped").Inc()
			continue
		}
		admitted++

		ann := d.registry.Select(cfg, req)
		if ann == nil {
			droppedTotal.WithLabelValues("unavailable").Inc()
			continue
		}
		channelScope := origin.Network + "/" + origin.Channel
		if !d.limGlobal.Allow(globalScope) || !d.limChannel.Allow(channelScope) {
			droppedTotal.WithLabelValues("ratelimited").Inc()
			continue
		}

		requestsTotal.WithLabelValues(ann.Name()).Inc()
		d.wg.Add(1)
		go d.run(log.WithContext(ctx), cfg, req, ann)
	}
}

// run executes one admitted request under the gate and the runtime
// deadline. The gate slot is held for the full producer run and
// released on every path, including cancellation.
func (d *Dispatcher) run(ctx context.Context, cfg *config.Config, req annotate.Request, ann annotate.Annotator) {
	defer d.wg.Done()
	log := zerolog.Ctx(ctx).With().Str("key", req.Key).Str("annotator", ann.Name()).Logger()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Pipeline.MaxRuntimeSecs)*time.Second)
	defer cancel()

	if err := d.gate.Acquire(ctx); err != nil {
		droppedTotal.WithLabelValues("queue_timeout").Inc()
		log.Debug().Msg("Dropped while waiting for an execution slot")
		return
	}
	defer d.gate.Release()

	lines, err := d.cache.GetOrExecute(ctx, req.Key, func(pctx context.Context) (resultcache.Lines, error) {
		out, err := ann.Produce(pctx, d.registry.Env(cfg, req))
		return resultcache.Lines(out), err
	})
	if err != nil {
		kind := classifyFailure(err)
		failuresTotal.WithLabelValues(kind).Inc()
		log.Debug().Err(err).Str("kind", kind).Msg("Request produced no output")
		return
	}

	for _, line := range lines {
		d.sink.Emit(req.Origin, line)
		linesEmitted.Inc()
	}
}

// Wait blocks until all in-flight requests finish. Used on shutdown
// and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// classifyFailure maps a producer failure to a stable metrics label.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, fetch.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, fetch.ErrSizeLimit):
		return "size_limit"
	case errors.Is(err, fetch.ErrChunkLimit):
		return "chunk_limit"
	case errors.Is(err, fetch.ErrNotGloballyRoutable):
		return "not_routable"
	case errors.Is(err, fetch.ErrTooManyRedirects):
		return "redirects"
	case errors.Is(err, annotate.ErrNoContent):
		return "no_content"
	case errors.Is(err, annotate.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "fetch"
	}
}
