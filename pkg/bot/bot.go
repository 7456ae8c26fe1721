// Package bot wires the request pipeline to a message source and a
// transport sink and runs the periodic maintenance jobs. The chat
// transport itself lives behind the Source and Sink interfaces.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/annobot/annobot/pkg/annotate"
	"github.com/annobot/annobot/pkg/config"
	"github.com/annobot/annobot/pkg/pipeline"
)

// bucketIdleFor is how long a rate-limit bucket must sit unused before
// the maintenance job drops it. Long enough that any pruned bucket has
// refilled completely.
const bucketIdleFor = time.Hour

// Source yields incoming chat messages. Next blocks until a message
// arrives, ctx is done, or the source is exhausted (io.EOF).
type Source interface {
	Next(ctx context.Context) (annotate.Origin, string, error)
}

// Runtime owns the dispatcher and its maintenance schedule.
type Runtime struct {
	store      *config.Store
	dispatcher *pipeline.Dispatcher
	cron       *cron.Cron
	log        zerolog.Logger
}

// New assembles a runtime from a config store and a transport sink.
func New(store *config.Store, sink pipeline.Sink, log zerolog.Logger) (*Runtime, error) {
	r := &Runtime{
		store:      store,
		dispatcher: pipeline.New(store, sink, log),
		cron:       cron.New(),
		log:        log.With().Str("component", "bot").Logger(),
	}
	if _, err := r.cron.AddFunc("@every 5m", r.maintain); err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	return r, nil
}

// maintain purges expired cache entries and idle rate-limit buckets.
func (r *Runtime) maintain() {
	swept := r.dispatcher.Cache().Sweep()
	global, channel := r.dispatcher.Limiters()
	pruned := global.Prune(bucketIdleFor) + channel.Prune(bucketIdleFor)
	if swept > 0 || pruned > 0 {
		r.log.Debug().Int("cache_swept", swept).Int("buckets_pruned", pruned).Msg("Maintenance pass")
	}
}

// Run consumes src until it is exhausted or ctx is cancelled, then
// waits for in-flight requests to drain. Config reloads (SIGHUP) are
// handled for the lifetime of the loop.
func (r *Runtime) Run(ctx context.Context, src Source) error {
	r.cron.Start()
	defer r.cron.Stop()
	go r.store.WatchSignals(ctx)

	for {
		origin, text, err := src.Next(ctx)
		if err != nil {
			r.dispatcher.Wait()
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		r.dispatcher.HandleMessage(ctx, origin, text)
	}
}
