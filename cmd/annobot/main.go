package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/annobot/annobot/pkg/bot"
	"github.com/annobot/annobot/pkg/config"
)

// Filled at build time with the -X linker flag.
var version = "dev"

func main() {
	configPath := flag.String("config", "annobot.yaml", "path to the config file")
	metricsAddr := flag.String("metrics", "", "optional address to serve Prometheus metrics on")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*debug {
		log = log.Level(zerolog.InfoLevel)
	}
	log.Info().Str("version", version).Str("config", *configPath).Msg("Starting annobot")

	store, err := config.NewStore(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	transport := newStdioTransport()
	runtime, err := bot.New(store, transport, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble runtime")
	}
	if err := runtime.Run(ctx, transport); err != nil {
		log.Fatal().Err(err).Msg("Runtime exited with error")
	}
	log.Info().Msg("Shutdown complete")
}
