// Package annotate maps extracted requests to the annotator that can
// produce chat lines for them. The set of annotators is closed:
// specialized API-backed ones for recognized hosts and commands, and a
// generic page-metadata extractor as the URL fallback. Specialized
// annotators whose credential is missing simply deactivate; they never
// fail a request.
package annotate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/annobot/annobot/pkg/config"
	"github.com/annobot/annobot/pkg/fetch"
)

// maxLineBytes is the byte budget for one emitted chat line.
const maxLineBytes = 400

var (
	// ErrNoContent means the target had nothing worth annotating.
	ErrNoContent = errors.New("no annotatable content")
	// ErrUnavailable means the selected annotator is missing its
	// credential. Callers stay silent about it.
	ErrUnavailable = errors.New("annotator unavailable")
)

// Env carries what one Produce call may use: the request, the config
// snapshot it runs against, and the shared clients.
type Env struct {
	Request Request
	Config  *config.Config
	Fetcher *fetch.Fetcher
	API     *http.Client
}

// Annotator produces chat lines for a request. It may call the safe
// fetcher zero or more times and must respect ctx's deadline.
type Annotator interface {
	Name() string
	Produce(ctx context.Context, env Env) ([]string, error)
}

// Registry selects annotators. Selection is pure: it depends only on
// the request and which credentials the snapshot carries.
type Registry struct {
	fetcher *fetch.Fetcher
	api     *http.Client
}

// NewRegistry creates a registry sharing one safe fetcher and one API
// client across all annotators.
func NewRegistry(fetcher *fetch.Fetcher) *Registry {
	return &Registry{
		fetcher: fetcher,
		api:     &http.Client{},
	}
}

// Env builds the produce environment for req against cfg.
func (r *Registry) Env(cfg *config.Config, req Request) Env {
	return Env{
		Request: req,
		Config:  cfg,
		Fetcher: r.fetcher,
		API:     r.api,
	}
}

// commandNames lists the explicit command tokens the dispatcher should
// extract. Whether a command actually runs still depends on its
// credential being configured.
var commandNames = map[string]bool{
	"imdb": true,
	"wa":   true,
	"calc": true,
	"ddg":  true,
}

// IsCommand reports whether name is a recognized command token.
func IsCommand(name string) bool {
	return commandNames[strings.ToLower(name)]
}

// Select returns the annotator for req, or nil when nothing should
// run (unconfigured command). URL requests always get at least the
// generic page annotator.
func (r *Registry) Select(cfg *config.Config, req Request) Annotator {
	switch req.Kind {
	case KindCommand:
		return r.selectCommand(cfg, req)
	default:
		return r.selectURL(cfg, req)
	}
}

func (r *Registry) selectCommand(cfg *config.Config, req Request) Annotator {
	switch req.Command {
	case "imdb":
		if cfg.Annotators.OMDB.APIKey != "" {
			return &omdbAnnotator{}
		}
	case "wa":
		if cfg.Annotators.Wolfram.AppID != "" {
			return &wolframAnnotator{}
		}
	case "calc":
		return &calcAnnotator{}
	case "ddg":
		if cfg.Annotators.Search.Enabled {
			return &searchAnnotator{}
		}
	}
	return nil
}

func (r *Registry) selectURL(cfg *config.Config, req Request) Annotator {
	if cfg.Annotators.YouTube.APIKey != "" {
		if id := extractYouTubeID(req.URL); id != "" {
			return &youtubeAnnotator{videoID: id}
		}
	}
	if cfg.Annotators.OMDB.APIKey != "" {
		if id := extractIMDBID(req.URL); id != "" {
			return &omdbAnnotator{imdbID: id}
		}
	}
	return &pageAnnotator{}
}

// fetchOptions derives the safe-fetch bounds from a config snapshot.
func fetchOptions(cfg *config.Config) fetch.Options {
	return fetch.Options{
		UserAgent:            cfg.HTTP.UserAgent,
		AcceptLanguage:       cfg.HTTP.AcceptLanguage,
		Timeout:              time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		MaxBytes:             int64(cfg.HTTP.MaxKB) * 1024,
		MaxChunks:            cfg.HTTP.MaxChunks,
		GloballyRoutableOnly: cfg.GloballyRoutableOnly(),
	}
}
