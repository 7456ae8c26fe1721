// Package config holds the bot configuration. A loaded Config is an
// immutable snapshot: reloads build a fresh Config and swap it in
// atomically, so work that started against an older snapshot keeps
// seeing consistent values.
package config

import (
	"fmt"
	"os"
	"regexp"

	"go.mau.fi/util/ptr"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration snapshot.
type Config struct {
	Pipeline   PipelineConfig           `yaml:"pipeline"`
	HTTP       HTTPConfig               `yaml:"http"`
	Annotators AnnotatorsConfig         `yaml:"annotators"`
	Networks   map[string]NetworkConfig `yaml:"networks"`

	// Compiled form of HTTP.IgnoreURL, populated by Validate.
	ignoreURL []*regexp.Regexp
}

// PipelineConfig tunes admission and execution of extracted requests.
type PipelineConfig struct {
	MaxConcurrency int        `yaml:"max_concurrency"`  // global in-flight cap
	MaxRuntimeSecs int        `yaml:"max_runtime_secs"` // per-request deadline, fetch + annotate
	MaxPerMessage  int        `yaml:"max_per_message"`  // candidate cap per chat message
	CacheTimeSecs  int        `yaml:"cache_time_secs"`  // result TTL
	CacheEntries   int        `yaml:"cache_entries"`    // result cache capacity
	GlobalRate     RateConfig `yaml:"global_rate"`
	ChannelRate    RateConfig `yaml:"channel_rate"`
}

// RateConfig describes one token bucket: Burst tokens capacity,
// refilled at PerSecond tokens per second.
type RateConfig struct {
	Burst     int     `yaml:"burst"`
	PerSecond float64 `yaml:"per_second"`
}

// HTTPConfig tunes the safe fetcher.
type HTTPConfig struct {
	TimeoutSecs          int      `yaml:"timeout_secs"` // fetch-only sub-deadline
	MaxKB                int      `yaml:"max_kb"`       // body size cap, KiB
	MaxChunks            int      `yaml:"max_chunks"`   // body chunk count cap
	GloballyRoutableOnly *bool    `yaml:"globally_routable_only"`
	UserAgent            string   `yaml:"user_agent"`
	AcceptLanguage       string   `yaml:"accept_language"`
	IgnoreURL            []string `yaml:"ignore_url"` // regexes; matching URLs are discarded
}

// AnnotatorsConfig carries optional credentials for the specialized
// annotators. A missing credential deactivates that annotator, it is
// never an error.
type AnnotatorsConfig struct {
	OMDB    OMDBConfig    `yaml:"omdb"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Wolfram WolframConfig `yaml:"wolfram"`
	Search  SearchConfig  `yaml:"search"`
}

type OMDBConfig struct {
	APIKey string `yaml:"api_key"`
}

type YouTubeConfig struct {
	APIKey string `yaml:"api_key"`
	Lang   string `yaml:"lang"`
}

type WolframConfig struct {
	AppID string `yaml:"app_id"`
}

type SearchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NetworkConfig describes one chat network connection. It is consumed
// by the transport layer, not by the request pipeline.
type NetworkConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port"`
	Nick     string   `yaml:"nick"`
	Channels []string `yaml:"channels"`
}

// Default returns a Config with working defaults for everything that
// does not require credentials.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxConcurrency: 8,
			MaxRuntimeSecs: 20,
			MaxPerMessage:  3,
			CacheTimeSecs:  1800,
			CacheEntries:   256,
			GlobalRate:     RateConfig{Burst: 10, PerSecond: 2},
			ChannelRate:    RateConfig{Burst: 4, PerSecond: 0.5},
		},
		HTTP: HTTPConfig{
			TimeoutSecs:          10,
			MaxKB:                256,
			MaxChunks:            64,
			GloballyRoutableOnly: ptr.Ptr(true),
			UserAgent:            "Mozilla/5.0 annobot",
			AcceptLanguage:       "en-US,en;q=0.9",
		},
	}
}

// Load reads and validates a config file, applying defaults for
// absent fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and compiles the ignore patterns.
func (c *Config) Validate() error {
	p := &c.Pipeline
	if p.MaxConcurrency < 1 {
		return fmt.Errorf("pipeline.max_concurrency must be at least 1")
	}
	if p.MaxRuntimeSecs < 1 {
		return fmt.Errorf("pipeline.max_runtime_secs must be at least 1")
	}
	if p.MaxPerMessage < 1 {
		return fmt.Errorf("pipeline.max_per_message must be at least 1")
	}
	if p.CacheTimeSecs < 1 {
		return fmt.Errorf("pipeline.cache_time_secs must be at least 1")
	}
	if p.CacheEntries < 1 {
		return fmt.Errorf("pipeline.cache_entries must be at least 1")
	}
	for _, rc := range []struct {
		name string
		rate RateConfig
	}{{"global_rate", p.GlobalRate}, {"channel_rate", p.ChannelRate}} {
		if rc.rate.Burst < 1 {
			return fmt.Errorf("pipeline.%s.burst must be at least 1", rc.name)
		}
		if rc.rate.PerSecond <= 0 {
			return fmt.Errorf("pipeline.%s.per_second must be positive", rc.name)
		}
	}

	h := &c.HTTP
	if h.TimeoutSecs < 1 || h.TimeoutSecs > p.MaxRuntimeSecs {
		return fmt.Errorf("http.timeout_secs must be in 1..pipeline.max_runtime_secs (%d)", p.MaxRuntimeSecs)
	}
	if h.MaxKB < 1 || h.MaxKB > 65535 {
		return fmt.Errorf("http.max_kb must be in 1..65535")
	}
	if h.MaxChunks < 1 || h.MaxChunks > 65535 {
		return fmt.Errorf("http.max_chunks must be in 1..65535")
	}
	c.ignoreURL = c.ignoreURL[:0]
	for _, pattern := range h.IgnoreURL {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("http.ignore_url pattern %q: %w", pattern, err)
		}
		c.ignoreURL = append(c.ignoreURL, re)
	}
	return nil
}

// GloballyRoutableOnly reports whether the routability policy is
// enabled. Defaults to true when unset.
func (c *Config) GloballyRoutableOnly() bool {
	if c.HTTP.GloballyRoutableOnly == nil {
		return true
	}
	return ptr.Val(c.HTTP.GloballyRoutableOnly)
}

// IgnoreURL reports whether url matches any configured ignore pattern.
func (c *Config) IgnoreURL(url string) bool {
	for _, re := range c.ignoreURL {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}
