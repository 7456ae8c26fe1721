package annotate

import (
	"context"
	"net/url"

	"github.com/annobot/annobot/pkg/shared/httputil"
	"github.com/annobot/annobot/pkg/shared/stringutil"
)

var ddgAPIBase = "https://api.duckduckgo.com/"

// searchAnnotator answers `!ddg` queries with the DuckDuckGo instant
// answer API. No credential needed; it is gated by config only.
type searchAnnotator struct{}

func (a *searchAnnotator) Name() string { return "search" }

type ddgResponse struct {
	Answer       string `json:"Answer"`
	AbstractText string `json:"AbstractText"`
	AbstractURL  string `json:"AbstractURL"`
	Definition   string `json:"Definition"`
	Heading      string `json:"Heading"`
}

func (a *searchAnnotator) Produce(ctx context.Context, env Env) ([]string, error) {
	if env.Request.Args == "" {
		return nil, nil
	}
	var resp ddgResponse
	err := httputil.GetJSON(ctx, env.API, ddgAPIBase, url.Values{
		"q":             {env.Request.Args},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	answer := resp.Answer
	if answer == "" {
		answer = resp.AbstractText
	}
	if answer == "" {
		answer = resp.Definition
	}
	if answer == "" {
		// No instant answer is a normal outcome; stay silent.
		return nil, nil
	}
	line := "[DDG] "
	if resp.Heading != "" {
		line += resp.Heading + ": "
	}
	line += answer
	if resp.AbstractURL != "" && resp.Answer == "" {
		line += " | " + resp.AbstractURL
	}
	return []string{stringutil.Sanitize(line, maxLineBytes)}, nil
}
