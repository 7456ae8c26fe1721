package annotate

import (
	"context"
	"fmt"
	"net/url"

	"github.com/annobot/annobot/pkg/shared/httputil"
	"github.com/annobot/annobot/pkg/shared/stringutil"
)

var wolframAPIBase = "https://api.wolframalpha.com/v1/result"

// wolframAnnotator answers `!wa` queries through the Wolfram Alpha
// short-answer API, which returns a single plain-text line.
type wolframAnnotator struct{}

func (a *wolframAnnotator) Name() string { return "wolfram" }

func (a *wolframAnnotator) Produce(ctx context.Context, env Env) ([]string, error) {
	appID := env.Config.Annotators.Wolfram.AppID
	if appID == "" {
		return nil, ErrUnavailable
	}
	if env.Request.Args == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNoContent)
	}
	answer, err := httputil.GetText(ctx, env.API, wolframAPIBase, url.Values{
		"appid": {appID},
		"i":     {env.Request.Args},
	})
	if err != nil {
		return nil, err
	}
	if answer == "" {
		return nil, fmt.Errorf("%w: empty answer", ErrNoContent)
	}
	return []string{stringutil.Sanitize("[Wolfram] "+answer, maxLineBytes)}, nil
}
