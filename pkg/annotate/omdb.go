package annotate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/annobot/annobot/pkg/shared/httputil"
	"github.com/annobot/annobot/pkg/shared/stringutil"
)

var omdbAPIBase = "https://www.omdbapi.com/"

// omdbAnnotator answers `!imdb` commands and imdb.com title links via
// the OMDb API.
type omdbAnnotator struct {
	imdbID string // set when selected for a title URL
}

func (a *omdbAnnotator) Name() string { return "omdb" }

type omdbResponse struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Rated      string `json:"Rated"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Plot       string `json:"Plot"`
	ImdbRating string `json:"imdbRating"`
	ImdbVotes  string `json:"imdbVotes"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
}

var imdbIDRe = regexp.MustCompile(`^tt\d+$`)

func (a *omdbAnnotator) Produce(ctx context.Context, env Env) ([]string, error) {
	key := env.Config.Annotators.OMDB.APIKey
	if key == "" {
		return nil, ErrUnavailable
	}

	params := url.Values{"apikey": {key}}
	switch {
	case a.imdbID != "":
		params.Set("i", a.imdbID)
	case imdbIDRe.MatchString(env.Request.Args):
		params.Set("i", env.Request.Args)
	case env.Request.Args != "":
		params.Set("t", env.Request.Args)
	default:
		return nil, fmt.Errorf("%w: empty query", ErrNoContent)
	}

	var resp omdbResponse
	if err := httputil.GetJSON(ctx, env.API, omdbAPIBase, params, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Response, "True") {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, resp.Error)
	}

	head := resp.Title
	if resp.Year != "" {
		head += " (" + resp.Year + ")"
	}
	parts := []string{head}
	for _, p := range []string{resp.Rated, resp.Runtime, resp.Genre, resp.Director} {
		if p != "" && p != "N/A" {
			parts = append(parts, p)
		}
	}
	if resp.ImdbRating != "" && resp.ImdbRating != "N/A" {
		rating := "★ " + resp.ImdbRating
		if resp.ImdbVotes != "" && resp.ImdbVotes != "N/A" {
			rating += " (" + resp.ImdbVotes + " votes)"
		}
		parts = append(parts, rating)
	}

	lines := []string{stringutil.Sanitize("[IMDb] "+strings.Join(parts, " | "), maxLineBytes)}
	if resp.Plot != "" && resp.Plot != "N/A" {
		lines = append(lines, stringutil.Sanitize("[IMDb] "+resp.Plot, maxLineBytes))
	}
	return lines, nil
}

// extractIMDBID returns the title id from imdb.com/title/<id> URLs.
func extractIMDBID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host != "imdb.com" && host != "www.imdb.com" && host != "m.imdb.com" {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) >= 2 && segs[0] == "title" && imdbIDRe.MatchString(segs[1]) {
		return segs[1]
	}
	return ""
}
