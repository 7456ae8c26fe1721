package annotate

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/annobot/annobot/pkg/shared/stringutil"
)

// pageAnnotator is the generic fallback: fetch the page and extract a
// title and, when present, a description.
type pageAnnotator struct{}

func (a *pageAnnotator) Name() string { return "page" }

func (a *pageAnnotator) Produce(ctx context.Context, env Env) ([]string, error) {
	res, err := env.Fetcher.Fetch(ctx, env.Request.URL.String(), fetchOptions(env.Config))
	if err != nil {
		return nil, err
	}
	if ct := res.ContentType; ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return nil, fmt.Errorf("%w: content type %s", ErrNoContent, ct)
	}

	title, desc := extractMeta(res.Body)
	if title == "" {
		return nil, fmt.Errorf("%w: no title", ErrNoContent)
	}

	host := res.FinalURL.Hostname()
	lines := []string{formatHostLine(host, title)}
	if desc != "" && desc != title {
		lines = append(lines, formatHostLine(host, desc))
	}
	return lines, nil
}

// extractMeta pulls title and description from HTML, preferring
// OpenGraph tags and falling back to <title> and meta description.
func extractMeta(body []byte) (title, desc string) {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err == nil {
		title = og.Title
		desc = og.Description
	}
	if title != "" && desc != "" {
		return title, desc
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return title, desc
	}
	if title == "" {
		title = doc.Find("title").First().Text()
	}
	if desc == "" {
		desc, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	}
	return title, desc
}

func formatHostLine(host, text string) string {
	return fmt.Sprintf("[%s] %s", stringutil.Sanitize(host, 40), stringutil.Sanitize(text, maxLineBytes))
}
