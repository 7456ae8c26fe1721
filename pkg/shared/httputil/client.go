package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxAPIBody bounds how much of an API response is read. Annotator
// APIs return small JSON or plain-text payloads.
const maxAPIBody = 1 << 20

// GetJSON issues a GET to base with the given query parameters and
// decodes the JSON response into out.
func GetJSON(ctx context.Context, client *http.Client, base string, params url.Values, out any) error {
	body, err := get(ctx, client, base, params, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// GetText issues a GET to base with the given query parameters and
// returns the response body as a trimmed string.
func GetText(ctx context.Context, client *http.Client, base string, params url.Values) (string, error) {
	body, err := get(ctx, client, base, params, "text/plain")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func get(ctx context.Context, client *http.Client, base string, params url.Values, accept string) ([]byte, error) {
	reqURL := base
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBody))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
