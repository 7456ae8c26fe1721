// Package fetch retrieves remote pages defensively: bounded body size
// and chunk count, capped redirects, a per-request deadline, and an
// optional policy refusing destinations that are not globally
// routable. Every failure mode is typed so callers can decide how loud
// to be about it.
package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"time"
)

const (
	maxRedirects = 10
	chunkSize    = 4096
)

// Options bounds a single retrieval. Values come from the config
// snapshot the request started with.
type Options struct {
	UserAgent            string
	AcceptLanguage       string
	Timeout              time.Duration
	MaxBytes             int64 // cumulative body cap
	MaxChunks            int   // body read count cap
	GloballyRoutableOnly bool
}

// Result is a completed retrieval.
type Result struct {
	Body        []byte
	FinalURL    *url.URL // after following redirects
	ContentType string
}

// Fetcher issues bounded HTTP GETs. Safe for concurrent use.
type Fetcher struct {
	client *http.Client

	// resolve is a hook for tests; defaults to the system resolver.
	resolve func(ctx context.Context, host string) ([]netip.Addr, error)
}

// New creates a Fetcher with a shared connection pool.
func New() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		resolve: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
	}
}

// Fetch GETs rawURL under the bounds in opts. The routability policy
// is evaluated once against the final post-redirect host; addresses
// can change between that check and later use of the URL by others,
// which is a documented limitation, not a bug to fix here.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Phase: "request", Err: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept-Language", opts.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Phase: "connect", Err: timeoutOr(ctx, err)}
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if opts.GloballyRoutableOnly {
		if err := f.checkRoutable(ctx, final); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{URL: final.String(), Phase: "connect", Err: ErrBadStatus}
	}

	body, err := readBounded(resp.Body, opts.MaxBytes, opts.MaxChunks)
	if err != nil {
		return nil, &Error{URL: final.String(), Phase: "read", Err: timeoutOr(ctx, err)}
	}

	return &Result{
		Body:        body,
		FinalURL:    final,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// checkRoutable resolves the final host and rejects it if any address
// is not publicly routable.
func (f *Fetcher) checkRoutable(ctx context.Context, u *url.URL) error {
	host := u.Hostname()
	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{addr}
	} else {
		var err error
		addrs, err = f.resolve(ctx, host)
		if err != nil {
			return &Error{URL: u.String(), Phase: "resolve", Err: timeoutOr(ctx, err)}
		}
	}
	for _, addr := range addrs {
		if !isGloballyRoutable(addr) {
			return &Error{URL: u.String(), Phase: "resolve", Err: ErrNotGloballyRoutable}
		}
	}
	return nil
}

// readBounded reads r in fixed-size chunks, failing as soon as either
// bound is crossed so an oversized body is never fully buffered.
func readBounded(r io.Reader, maxBytes int64, maxChunks int) ([]byte, error) {
	var body []byte
	buf := make([]byte, chunkSize)
	chunks := 0
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunks++
			if chunks > maxChunks {
				return nil, ErrChunkLimit
			}
			if int64(len(body)+n) > maxBytes {
				return nil, ErrSizeLimit
			}
			body = append(body, buf[:n]...)
		}
		if err == io.EOF {
			return body, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// timeoutOr maps context-deadline failures to ErrTimeout, leaving
// other errors untouched.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
