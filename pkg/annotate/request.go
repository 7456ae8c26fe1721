package annotate

import (
	"net/url"
	"strings"
)

// Kind tags what a Request asks for.
type Kind int

const (
	KindURL Kind = iota
	KindCommand
)

// Origin identifies where a request came from.
type Origin struct {
	Network string
	Channel string
	Nick    string
}

// Request is one unit of annotation work. Immutable once created; Key
// uniquely determines its cache and in-flight identity.
type Request struct {
	Kind    Kind
	Origin  Origin
	URL     *url.URL // set for KindURL
	Command string   // set for KindCommand
	Args    string
	Key     string
}

// NewURLRequest builds a request for a bare URL found in a message.
func NewURLRequest(origin Origin, u *url.URL) Request {
	return Request{
		Kind:   KindURL,
		Origin: origin,
		URL:    u,
		Key:    "url:" + canonicalURL(u),
	}
}

// NewCommandRequest builds a request for an explicit command token.
func NewCommandRequest(origin Origin, command, args string) Request {
	command = strings.ToLower(command)
	return Request{
		Kind:    KindCommand,
		Origin:  origin,
		Command: command,
		Args:    strings.TrimSpace(args),
		Key:     "cmd:" + command + " " + strings.TrimSpace(args),
	}
}

// canonicalURL normalizes the parts of a URL that never change its
// content, so trivially different spellings share one cache entry.
func canonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}
