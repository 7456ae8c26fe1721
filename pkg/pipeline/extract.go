package pipeline

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/annobot/annobot/pkg/annotate"
)

// urlRE matches bare http/https URLs in chat text.
var urlRE = regexp.MustCompile(`https?://[^\s<>\[\]()'"]+[^\s<>\[\]()'",.:;!?]`)

// commandRE matches an explicit command at the start of a message:
// "!name args".
var commandRE = regexp.MustCompile(`^!(\w+)(?:\s+(.*))?$`)

// extractCandidates scans text for annotation candidates in source
// order: one explicit command when the message starts with a known
// command token, otherwise every unique bare URL. No filtering or
// capping happens here.
func extractCandidates(origin annotate.Origin, text string) []annotate.Request {
	text = strings.TrimSpace(text)

	if m := commandRE.FindStringSubmatch(text); m != nil {
		if annotate.IsCommand(m[1]) {
			return []annotate.Request{annotate.NewCommandRequest(origin, m[1], m[2])}
		}
		return nil
	}

	var reqs []annotate.Request
	seen := make(map[string]bool)
	for _, match := range urlRE.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:!?")
		u, err := url.Parse(match)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		req := annotate.NewURLRequest(origin, u)
		if seen[req.Key] {
			continue
		}
		seen[req.Key] = true
		reqs = append(reqs, req)
	}
	return reqs
}
