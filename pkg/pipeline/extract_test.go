package pipeline

import (
	"testing"

	"github.com/annobot/annobot/pkg/annotate"
)

func TestExtractCandidates(t *testing.T) {
	origin := annotate.Origin{Network: "libera", Channel: "#go"}

	tests := []struct {
		name     string
		text     string
		wantKeys []string
	}{
		{
			name:     "single url in prose",
			text:     "check https://example.com/ out",
			wantKeys: []string{"url:https://example.com/"},
		},
		{
			name:     "trailing punctuation stripped",
			text:     "see https://example.com/page.",
			wantKeys: []string{"url:https://example.com/page"},
		},
		{
			name:     "duplicates collapse",
			text:     "https://example.com/ and again https://example.com/#section",
			wantKeys: []string{"url:https://example.com/"},
		},
		{
			name: "multiple urls keep source order",
			text: "https://a.example/ then https://b.example/",
			wantKeys: []string{
				"url:https://a.example/",
				"url:https://b.example/",
			},
		},
		{
			name:     "known command",
			text:     "!calc 1+2*3",
			wantKeys: []string{"cmd:calc 1+2*3"},
		},
		{
			name:     "command is case insensitive",
			text:     "!IMDB The Matrix",
			wantKeys: []string{"cmd:imdb The Matrix"},
		},
		{
			name:     "unknown command yields nothing",
			text:     "!frobnicate now",
			wantKeys: nil,
		},
		{
			name:     "command takes the whole message",
			text:     "!calc 1+1 https://example.com/",
			wantKeys: []string{"cmd:calc 1+1 https://example.com/"},
		},
		{
			name:     "no scheme no match",
			text:     "www.example.com is not extracted",
			wantKeys: nil,
		},
		{
			name:     "ftp ignored",
			text:     "ftp://example.com/file",
			wantKeys: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reqs := extractCandidates(origin, tc.text)
			if len(reqs) != len(tc.wantKeys) {
				t.Fatalf("got %d candidates, want %d: %+v", len(reqs), len(tc.wantKeys), reqs)
			}
			for i, want := range tc.wantKeys {
				if reqs[i].Key != want {
					t.Fatalf("candidate %d key = %q, want %q", i, reqs[i].Key, want)
				}
			}
		})
	}
}
