package annotate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/annobot/annobot/pkg/shared/httputil"
	"github.com/annobot/annobot/pkg/shared/stringutil"
)

var youtubeAPIBase = "https://www.googleapis.com/youtube/v3/videos"

// youtubeAnnotator looks up a recognized video id through the YouTube
// Data API. It never fetches the page itself.
type youtubeAnnotator struct {
	videoID string
}

func (a *youtubeAnnotator) Name() string { return "youtube" }

type youtubeResponse struct {
	Items []struct {
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (a *youtubeAnnotator) Produce(ctx context.Context, env Env) ([]string, error) {
	cfg := env.Config.Annotators.YouTube
	if cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	params := url.Values{
		"id":   {a.videoID},
		"key":  {cfg.APIKey},
		"part": {"snippet,contentDetails,statistics"},
	}
	if cfg.Lang != "" {
		params.Set("hl", cfg.Lang)
	}
	var resp youtubeResponse
	if err := httputil.GetJSON(ctx, env.API, youtubeAPIBase, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: video %s not found", ErrNoContent, a.videoID)
	}
	item := resp.Items[0]

	parts := []string{stringutil.Sanitize(item.Snippet.Title, 200)}
	if item.Snippet.ChannelTitle != "" {
		parts = append(parts, stringutil.Sanitize(item.Snippet.ChannelTitle, 60))
	}
	if d := parseISO8601Duration(item.ContentDetails.Duration); d > 0 {
		parts = append(parts, formatDuration(d))
	}
	if views, err := strconv.ParseUint(item.Statistics.ViewCount, 10, 64); err == nil {
		parts = append(parts, fmt.Sprintf("%d views", views))
	}
	if likes, err := strconv.ParseUint(item.Statistics.LikeCount, 10, 64); err == nil && likes > 0 {
		parts = append(parts, fmt.Sprintf("%d likes", likes))
	}
	return []string{stringutil.Truncate("[YouTube] "+strings.Join(parts, " | "), maxLineBytes)}, nil
}

// videoIDRe is the 11-character id grammar YouTube uses.
var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// extractYouTubeID returns the video id for recognized YouTube URL
// shapes, or "" when u is not a video link.
func extractYouTubeID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	candidate := ""
	switch host {
	case "youtu.be":
		if len(segs) >= 1 {
			candidate = segs[0]
		}
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		if len(segs) == 0 {
			break
		}
		switch segs[0] {
		case "watch":
			candidate = u.Query().Get("v")
		case "shorts", "embed":
			if len(segs) >= 2 {
				candidate = segs[1]
			}
		}
	}
	if videoIDRe.MatchString(candidate) {
		return candidate
	}
	return ""
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

func parseISO8601Duration(s string) time.Duration {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var d time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		d += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		min, _ := strconv.Atoi(m[2])
		d += time.Duration(min) * time.Minute
	}
	if m[3] != "" {
		sec, _ := strconv.Atoi(m[3])
		d += time.Duration(sec) * time.Second
	}
	return d
}

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
