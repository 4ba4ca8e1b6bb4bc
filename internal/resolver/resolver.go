// Package resolver turns a YouTube video or playlist URL into download
// items using the YouTube Data API v3.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wapuda/ytbatch/internal/jobs"
	"github.com/wapuda/ytbatch/internal/logx"
)

const (
	DefaultBase  = "https://www.googleapis.com/youtube/v3"
	DefaultTitle = "Untitled"
	pageSize     = 50
)

var (
	ErrMissingKey   = errors.New("youtube api key is not configured")
	ErrUnrecognized = errors.New("url is not a youtube video or playlist")
)

type Kind string

const (
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
)

// Target is what a URL points at.
type Target struct {
	Kind Kind
	ID   string
}

// ParseURL recognises youtube.com and youtu.be links. A list parameter wins
// over v, so a watch URL inside a playlist resolves to the playlist.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return Target{}, ErrUnrecognized
	}
	host := strings.ToLower(u.Hostname())
	short := strings.Contains(host, "youtu.be")
	if !short && !strings.Contains(host, "youtube.com") {
		return Target{}, ErrUnrecognized
	}
	q := u.Query()
	if list := q.Get("list"); list != "" {
		return Target{Kind: KindPlaylist, ID: list}, nil
	}
	if v := q.Get("v"); v != "" {
		return Target{Kind: KindVideo, ID: v}, nil
	}
	if short {
		if id := strings.Trim(u.Path, "/"); id != "" {
			return Target{Kind: KindVideo, ID: id}, nil
		}
	}
	return Target{}, ErrUnrecognized
}

type Result struct {
	Kind  Kind        `json:"kind"`
	Items []jobs.Item `json:"items"`
}

type Client struct {
	Key  string
	Base string // DefaultBase when empty
	HTTP *http.Client
}

func New(key, base string) *Client {
	return &Client{
		Key:  key,
		Base: base,
		HTTP: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool { return c != nil && strings.TrimSpace(c.Key) != "" }

func (c *Client) base() string {
	if c.Base == "" {
		return DefaultBase
	}
	return strings.TrimRight(c.Base, "/")
}

// Resolve looks up the items behind rawURL. Playlists are read to the last
// page. Errors are jobs.Error values of kind Resolver.
func (c *Client) Resolve(ctx context.Context, rawURL string) (Result, error) {
	t, err := ParseURL(rawURL)
	if err != nil {
		return Result{}, jobs.Wrap(jobs.KindResolver, "parse url", err)
	}
	if !c.Configured() {
		return Result{}, jobs.Wrap(jobs.KindResolver, "resolve", ErrMissingKey)
	}

	l := logx.FromCtx(ctx)
	var items []jobs.Item
	switch t.Kind {
	case KindVideo:
		items, err = c.video(ctx, t.ID)
	default:
		items, err = c.playlist(ctx, t.ID)
	}
	if err != nil {
		l.Warn().Err(err).Str("kind", string(t.Kind)).Str("id", t.ID).Msg("resolve failed")
		return Result{}, jobs.Wrap(jobs.KindResolver, "resolve "+string(t.Kind), err)
	}
	l.Debug().Str("kind", string(t.Kind)).Int("items", len(items)).Msg("resolved")
	return Result{Kind: t.Kind, Items: items}, nil
}

type thumbnail struct {
	URL string `json:"url"`
}

type snippet struct {
	Title      string               `json:"title"`
	Thumbnails map[string]thumbnail `json:"thumbnails"`
	ResourceID struct {
		VideoID string `json:"videoId"`
	} `json:"resourceId"`
}

func (s snippet) thumbnail() string {
	if t, ok := s.Thumbnails["medium"]; ok && t.URL != "" {
		return t.URL
	}
	return s.Thumbnails["default"].URL
}

func (s snippet) title() string {
	if strings.TrimSpace(s.Title) == "" {
		return DefaultTitle
	}
	return s.Title
}

type videosResponse struct {
	Items []struct {
		ID      string  `json:"id"`
		Snippet snippet `json:"snippet"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet        snippet `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func newItem(id string, s snippet) jobs.Item {
	return jobs.Item{
		ID:        id,
		Title:     s.title(),
		Thumbnail: s.thumbnail(),
		URL:       jobs.WatchURLPrefix + id,
	}
}

func (c *Client) video(ctx context.Context, id string) ([]jobs.Item, error) {
	var resp videosResponse
	q := url.Values{"id": {id}, "part": {"snippet,contentDetails"}}
	if err := c.get(ctx, "videos", q, &resp); err != nil {
		return nil, err
	}
	items := make([]jobs.Item, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, newItem(it.ID, it.Snippet))
	}
	return items, nil
}

func (c *Client) playlist(ctx context.Context, id string) ([]jobs.Item, error) {
	var items []jobs.Item
	token := ""
	for {
		q := url.Values{
			"playlistId": {id},
			"part":       {"snippet,contentDetails"},
			"maxResults": {fmt.Sprint(pageSize)},
		}
		if token != "" {
			q.Set("pageToken", token)
		}
		var resp playlistItemsResponse
		if err := c.get(ctx, "playlistItems", q, &resp); err != nil {
			return nil, err
		}
		for _, it := range resp.Items {
			vid := it.ContentDetails.VideoID
			if vid == "" {
				vid = it.Snippet.ResourceID.VideoID
			}
			if vid == "" {
				continue
			}
			items = append(items, newItem(vid, it.Snippet))
		}
		if resp.NextPageToken == "" {
			return items, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, into any) error {
	q.Set("key", c.Key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, redactKey(err, c.Key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// redactKey keeps the API key out of url.Error messages, which embed the
// full request URL.
func redactKey(err error, key string) error {
	var ue *url.Error
	if key == "" || !errors.As(err, &ue) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
