package jobs

import (
	"fmt"
	"strings"
)

// WatchURLPrefix builds a fetch URL for items that only carry an identifier.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

type Mode string

const (
	ModeAudio Mode = "audio"
	ModeVideo Mode = "video"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAudio, ModeVideo:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected audio or video)", s)
	}
}

func (m Mode) Valid() bool { return m == ModeAudio || m == ModeVideo }

type Item struct {
	ID        string `json:"id,omitempty"`        // platform identifier
	Title     string `json:"title,omitempty"`     // optional display title
	URL       string `json:"url,omitempty"`       // optional source URL
	Thumbnail string `json:"thumbnail,omitempty"` // set by the resolver only
}

func (it Item) Valid() bool {
	return strings.TrimSpace(it.ID) != "" || strings.TrimSpace(it.URL) != ""
}

// FetchURL is the URL handed to the retrieval tool.
func (it Item) FetchURL() string {
	if u := strings.TrimSpace(it.URL); u != "" {
		return u
	}
	return WatchURLPrefix + strings.TrimSpace(it.ID)
}

// Key identifies the item in logs and diagnostics.
func (it Item) Key() string {
	if it.ID != "" {
		return it.ID
	}
	return it.URL
}

type SinglePayload struct {
	URL   string `json:"url" form:"url"`
	Mode  string `json:"mode" form:"mode"`
	Title string `json:"title" form:"title"`
}

type BatchPayload struct {
	Items []Item `json:"items"`
	Mode  string `json:"mode"`
	JobID string `json:"jobId"` // optional; generated when empty
}

// ParseRequest is the body of a metadata lookup.
type ParseRequest struct {
	URL string `json:"url" form:"url"`
}
