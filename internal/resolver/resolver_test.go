package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wapuda/ytbatch/internal/jobs"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		in   string
		want Target
		err  bool
	}{
		{"https://www.youtube.com/watch?v=abc123", Target{KindVideo, "abc123"}, false},
		{"https://youtube.com/watch?v=abc&list=PL1", Target{KindPlaylist, "PL1"}, false},
		{"https://www.youtube.com/playlist?list=PL2", Target{KindPlaylist, "PL2"}, false},
		{"https://youtu.be/xyz?t=10", Target{KindVideo, "xyz"}, false},
		{"https://m.youtube.com/watch?v=m1", Target{KindVideo, "m1"}, false},
		{"https://youtu.be/", Target{}, true},
		{"https://vimeo.com/123", Target{}, true},
		{"not a url", Target{}, true},
		{"", Target{}, true},
	}
	for _, tc := range cases {
		got, err := ParseURL(tc.in)
		if tc.err {
			if !errors.Is(err, ErrUnrecognized) {
				t.Errorf("ParseURL(%q) err = %v, want ErrUnrecognized", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseURL(%q) = %+v, %v; want %+v", tc.in, got, err, tc.want)
		}
	}
}

func TestResolveVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" || r.URL.Query().Get("id") != "abc" || r.URL.Query().Get("key") != "k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"abc","snippet":{"title":"","thumbnails":{"default":{"url":"d.jpg"}}}}]}`)
	}))
	defer srv.Close()

	c := New("k", srv.URL)
	res, err := c.Resolve(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := jobs.Item{ID: "abc", Title: DefaultTitle, Thumbnail: "d.jpg", URL: jobs.WatchURLPrefix + "abc"}
	if res.Kind != KindVideo || len(res.Items) != 1 || res.Items[0] != want {
		t.Fatalf("result = %+v", res)
	}
}

func TestResolvePlaylistDrainsPages(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		if q.Get("maxResults") != "50" || q.Get("playlistId") != "PL" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch q.Get("pageToken") {
		case "":
			fmt.Fprint(w, `{"nextPageToken":"p2","items":[
				{"snippet":{"title":"one","thumbnails":{"medium":{"url":"m1.jpg"},"default":{"url":"d1.jpg"}}},"contentDetails":{"videoId":"v1"}},
				{"snippet":{"title":"deleted"}}
			]}`)
		case "p2":
			fmt.Fprint(w, `{"items":[{"snippet":{"title":"two","resourceId":{"videoId":"v2"}},"contentDetails":{}}]}`)
		default:
			http.Error(w, "unknown page", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	res, err := New("k", srv.URL).Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if res.Kind != KindPlaylist || len(res.Items) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Items[0].ID != "v1" || res.Items[0].Thumbnail != "m1.jpg" || res.Items[1].ID != "v2" || res.Items[1].Title != "two" {
		t.Fatalf("items = %+v", res.Items)
	}
}

func TestResolveErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()
	ctx := context.Background()

	if _, err := New("", srv.URL).Resolve(ctx, "https://youtu.be/a"); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v, want ErrMissingKey", err)
	}
	if _, err := New("k", srv.URL).Resolve(ctx, "https://example.com/a"); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("err = %v, want ErrUnrecognized", err)
	}
	_, err := New("k", srv.URL).Resolve(ctx, "https://youtu.be/a")
	if err == nil || jobs.KindOf(err) != jobs.KindResolver {
		t.Fatalf("err = %v, want resolver error", err)
	}
}
