package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchExtractsMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
			<title> Example Shop </title>
			<meta name="description" content="The best example shop.">
		</head><body><script>ignored()</script><p>one two three</p></body></html>`))
	}))
	defer srv.Close()

	f := New(nil, nil, nil)
	result := f.Fetch(context.Background(), srv.URL, Options{})

	if !result.OK() {
		t.Fatalf("fetch not OK: status=%d error=%q", result.StatusCode, result.Error)
	}
	if result.Title != "Example Shop" {
		t.Errorf("title = %q", result.Title)
	}
	if result.MetaDescription != "The best example shop." {
		t.Errorf("meta description = %q", result.MetaDescription)
	}
	if result.WordCount != 3 {
		t.Errorf("word count = %d, want 3 (script content excluded)", result.WordCount)
	}
	if result.ContentHash == "" {
		t.Errorf("content hash missing")
	}
	if result.LoadTimeMs < 0 {
		t.Errorf("load time not recorded")
	}
}

func TestFetchHTTPErrorIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(nil, nil, nil)
	result := f.Fetch(context.Background(), srv.URL, Options{})

	if result.Error != "" {
		t.Errorf("HTTP 404 recorded as transport error: %s", result.Error)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", result.StatusCode)
	}
	if result.OK() {
		t.Errorf("404 must not be OK")
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	f := New(nil, nil, nil)
	result := f.Fetch(context.Background(), srv.URL, Options{})

	if result.Error == "" {
		t.Errorf("expected transport error for closed server")
	}
	if result.StatusCode != 0 {
		t.Errorf("status = %d, want 0 on transport failure", result.StatusCode)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>Final</title></head><body>done</body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(nil, nil, nil)
	result := f.Fetch(context.Background(), srv.URL, Options{})

	if !result.OK() {
		t.Fatalf("fetch not OK: %+v", result)
	}
	if result.FinalURL == result.URL {
		t.Errorf("FinalURL not updated after redirect: %s", result.FinalURL)
	}
}
