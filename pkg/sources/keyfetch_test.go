package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openrig/openrig/pkg/engine"
)

func TestHTTPKeyFetcherFetch(t *testing.T) {
	key := "-----BEGIN PGP PUBLIC KEY BLOCK-----\nabc\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(key))
	}))
	defer server.Close()

	f := NewHTTPKeyFetcher(5 * time.Second)
	data, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != key {
		t.Errorf("unexpected key material: %q", data)
	}
}

func TestHTTPKeyFetcherStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPKeyFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !engine.IsTransient(err) {
		t.Errorf("expected a transient error, got class %s", engine.ClassOf(err))
	}
}

func TestHTTPKeyFetcherUnreachable(t *testing.T) {
	f := NewHTTPKeyFetcher(500 * time.Millisecond)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/key")
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	if !engine.IsTransient(err) {
		t.Errorf("expected a transient error, got class %s", engine.ClassOf(err))
	}
}
