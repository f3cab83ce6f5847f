package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	rec := doRequest(t, srv, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
}

func TestReadyEndpointDatabaseDown(t *testing.T) {
	fs := &fakeStore{
		pingFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}
	srv := newTestHTTPServer(fs)
	rec := doRequest(t, srv, http.MethodGet, "/api/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

func TestReadyEndpointOK(t *testing.T) {
	srv := newTestHTTPServer(&fakeStore{})
	rec := doRequest(t, srv, http.MethodGet, "/api/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}
}
