package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestFetcher() *Fetcher {
	f := NewFetcher("narrative-tracker-test")
	return f
}

func TestGetCachesResponse(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	f := newTestFetcher()
	for i := 0; i < 3; i++ {
		body, err := f.Get(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("Get %d failed: %v", i, err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("Unexpected body: %s", body)
		}
	}
	if requests != 1 {
		t.Errorf("Expected 1 upstream request with cache hits after, got %d", requests)
	}
}

func TestGetRetriesServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	body, err := f.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("Unexpected body: %s", body)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestGetDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher()
	if _, err := f.Get(context.Background(), server.URL, nil); err == nil {
		t.Fatal("Expected error for HTTP 404")
	}
	if attempts != 1 {
		t.Errorf("Expected no retries on a 404, got %d attempts", attempts)
	}
}

func TestGetRetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	if _, err := f.Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Expected rate-limited request to recover, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestGetTreatsQuotaExhaustedForbiddenAsRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	if _, err := f.Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Expected quota-exhausted 403 to be retried, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestGetSendsHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	_, err := f.Get(context.Background(), server.URL, map[string]string{"Authorization": "Bearer token"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Get("Authorization") != "Bearer token" {
		t.Errorf("Expected Authorization header forwarded, got %q", got.Get("Authorization"))
	}
	if got.Get("User-Agent") != "narrative-tracker-test" {
		t.Errorf("Expected configured User-Agent, got %q", got.Get("User-Agent"))
	}
}

func TestGetJSONDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	f := newTestFetcher()
	var out map[string]any
	if err := f.GetJSON(context.Background(), server.URL, nil, &out); err == nil {
		t.Fatal("Expected decode error for non-JSON body")
	}
}

func TestPostJSONRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}
		w.Write([]byte(`{"result": 42}`))
	}))
	defer server.Close()

	f := newTestFetcher()
	var out struct {
		Result int `json:"result"`
	}
	if err := f.PostJSON(context.Background(), server.URL, map[string]string{"q": "x"}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Result != 42 {
		t.Errorf("Expected result 42, got %d", out.Result)
	}
}

func TestHostLimiterApplied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	// Zero-burst limiter can never admit a request: Wait must fail once the
	// context expires, proving the limiter is consulted per host.
	host := server.Listener.Addr().String()
	f.SetHostLimit(host, rate.Every(time.Hour), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Get(ctx, server.URL, nil); err == nil {
		t.Fatal("Expected limiter to block the request")
	}
}
