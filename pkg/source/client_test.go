package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(baseURL string, attempts int) *Client {
	return &Client{
		BaseURL:   baseURL,
		AuthToken: "test-token",
		Timeout:   time.Second,
		Attempts:  attempts,
		BaseDelay: 0, // no backoff in tests
	}
}

func TestGetJSON_RetriesTransientFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	var out struct {
		Value int `json:"value"`
	}
	err := testClient(server.URL, 4).GetJSON(context.Background(), "/data", nil, &out)
	if err != nil {
		t.Fatalf("Expected retries to succeed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if out.Value != 42 {
		t.Errorf("Expected 42, got %d", out.Value)
	}
}

func TestGetJSON_DoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := testClient(server.URL, 4).GetJSON(context.Background(), "/data", nil, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", calls)
	}
	if IsTransient(err) {
		t.Error("404 must not be transient")
	}
}

func TestGetJSON_ExhaustedRetriesReturnLastError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := testClient(server.URL, 3).GetJSON(context.Background(), "/data", nil, nil)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if !IsTransient(err) {
		t.Error("429 should surface as transient")
	}
}

func TestGetJSON_MalformedPayloadIsNotTransient(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"value": not-json`))
	}))
	defer server.Close()

	var out map[string]interface{}
	err := testClient(server.URL, 4).GetJSON(context.Background(), "/data", nil, &out)
	if err == nil {
		t.Fatal("Expected decode error")
	}
	if calls != 1 {
		t.Errorf("Malformed payloads must not be retried, got %d attempts", calls)
	}
	if IsTransient(err) {
		t.Error("Malformed payload must not be transient")
	}
}

func TestGetJSON_SendsBearerTokenAndParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if got := r.URL.Query().Get("month"); got != "2026-01" {
			t.Errorf("Expected month param, got %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	params := map[string][]string{"month": {"2026-01"}}
	if err := testClient(server.URL, 1).GetJSON(context.Background(), "/x", params, nil); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
}

func TestGetJSON_ContextCancellationStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := testClient(server.URL, 4)
	client.BaseDelay = 10 * time.Millisecond
	err := client.GetJSON(ctx, "/data", nil, nil)
	if err == nil {
		t.Fatal("Expected error with cancelled context")
	}
}
