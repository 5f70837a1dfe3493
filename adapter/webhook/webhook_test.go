package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/rulelens/adapter"
	"github.com/pithecene-io/rulelens/iox"
)

func testEvent() *adapter.RunCompletedEvent {
	return &adapter.RunCompletedEvent{
		FormatVersion: "0.3.0",
		EventType:     adapter.EventTypeRunCompleted,
		RunID:         "run-001",
		Mode:          "agentic",
		Outcome:       "success",
		StepCount:     7,
		Timestamp:     "2026-05-01T12:00:00Z",
		DurationMs:    1500,
	}
}

// statusServer answers with codes in order, repeating the last one.
func statusServer(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestPublish_PostsJSON(t *testing.T) {
	var (
		got      adapter.RunCompletedEvent
		auth, ct string
		method   string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		ct = r.Header.Get("Content-Type")
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	a, err := New(Config{URL: ts.URL, Headers: map[string]string{"Authorization": "Bearer t0k"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if method != http.MethodPost || ct != "application/json" || auth != "Bearer t0k" {
		t.Errorf("request = %s ct=%q auth=%q", method, ct, auth)
	}
	if got.RunID != "run-001" || got.Mode != "agentic" || got.StepCount != 7 {
		t.Errorf("event = %+v", got)
	}
}

func TestPublish_RetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		codes     []int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{"2xx first try", []int{http.StatusNoContent}, 3, false, 1},
		{"5xx then ok", []int{500, 502, 200}, 3, false, 3},
		{"5xx exhausts retries", []int{503}, 2, true, 3},
		{"429 is retried", []int{429, 200}, 1, false, 2},
		{"4xx fails fast", []int{404}, 3, true, 1},
		{"401 fails fast", []int{401}, 3, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, calls := statusServer(t, tt.codes...)
			a, err := New(Config{URL: ts.URL, Retries: tt.retries, Timeout: 5 * time.Second})
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			defer iox.DiscardClose(a)

			err = a.Publish(t.Context(), testEvent())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if err != nil {
				var se *StatusError
				if !errors.As(err, &se) {
					t.Errorf("expected StatusError in chain, got %v", err)
				}
			}
		})
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	a, err := New(Config{URL: ts.URL, Retries: 0, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer iox.DiscardClose(a)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "http://example.com", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}

	a, err := New(Config{URL: "http://example.com"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", a.config.Timeout, DefaultTimeout)
	}
}
