package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func init() {
	newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries-1)
	}
}

func TestDispatchMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventDeny}},
	}, nil)

	d.Dispatch(AlertEvent{Decision: EventDeny, Target: "aaaaa-aa", Method: "withdraw"})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventDeny}},
	}, nil)

	d.Dispatch(AlertEvent{Decision: EventAllow})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestDispatchWildcard(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]AlertConfig{{URL: srv.URL, Events: []string{"*"}}}, nil)
	d.Dispatch(AlertEvent{Decision: EventApproved})
	time.Sleep(200 * time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected wildcard to match, got %d calls", called.Load())
	}
}

func TestNewDispatcherEmpty(t *testing.T) {
	if d := NewDispatcher(nil, nil); d != nil {
		t.Error("expected nil dispatcher for empty config")
	}
}

func TestSendRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Send(AlertConfig{URL: srv.URL}, AlertEvent{Decision: EventDeny}); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Send(AlertConfig{URL: srv.URL}, AlertEvent{}); err == nil {
		t.Fatal("expected error after retries")
	}
	if calls.Load() != maxRetries {
		t.Errorf("expected %d attempts, got %d", maxRetries, calls.Load())
	}
}

func TestSendDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if err := Send(AlertConfig{URL: srv.URL}, AlertEvent{}); err == nil {
		t.Fatal("expected error for 403")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestSendCustomHeadersAndGenericBody(t *testing.T) {
	var gotAuth string
	var got AlertEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}}
	event := AlertEvent{Decision: EventRequireApproval, QueueHash: "abc"}
	if err := Send(cfg, event); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer x" {
		t.Errorf("expected auth header, got %q", gotAuth)
	}
	if got.QueueHash != "abc" {
		t.Errorf("expected queue hash in body, got %+v", got)
	}
}

func TestFormatSlack(t *testing.T) {
	data, err := FormatPayload("slack", AlertEvent{Decision: EventDeny, Reason: "target denylisted"})
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := payload["blocks"]; !ok {
		t.Error("expected slack blocks")
	}
}
