package router_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventStreamDeliversStatusChanges(t *testing.T) {
	engine, _ := setupTestEngine(t)
	token := issueToken(t, engine)

	handlerDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		engine.ServeHTTP(w, r)
		if r.URL.Path == "/api/scheduler/events" {
			close(handlerDone)
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/scheduler/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for stream, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event-stream content type, got %q", ct)
	}

	frames := make(chan string, 8)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event:") {
				frames <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}()

	// The handler has subscribed by the time the headers arrive.
	status, body := requestJSON(t, engine, http.MethodPut, "/api/scheduler/status", token, map[string]string{"status": "active"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on activate, got %d: %s", status, body)
	}

	// Activation schedules a beep before the status change is announced.
	deadline := time.After(5 * time.Second)
	var seen []string
	for len(seen) == 0 || seen[len(seen)-1] != "status_changed" {
		select {
		case name, ok := <-frames:
			if !ok {
				t.Fatalf("stream closed after %v", seen)
			}
			seen = append(seen, name)
		case <-deadline:
			t.Fatalf("timed out waiting for status_changed, got %v", seen)
		}
	}
	if len(seen) != 2 || seen[0] != "beep_scheduled" {
		t.Fatalf("expected beep_scheduled then status_changed, got %v", seen)
	}

	cancel()
	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("event handler did not return after the client left")
	}

	// With the stream gone, further transitions must not block on it.
	status, body = requestJSON(t, engine, http.MethodPut, "/api/scheduler/status", token, map[string]string{"status": "inactive"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on deactivate, got %d: %s", status, body)
	}
}

func TestEventStreamRequiresToken(t *testing.T) {
	engine, _ := setupTestEngine(t)

	status, _ := requestJSON(t, engine, http.MethodGet, "/api/scheduler/events", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}
