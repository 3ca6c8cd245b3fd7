package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"beeper/backend/internal/service"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

// fakeDaemon answers every request with reply and records what it saw.
func fakeDaemon(t *testing.T, status int, reply string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		seen = append(seen, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

const activeState = `{"state":{"status":"active","scheduledBeepId":4,"uptimeId":1,"inCall":false,
"scheduledBeep":{"id":4,"timestamp":"2026-03-10T12:10:00Z","created":"2026-03-10T12:00:00Z","status":"active","uptimeId":1},
"uptime":{"id":1,"start":"2026-03-10T12:00:00Z","projectId":0}}}`

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "beepctl dev") {
		t.Errorf("expected output to contain 'beepctl dev', got: %s", out)
	}
}

func TestStatusCmd(t *testing.T) {
	srv, seen := fakeDaemon(t, http.StatusOK, activeState)

	out, err := run(t, "status", "--server", srv.URL, "--token", "tok")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "status:   active") || !strings.Contains(out, "next beep: #4") {
		t.Errorf("unexpected output: %s", out)
	}
	req := (*seen)[0]
	if req.method != http.MethodGet || req.path != "/api/scheduler/state" || req.auth != "Bearer tok" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestOnOffCmds(t *testing.T) {
	srv, seen := fakeDaemon(t, http.StatusOK, activeState)

	if _, err := run(t, "on", "--server", srv.URL, "--token", "tok"); err != nil {
		t.Fatalf("on failed: %v", err)
	}
	if _, err := run(t, "off", "--server", srv.URL, "--token", "tok"); err != nil {
		t.Fatalf("off failed: %v", err)
	}
	if len(*seen) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*seen))
	}
	if got := (*seen)[0]; got.method != http.MethodPut || got.body["status"] != "active" {
		t.Errorf("unexpected on request: %+v", got)
	}
	if got := (*seen)[1]; got.body["status"] != "inactive" {
		t.Errorf("unexpected off request: %+v", got)
	}
}

func TestAnswerCmds(t *testing.T) {
	srv, seen := fakeDaemon(t, http.StatusOK, activeState)

	for _, name := range []string{"accept", "decline", "pause"} {
		if _, err := run(t, name, "--server", srv.URL, "--token", "tok"); err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
	}
	want := []string{"/api/scheduler/beep/accept", "/api/scheduler/beep/decline", "/api/scheduler/beep/pause"}
	for i, path := range want {
		if (*seen)[i].path != path || (*seen)[i].method != http.MethodPost {
			t.Errorf("request %d = %+v, want POST %s", i, (*seen)[i], path)
		}
	}
}

func TestCallCmd(t *testing.T) {
	srv, seen := fakeDaemon(t, http.StatusOK, activeState)

	if _, err := run(t, "call", "ringing", "--server", srv.URL, "--token", "tok"); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got := (*seen)[0]; got.path != "/api/scheduler/call" || got.body["state"] != "RINGING" {
		t.Errorf("unexpected request: %+v", got)
	}

	if _, err := run(t, "call", "busy", "--server", srv.URL, "--token", "tok"); err == nil {
		t.Error("expected error for unknown call state")
	}
	if len(*seen) != 1 {
		t.Errorf("invalid state should not reach the daemon")
	}
}

func TestStatsCmd(t *testing.T) {
	srv, _ := fakeDaemon(t, http.StatusOK, `{"stats":{"acceptedToday":2,"declinedToday":1,"totalToday":3,
"uptimeTodaySeconds":3600,"uptimeCountToday":2,"uptimeAverageSeconds":1800}}`)

	out, err := run(t, "stats", "--server", srv.URL, "--token", "tok")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if !strings.Contains(out, "3 (2 accepted, 1 declined)") {
		t.Errorf("unexpected beep line: %s", out)
	}
	if !strings.Contains(out, "1h0m0s in 2 sessions (avg 30m0s)") {
		t.Errorf("unexpected uptime line: %s", out)
	}
}

func TestAPIErrorIsReported(t *testing.T) {
	srv, _ := fakeDaemon(t, http.StatusConflict, `{"error":{"code":"beep_not_due","message":"the scheduled beep has not fired yet"}}`)

	_, err := run(t, "accept", "--server", srv.URL, "--token", "tok")
	if err == nil || !strings.Contains(err.Error(), "beep_not_due") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestMissingToken(t *testing.T) {
	t.Setenv("BEEPER_TOKEN", "")
	_, err := run(t, "status", "--server", "http://127.0.0.1:1")
	if err == nil || !strings.Contains(err.Error(), "no API token") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("API_SECRET", "cli-secret")

	out, err := run(t, "token", "--subject", "phone", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	token := strings.TrimSpace(out)

	subject, apiErr := service.NewAuthService("cli-secret", time.Hour).ParseToken(token)
	if apiErr != nil {
		t.Fatalf("minted token does not verify: %v", apiErr)
	}
	if subject != "phone" {
		t.Errorf("subject = %q, want phone", subject)
	}
}
