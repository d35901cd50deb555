package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/config"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// decodeBody parses the JSON response body into a map.
func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

// sseEvent is one parsed frame of an event-stream response. Unnamed
// data frames have an empty name.
type sseEvent struct {
	name string
	data string
}

// parseSSE splits an event-stream body into its frames.
func parseSSE(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				if ev.data != "" {
					ev.data += "\n"
				}
				ev.data += strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}

// sseLines collects the unnamed data frames, the relayed output lines.
func sseLines(events []sseEvent) []string {
	var lines []string
	for _, ev := range events {
		if ev.name == "" {
			lines = append(lines, ev.data)
		}
	}
	return lines
}

// newTestConfig builds a config rooted at dir with the stock allowlist.
func newTestConfig(dir string) *config.Config {
	return &config.Config{
		HTTPListenAddr:  "127.0.0.1:0",
		ServiceName:     "admind",
		RepoDir:         dir,
		ButtonSecret:    "test-secret",
		StaticToken:     "test-token",
		AllowedServices: config.ParseServiceSet(config.DefaultAllowedServices),
		DefaultService:  "botaniq-node",
		MaintenanceFile: filepath.Join(dir, "maintenance.json"),
	}
}

// writeScript drops an executable shell script at path.
func writeScript(path, body string) {
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
}

// auditRecorder captures forwarded audit entries through a real HTTP
// round trip. Close it when done.
type auditRecorder struct {
	mu      sync.Mutex
	srv     *httptest.Server
	entries []auditlog.Entry
}

func newAuditRecorder() *auditRecorder {
	a := &auditRecorder{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e auditlog.Entry
		json.NewDecoder(r.Body).Decode(&e)
		a.mu.Lock()
		a.entries = append(a.entries, e)
		a.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return a
}

func (a *auditRecorder) Close() { a.srv.Close() }

func (a *auditRecorder) Forwarder() *auditlog.Forwarder {
	return auditlog.NewForwarder(zerolog.Nop(), a.srv.URL, "")
}

func (a *auditRecorder) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	actions := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func (a *auditRecorder) Last() auditlog.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return auditlog.Entry{}
	}
	return a.entries[len(a.entries)-1]
}
