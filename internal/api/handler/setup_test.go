package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/runner"
)

func newSetupHandler(t *testing.T) (*Setup, *config.Config, *auditRecorder) {
	t.Helper()
	cfg := newTestConfig(t.TempDir())
	audit := newAuditRecorder()
	t.Cleanup(audit.Close)
	return NewSetup(cfg, runner.New(zerolog.Nop()), audit.Forwarder()), cfg, audit
}

// stepRecorder replaces the privileged systemctl step. Results are
// consumed per unit; missing entries succeed with code 0.
type stepRecorder struct {
	calls []string
	codes map[string]int
	errs  map[string]error
}

func (s *stepRecorder) step(_ context.Context, _ string, _ time.Duration, verb, unit string) (int, error) {
	s.calls = append(s.calls, verb+" "+unit)
	if err, ok := s.errs[unit]; ok {
		return -1, err
	}
	return s.codes[unit], nil
}

func TestSetupRun_PasswordRequired(t *testing.T) {
	h, _, audit := newSetupHandler(t)
	rec := httptest.NewRecorder()

	h.Run(rec, newRequest(http.MethodPost, "/admin/run-setup", map[string]string{}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Root password required", decodeBody(rec)["error"])
	assert.Empty(t, audit.Actions())
}

func TestSetupRun_MalformedBody(t *testing.T) {
	h, _, _ := newSetupHandler(t)
	rec := httptest.NewRecorder()

	h.Run(rec, newRequestRaw(http.MethodPost, "/admin/run-setup", "not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetupRun_ScriptMissing(t *testing.T) {
	h, cfg, audit := newSetupHandler(t)
	rec := httptest.NewRecorder()

	h.Run(rec, newRequest(http.MethodPost, "/admin/run-setup", map[string]string{"password": "hunter2"}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(rec)["error"], "setup.sh not found at "+cfg.SetupScript())
	assert.Empty(t, audit.Actions())
}

func TestRestartServer_PasswordRequired(t *testing.T) {
	h, _, audit := newSetupHandler(t)
	rec := httptest.NewRecorder()

	h.RestartServer(rec, newRequest(http.MethodPost, "/admin/restart-server", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Root password required", decodeBody(rec)["error"])
	assert.Empty(t, audit.Actions())
}

func TestRestartServer_SequenceOrder(t *testing.T) {
	h, _, audit := newSetupHandler(t)
	steps := &stepRecorder{}
	h.step = steps.step
	rec := httptest.NewRecorder()

	h.RestartServer(rec, newRequest(http.MethodPost, "/admin/restart-server", map[string]string{"password": "hunter2"}))

	// nginx is reloaded first, then the allowlist in configured order
	// with the daemon's own unit last.
	assert.Equal(t, []string{"reload nginx", "restart botaniq-node", "restart admin-api"}, steps.calls)

	events := parseSSE(rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "open", events[0].name)

	lines := sseLines(events)
	assert.Contains(t, lines, "[restart] Reloading nginx...")
	assert.Contains(t, lines, "[restart] nginx reloaded")
	assert.Contains(t, lines, "[restart] Restarting botaniq-node...")
	assert.Contains(t, lines, "[restart] botaniq-node restarted")
	assert.Contains(t, lines, "[restart] admin-api restarted")
	assert.Contains(t, lines, "[restart] All services restarted successfully")

	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)
	assert.JSONEq(t, `{"ok":true,"code":0}`, last.data)

	assert.Equal(t, []string{"restart_server"}, audit.Actions())
}

func TestRestartServer_WarnsButContinuesOnNonZero(t *testing.T) {
	h, _, _ := newSetupHandler(t)
	steps := &stepRecorder{codes: map[string]int{"botaniq-node": 1}}
	h.step = steps.step
	rec := httptest.NewRecorder()

	h.RestartServer(rec, newRequest(http.MethodPost, "/admin/restart-server", map[string]string{"password": "hunter2"}))

	lines := sseLines(parseSSE(rec.Body.String()))
	assert.Contains(t, lines, "[restart] Warning: botaniq-node restart returned code 1")
	assert.Contains(t, lines, "[restart] admin-api restarted")
	assert.Contains(t, lines, "[restart] All services restarted successfully")

	events := parseSSE(rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"code":0}`, events[len(events)-1].data)
}

func TestRestartServer_NginxWarningDoesNotAbort(t *testing.T) {
	h, _, _ := newSetupHandler(t)
	steps := &stepRecorder{codes: map[string]int{"nginx": 1}}
	h.step = steps.step
	rec := httptest.NewRecorder()

	h.RestartServer(rec, newRequest(http.MethodPost, "/admin/restart-server", map[string]string{"password": "hunter2"}))

	lines := sseLines(parseSSE(rec.Body.String()))
	assert.Contains(t, lines, "[restart] Warning: nginx reload returned code 1")
	assert.Contains(t, lines, "[restart] All services restarted successfully")
}

func TestRestartServer_StepTimeoutAborts(t *testing.T) {
	h, _, _ := newSetupHandler(t)
	steps := &stepRecorder{errs: map[string]error{"botaniq-node": errStepTimeout}}
	h.step = steps.step
	rec := httptest.NewRecorder()

	h.RestartServer(rec, newRequest(http.MethodPost, "/admin/restart-server", map[string]string{"password": "hunter2"}))

	// The sequence stops at the wedged unit.
	assert.Equal(t, []string{"reload nginx", "restart botaniq-node"}, steps.calls)

	events := parseSSE(rec.Body.String())
	require.NotEmpty(t, events)

	var errEvent *sseEvent
	for i := range events {
		if events[i].name == "error" {
			errEvent = &events[i]
		}
	}
	require.NotNil(t, errEvent)
	assert.Equal(t, "Operation timed out", errEvent.data)

	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)
	assert.JSONEq(t, `{"ok":false,"code":-1}`, last.data)
}

func TestRestartServer_StepErrorAborts(t *testing.T) {
	h, _, _ := newSetupHandler(t)
	steps := &stepRecorder{errs: map[string]error{"nginx": fmt.Errorf("start sudo: %w", errors.New("not installed"))}}
	h.step = steps.step
	rec := httptest.NewRecorder()

	h.RestartServer(rec, newRequest(http.MethodPost, "/admin/restart-server", map[string]string{"password": "hunter2"}))

	assert.Equal(t, []string{"reload nginx"}, steps.calls)

	events := parseSSE(rec.Body.String())
	var errEvent *sseEvent
	for i := range events {
		if events[i].name == "error" {
			errEvent = &events[i]
		}
	}
	require.NotNil(t, errEvent)
	assert.Contains(t, errEvent.data, "not installed")
	assert.JSONEq(t, `{"ok":false,"code":-1}`, events[len(events)-1].data)
}

func TestDropPasswordPrompts(t *testing.T) {
	tests := []struct {
		line string
		drop bool
	}{
		{"[sudo] password for admin:", true},
		{"Password:", true},
		{"installing packages", false},
		{"chmod: changing permissions", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.drop, dropPasswordPrompts(tt.line), tt.line)
	}
}
