package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/runner"
)

func newRefreshHandler(t *testing.T) (*Refresh, *config.Config, *auditRecorder) {
	t.Helper()
	cfg := newTestConfig(t.TempDir())
	audit := newAuditRecorder()
	t.Cleanup(audit.Close)
	return NewRefresh(cfg, runner.New(zerolog.Nop()), audit.Forwarder()), cfg, audit
}

func TestRefreshStart_Detaches(t *testing.T) {
	h, cfg, audit := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), "echo refreshing")
	rec := httptest.NewRecorder()

	h.Start(rec, newRequest(http.MethodPost, "/admin/pull-code", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["started"])
	assert.Nil(t, body["branch"])

	assert.Equal(t, []string{"pull_code"}, audit.Actions())
}

func TestRefreshStart_BranchFromQuery(t *testing.T) {
	h, cfg, audit := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), "echo refreshing")
	rec := httptest.NewRecorder()

	h.Start(rec, newRequest(http.MethodGet, "/admin/pull-code?branch=develop", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, "develop", body["branch"])
	assert.Equal(t, "develop", audit.Last().Target)
}

func TestRefreshStart_BranchFromBody(t *testing.T) {
	h, cfg, _ := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), "echo refreshing")
	rec := httptest.NewRecorder()

	h.Start(rec, newRequest(http.MethodPost, "/admin/pull-code", map[string]string{"branch": "feature/watering"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "feature/watering", decodeBody(rec)["branch"])
}

func TestRefreshStart_RejectsUnsafeBranch(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   any
	}{
		{"leading dash in query", "/admin/pull-code?branch=-rf", nil},
		{"dotdot in query", "/admin/pull-code?branch=a..b", nil},
		{"bad chars in body", "/admin/pull-code", map[string]string{"branch": "main; rm -rf /"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, cfg, audit := newRefreshHandler(t)
			writeScript(cfg.RefreshScript(), "echo refreshing")
			rec := httptest.NewRecorder()

			h.Start(rec, newRequest(http.MethodPost, tt.target, tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid branch name", decodeBody(rec)["error"])
			assert.Empty(t, audit.Actions())
		})
	}
}

func TestRefreshStart_MalformedBody(t *testing.T) {
	h, cfg, _ := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), "echo refreshing")
	rec := httptest.NewRecorder()

	h.Start(rec, newRequestRaw(http.MethodPost, "/admin/pull-code", "{not json"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshStart_ScriptMissing(t *testing.T) {
	h, cfg, _ := newRefreshHandler(t)
	rec := httptest.NewRecorder()

	h.Start(rec, newRequest(http.MethodPost, "/admin/pull-code", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(rec)["error"], "refresh script not found at "+cfg.RefreshScript())
}

func TestRefreshStream_RelaysScriptEnv(t *testing.T) {
	h, cfg, _ := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), `echo "skip=$SKIP_SERVICE_RESTARTS"
echo "branch=$BOTANIQ_TARGET_BRANCH"
echo build finished`)
	rec := httptest.NewRecorder()

	h.Stream(rec, newRequest(http.MethodGet, "/admin/pull-code/stream?branch=develop", nil))

	events := parseSSE(rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "open", events[0].name)

	lines := sseLines(events)
	assert.Contains(t, lines, "[pull] Target branch requested: develop")
	assert.Contains(t, lines, "skip=true")
	assert.Contains(t, lines, "branch=develop")
	assert.Contains(t, lines, "build finished")

	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)
	assert.JSONEq(t, `{"ok":true,"code":0}`, last.data)
}

func TestRefreshStream_ScriptFailure(t *testing.T) {
	h, cfg, _ := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), "echo npm install failed; exit 5")
	rec := httptest.NewRecorder()

	h.Stream(rec, newRequest(http.MethodGet, "/admin/pull-code/stream", nil))

	events := parseSSE(rec.Body.String())
	require.NotEmpty(t, events)

	assert.Contains(t, sseLines(events), "npm install failed")
	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)
	assert.JSONEq(t, `{"ok":false,"code":5}`, last.data)
}

func TestRefreshStream_NoBranchLineWithoutBranch(t *testing.T) {
	h, cfg, _ := newRefreshHandler(t)
	writeScript(cfg.RefreshScript(), "echo ok")
	rec := httptest.NewRecorder()

	h.Stream(rec, newRequest(http.MethodGet, "/admin/pull-code/stream", nil))

	for _, line := range sseLines(parseSSE(rec.Body.String())) {
		assert.NotContains(t, line, "Target branch requested")
	}
}
