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

func newScriptsHandler(t *testing.T) (*Scripts, *config.Config, *auditRecorder) {
	t.Helper()
	cfg := newTestConfig(t.TempDir())
	audit := newAuditRecorder()
	t.Cleanup(audit.Close)
	return NewScripts(cfg, runner.New(zerolog.Nop()), audit.Forwarder()), cfg, audit
}

func TestDeployEdgeFunctions_Success(t *testing.T) {
	h, cfg, audit := newScriptsHandler(t)
	writeScript(cfg.DeployFunctionsScript(), `echo "ci=$CI"
echo deployed 12 functions`)
	rec := httptest.NewRecorder()

	h.DeployEdgeFunctions(rec, newRequest(http.MethodPost, "/admin/deploy-edge-functions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Supabase Edge Functions deployed successfully", body["message"])
	assert.Equal(t, float64(0), body["returncode"])
	assert.Contains(t, body["stdout"], "deployed 12 functions")
	assert.Contains(t, body["stdout"], "ci=true")

	assert.Equal(t, []string{"deploy_edge_functions"}, audit.Actions())
	assert.Equal(t, float64(0), audit.Last().Detail["returncode"])
}

func TestDeployEdgeFunctions_ScriptMissing(t *testing.T) {
	h, cfg, audit := newScriptsHandler(t)
	rec := httptest.NewRecorder()

	h.DeployEdgeFunctions(rec, newRequest(http.MethodPost, "/admin/deploy-edge-functions", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["error"], "deploy script not found at "+cfg.DeployFunctionsScript())

	assert.Equal(t, []string{"deploy_edge_functions_failed"}, audit.Actions())
	assert.Equal(t, cfg.DeployFunctionsScript(), audit.Last().Detail["path"])
}

func TestDeployEdgeFunctions_NonZeroExit(t *testing.T) {
	h, cfg, audit := newScriptsHandler(t)
	writeScript(cfg.DeployFunctionsScript(), "echo bundling; echo auth error >&2; exit 4")
	rec := httptest.NewRecorder()

	h.DeployEdgeFunctions(rec, newRequest(http.MethodPost, "/admin/deploy-edge-functions", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "Supabase deployment failed", body["error"])
	assert.Equal(t, float64(4), body["returncode"])
	assert.Contains(t, body["stdout"], "bundling")
	assert.Contains(t, body["stderr"], "auth error")

	assert.Equal(t, []string{"deploy_edge_functions_failed"}, audit.Actions())
}

func TestRegenerateSitemap_Success(t *testing.T) {
	h, cfg, audit := newScriptsHandler(t)
	writeScript(cfg.SitemapScript(), "echo wrote sitemap.xml")
	rec := httptest.NewRecorder()

	h.RegenerateSitemap(rec, newRequest(http.MethodPost, "/admin/regenerate-sitemap", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "Sitemap regenerated successfully", body["message"])
	assert.Contains(t, body["stdout"], "wrote sitemap.xml")

	assert.Equal(t, []string{"regenerate_sitemap"}, audit.Actions())
}

func TestRegenerateSitemap_NonZeroExit(t *testing.T) {
	h, cfg, _ := newScriptsHandler(t)
	writeScript(cfg.SitemapScript(), "exit 1")
	rec := httptest.NewRecorder()

	h.RegenerateSitemap(rec, newRequest(http.MethodPost, "/admin/regenerate-sitemap", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(rec)
	assert.Equal(t, "Sitemap generation failed", body["error"])
	assert.Equal(t, float64(1), body["returncode"])
}

func TestRegenerateSitemap_ScriptMissing(t *testing.T) {
	h, cfg, _ := newScriptsHandler(t)
	rec := httptest.NewRecorder()

	h.RegenerateSitemap(rec, newRequest(http.MethodGet, "/admin/regenerate-sitemap", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(rec)["error"], "sitemap script not found at "+cfg.SitemapScript())
}
