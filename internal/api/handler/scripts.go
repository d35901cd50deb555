package handler

import (
	"net/http"
	"os"
	"time"

	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/gitops"
	"github.com/botaniq/admind/internal/runner"
)

const (
	deployTimeout  = 15 * time.Minute
	sitemapTimeout = 5 * time.Minute
)

// Scripts runs the repository's operational scripts with captured
// output tails.
type Scripts struct {
	cfg     *config.Config
	runner  *runner.Runner
	auditor *auditlog.Forwarder
}

func NewScripts(cfg *config.Config, run *runner.Runner, auditor *auditlog.Forwarder) *Scripts {
	return &Scripts{cfg: cfg, runner: run, auditor: auditor}
}

// scriptReport carries a script's outcome with bounded output.
type scriptReport struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// DeployEdgeFunctions pushes the serverless functions to the Supabase
// project and waits for the result.
func (h *Scripts) DeployEdgeFunctions(w http.ResponseWriter, r *http.Request) {
	script := h.cfg.DeployFunctionsScript()
	if _, err := os.Stat(script); err != nil {
		forwardAction(h.auditor, r, "deploy_edge_functions_failed", "", map[string]any{
			"error": "deploy script not found", "path": script,
		})
		response.WriteError(w, http.StatusInternalServerError, "deploy script not found at "+script)
		return
	}
	gitops.EnsureExecutable(script)

	res, err := h.runner.Run(r.Context(), runner.Command{
		Name:       script,
		Dir:        h.cfg.RepoDir,
		Env:        scriptEnv(h.cfg.RepoDir),
		Timeout:    deployTimeout,
		StdoutTail: 200,
		StderrTail: 100,
	})
	if err != nil {
		forwardAction(h.auditor, r, "deploy_edge_functions_failed", "", map[string]any{"error": err.Error()})
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.TimedOut {
		forwardAction(h.auditor, r, "deploy_edge_functions_failed", "", map[string]any{"error": "timeout"})
		response.WriteError(w, http.StatusGatewayTimeout, "Supabase deployment timed out")
		return
	}

	detail := map[string]any{
		"returncode": res.ExitCode,
		"stdoutTail": res.Stdout,
		"stderrTail": nullableString(res.Stderr),
	}
	if !res.OK() {
		forwardAction(h.auditor, r, "deploy_edge_functions_failed", "", detail)
		response.WriteJSON(w, http.StatusInternalServerError, scriptReport{
			Error:      "Supabase deployment failed",
			ReturnCode: res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		})
		return
	}
	forwardAction(h.auditor, r, "deploy_edge_functions", "", detail)
	response.WriteJSON(w, http.StatusOK, scriptReport{
		OK:         true,
		Message:    "Supabase Edge Functions deployed successfully",
		ReturnCode: res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
	})
}

// RegenerateSitemap rebuilds the public sitemap via the daily script.
func (h *Scripts) RegenerateSitemap(w http.ResponseWriter, r *http.Request) {
	script := h.cfg.SitemapScript()
	if _, err := os.Stat(script); err != nil {
		forwardAction(h.auditor, r, "regenerate_sitemap_failed", "", map[string]any{
			"error": "sitemap script not found", "path": script,
		})
		response.WriteError(w, http.StatusInternalServerError, "sitemap script not found at "+script)
		return
	}
	gitops.EnsureExecutable(script)

	res, err := h.runner.Run(r.Context(), runner.Command{
		Name:       script,
		Dir:        h.cfg.RepoDir,
		Env:        scriptEnv(h.cfg.RepoDir),
		Timeout:    sitemapTimeout,
		StdoutTail: 100,
		StderrTail: 50,
	})
	if err != nil {
		forwardAction(h.auditor, r, "regenerate_sitemap_failed", "", map[string]any{"error": err.Error()})
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.TimedOut {
		forwardAction(h.auditor, r, "regenerate_sitemap_failed", "", map[string]any{"error": "timeout"})
		response.WriteError(w, http.StatusGatewayTimeout, "Sitemap generation timed out")
		return
	}

	detail := map[string]any{
		"returncode": res.ExitCode,
		"stdoutTail": res.Stdout,
		"stderrTail": nullableString(res.Stderr),
	}
	if !res.OK() {
		forwardAction(h.auditor, r, "regenerate_sitemap_failed", "", detail)
		response.WriteJSON(w, http.StatusInternalServerError, scriptReport{
			Error:      "Sitemap generation failed",
			ReturnCode: res.ExitCode,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		})
		return
	}
	forwardAction(h.auditor, r, "regenerate_sitemap", "", detail)
	response.WriteJSON(w, http.StatusOK, scriptReport{
		OK:         true,
		Message:    "Sitemap regenerated successfully",
		ReturnCode: res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
	})
}
