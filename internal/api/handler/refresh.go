package handler

import (
	"net/http"
	"os"
	"strings"

	"github.com/botaniq/admind/internal/api/request"
	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/api/sse"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/config"
	"github.com/botaniq/admind/internal/gitops"
	"github.com/botaniq/admind/internal/runner"
)

// Refresh triggers the checkout refresh script, optionally pinned to a
// branch, either detached or with output streamed back to the caller.
type Refresh struct {
	cfg     *config.Config
	runner  *runner.Runner
	auditor *auditlog.Forwarder
}

func NewRefresh(cfg *config.Config, run *runner.Runner, auditor *auditlog.Forwarder) *Refresh {
	return &Refresh{cfg: cfg, runner: run, auditor: auditor}
}

// branchParam extracts the requested branch from the query string or
// the JSON body. ok is false when a branch was supplied but unsafe.
func branchParam(r *http.Request) (branch string, ok bool) {
	branch = strings.TrimSpace(r.URL.Query().Get("branch"))
	if branch == "" {
		var req request.PullCode
		if err := request.DecodeLenient(r, &req); err != nil {
			return "", false
		}
		branch = strings.TrimSpace(req.Branch)
	}
	if !request.ValidBranchName(branch) {
		return "", false
	}
	return branch, true
}

// refreshEnv builds the script environment. SKIP_SERVICE_RESTARTS stops
// the script from bouncing services itself; restarts stay an explicit
// operator action taken after the build is known good.
func refreshEnv(repoDir, branch string) []string {
	env := append(scriptEnv(repoDir), "SKIP_SERVICE_RESTARTS=true")
	if branch != "" {
		env = append(env, "BOTANIQ_TARGET_BRANCH="+branch)
	}
	return env
}

type refreshStarted struct {
	OK      bool    `json:"ok"`
	Started bool    `json:"started"`
	Branch  *string `json:"branch"`
}

// Start launches the refresh script detached and returns immediately.
func (h *Refresh) Start(w http.ResponseWriter, r *http.Request) {
	branch, ok := branchParam(r)
	if !ok {
		response.WriteError(w, http.StatusBadRequest, "Invalid branch name")
		return
	}
	forwardAction(h.auditor, r, "pull_code", branch, nil)

	script := h.cfg.RefreshScript()
	if _, err := os.Stat(script); err != nil {
		response.WriteError(w, http.StatusInternalServerError, "refresh script not found at "+script)
		return
	}
	gitops.EnsureExecutable(script)

	if err := h.runner.Start(runner.Command{
		Name: script,
		Dir:  h.cfg.RepoDir,
		Env:  refreshEnv(h.cfg.RepoDir, branch),
	}); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, refreshStarted{
		OK:      true,
		Started: true,
		Branch:  nullableString(branch),
	})
}

// Stream runs the refresh script with its output relayed live.
func (h *Refresh) Stream(w http.ResponseWriter, r *http.Request) {
	branch, ok := branchParam(r)
	if !ok {
		response.WriteError(w, http.StatusBadRequest, "Invalid branch name")
		return
	}
	forwardAction(h.auditor, r, "pull_code", branch, nil)

	script := h.cfg.RefreshScript()
	if _, err := os.Stat(script); err != nil {
		response.WriteError(w, http.StatusInternalServerError, "refresh script not found at "+script)
		return
	}
	gitops.EnsureExecutable(script)

	stream, err := sse.NewWriter(w)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stream.SendOpen("Starting refresh...")
	if branch != "" {
		stream.Line("[pull] Target branch requested: " + branch)
	}

	h.runner.Stream(r.Context(), runner.Command{
		Name: script,
		Dir:  h.cfg.RepoDir,
		Env:  refreshEnv(h.cfg.RepoDir, branch),
	}, &sseSink{w: stream})
}
