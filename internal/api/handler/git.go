package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/botaniq/admind/internal/api/response"
	"github.com/botaniq/admind/internal/api/sse"
	"github.com/botaniq/admind/internal/auditlog"
	"github.com/botaniq/admind/internal/gitops"
	"github.com/botaniq/admind/internal/runner"
)

const gitPullTimeout = 120 * time.Second

// gitService is the slice of the git layer the handler uses.
type gitService interface {
	RepoDir() string
	ListBranches(ctx context.Context) *gitops.BranchList
	PullCommand() (name string, args []string)
}

// Git serves branch listing and fast-forward pulls of the checkout.
type Git struct {
	gits    gitService
	runner  *runner.Runner
	auditor *auditlog.Forwarder
}

func NewGit(gits gitService, run *runner.Runner, auditor *auditlog.Forwarder) *Git {
	return &Git{gits: gits, runner: run, auditor: auditor}
}

type branchesResponse struct {
	Branches       []string `json:"branches"`
	Current        string   `json:"current"`
	LastUpdateTime *string  `json:"lastUpdateTime"`
}

// Branches lists remote branches plus the current checkout and the last
// update marker. Caching is disabled so the admin UI always sees fresh
// refs after a fetch.
func (h *Git) Branches(w http.ResponseWriter, r *http.Request) {
	list := h.gits.ListBranches(r.Context())

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	response.WriteJSON(w, http.StatusOK, branchesResponse{
		Branches:       list.Branches,
		Current:        list.Current,
		LastUpdateTime: nullableString(list.LastUpdateTime),
	})
}

type gitPullSuccess struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Output  string `json:"output"`
}

type gitPullFailure struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Output string `json:"output"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// Pull runs a fast-forward pull as the checkout owner and waits for it.
func (h *Git) Pull(w http.ResponseWriter, r *http.Request) {
	forwardAction(h.auditor, r, "git_pull", "simple", nil)

	name, args := h.gits.PullCommand()
	res, err := h.runner.Run(r.Context(), runner.Command{
		Name:    name,
		Args:    args,
		Dir:     h.gits.RepoDir(),
		Timeout: gitPullTimeout,
	})
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.TimedOut {
		response.WriteError(w, http.StatusGatewayTimeout, "Git pull timed out")
		return
	}
	if !res.OK() {
		response.WriteJSON(w, http.StatusInternalServerError, gitPullFailure{
			Error:  "Git pull failed",
			Output: res.Stdout,
			Stderr: res.Stderr,
			Code:   res.ExitCode,
		})
		return
	}
	response.WriteJSON(w, http.StatusOK, gitPullSuccess{
		OK:      true,
		Message: "Git pull completed successfully",
		Output:  res.Stdout,
	})
}

// PullStream is Pull with live output over an event stream.
func (h *Git) PullStream(w http.ResponseWriter, r *http.Request) {
	forwardAction(h.auditor, r, "git_pull", "simple", nil)

	stream, err := sse.NewWriter(w)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stream.SendOpen("Starting git pull...")
	stream.Line("[git] Running git pull in " + h.gits.RepoDir())

	name, args := h.gits.PullCommand()
	h.runner.Stream(r.Context(), runner.Command{
		Name: name,
		Args: args,
		Dir:  h.gits.RepoDir(),
	}, &gitPullSink{sseSink{w: stream}})
}

// gitPullSink adds the summary line the admin UI expects before the
// terminal event.
type gitPullSink struct {
	sseSink
}

func (s *gitPullSink) Done(ok bool, code int) {
	if ok {
		s.w.Line("[git] Git pull completed successfully")
	} else {
		s.w.Line(fmt.Sprintf("[git] Git pull failed with code %d", code))
	}
	s.sseSink.Done(ok, code)
}
