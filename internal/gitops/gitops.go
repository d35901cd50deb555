// Package gitops wraps the git operations the admin API performs on the
// application checkout: branch discovery, repository root resolution,
// and building the privileged pull invocation.
package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// updateMarkerFile is touched by the refresh script at the checkout root
// when a deploy finishes; its contents mark the last successful update.
const updateMarkerFile = "TIME"

type Service struct {
	logger  zerolog.Logger
	repoDir string
	runAs   string
}

// New returns a Service operating on the checkout at repoDir. When runAs
// is non-empty, pulls are executed as that user through sudo.
func New(logger zerolog.Logger, repoDir, runAs string) *Service {
	return &Service{
		logger:  logger.With().Str("component", "gitops").Logger(),
		repoDir: repoDir,
		runAs:   runAs,
	}
}

func (s *Service) RepoDir() string {
	return s.repoDir
}

// ResolveRepoRoot locates the application checkout: the explicit
// override when set, otherwise git toplevel discovery from the
// executable's directory, otherwise that directory's parent.
func ResolveRepoRoot(override string) string {
	if override != "" {
		return filepath.Clean(override)
	}

	dir := "."
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Dir(exe)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git",
		"-c", "safe.directory="+dir, "-C", dir,
		"rev-parse", "--show-toplevel").Output()
	if err == nil {
		if top := strings.TrimSpace(string(out)); top != "" {
			return top
		}
	}

	return filepath.Dir(dir)
}

// BranchList is the result of enumerating the checkout's branches.
type BranchList struct {
	Branches       []string
	Current        string
	LastUpdateTime string
}

// ListBranches refreshes remote refs and returns the deduplicated,
// sorted branch names plus the current branch. Individual git failures
// degrade the listing instead of failing it; a repo with no reachable
// remote still reports its local branches.
func (s *Service) ListBranches(ctx context.Context) *BranchList {
	if _, err := s.git(ctx, 30*time.Second, "remote", "update", "--prune"); err != nil {
		s.logger.Debug().Err(err).Msg("remote update failed, listing cached refs")
	}

	var branches []string
	if out, err := s.git(ctx, 30*time.Second, "for-each-ref", "--format=%(refname:short)", "refs/remotes/origin"); err == nil {
		branches = normalizeRemoteRefs(out)
	}
	if len(branches) == 0 {
		if out, err := s.git(ctx, 30*time.Second, "for-each-ref", "--format=%(refname:short)", "refs/heads"); err == nil {
			branches = splitRefLines(out)
		}
	}

	current := ""
	if out, err := s.git(ctx, 10*time.Second, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		current = strings.TrimSpace(out)
	}

	return &BranchList{
		Branches:       sortedUnique(branches),
		Current:        current,
		LastUpdateTime: s.readUpdateMarker(),
	}
}

// PullCommand is the argv for a fast-forward-only pull of the checkout,
// executed as the owning user when one is configured.
func (s *Service) PullCommand() (name string, args []string) {
	git := []string{"git", "-c", "safe.directory=" + s.repoDir, "-C", s.repoDir, "pull", "--ff-only"}
	if s.runAs != "" {
		return "sudo", append([]string{"-u", s.runAs}, git...)
	}
	return git[0], git[1:]
}

// EnsureExecutable marks a deploy script runnable. Failure is not fatal
// here: running the script will produce a clearer error than the chmod.
func EnsureExecutable(path string) {
	_ = os.Chmod(path, 0o755)
}

func (s *Service) git(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	full := append([]string{"-c", "safe.directory=" + s.repoDir, "-C", s.repoDir}, args...)
	out, err := exec.CommandContext(ctx, "git", full...).Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (s *Service) readUpdateMarker() string {
	data, err := os.ReadFile(filepath.Join(s.repoDir, updateMarkerFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// normalizeRemoteRefs strips the remote prefix and drops symbolic and
// bookkeeping refs from for-each-ref output.
func normalizeRemoteRefs(out string) []string {
	var branches []string
	for _, raw := range strings.Split(out, "\n") {
		ref := strings.TrimSpace(raw)
		if ref == "" || strings.Contains(ref, "->") {
			continue
		}
		name := strings.ReplaceAll(ref, "origin/", "")
		if name == "" || name == "HEAD" || name == "origin" {
			continue
		}
		branches = append(branches, name)
	}
	return branches
}

func splitRefLines(out string) []string {
	var refs []string
	for _, raw := range strings.Split(out, "\n") {
		if ref := strings.TrimSpace(raw); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

func sortedUnique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	sort.Strings(unique)
	return unique
}
