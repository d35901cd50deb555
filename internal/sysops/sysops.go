// Package sysops runs privileged host operations through sudo. The
// daemon itself runs unprivileged; sudoers grants it the narrow set of
// commands used here.
package sysops

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

const (
	restartTimeout   = 60 * time.Second
	reloadTimeout    = 30 * time.Second
	rebootTimeout    = 30 * time.Second
	dropCacheTimeout = 30 * time.Second
)

// ServiceManager abstracts privileged host control so the HTTP layer
// works identically on a systemd host and in a development container.
//
// Production hosts use SystemdManager. Development containers use
// DirectManager.
type ServiceManager interface {
	// Restart fully stops and starts a unit.
	Restart(ctx context.Context, unit string) error

	// Reload asks a unit to re-read its configuration (e.g. HUP).
	Reload(ctx context.Context, unit string) error

	// Reboot reboots the host.
	Reboot(ctx context.Context) error

	// DropCaches flushes dirty pages and evicts the kernel page cache.
	DropCaches(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// SystemdManager — production (hosts with systemd and sudo rules)
// ---------------------------------------------------------------------------

// SystemdManager implements ServiceManager using sudo systemctl.
type SystemdManager struct {
	logger zerolog.Logger
}

func NewSystemdManager(logger zerolog.Logger) *SystemdManager {
	return &SystemdManager{logger: logger.With().Str("svc_mgr", "systemd").Logger()}
}

func (s *SystemdManager) Restart(ctx context.Context, unit string) error {
	s.logger.Info().Str("unit", unit).Msg("restarting service")
	return sudoSystemctl(ctx, restartTimeout, "restart", unit)
}

func (s *SystemdManager) Reload(ctx context.Context, unit string) error {
	s.logger.Info().Str("unit", unit).Msg("reloading service")
	return sudoSystemctl(ctx, reloadTimeout, "reload", unit)
}

func (s *SystemdManager) Reboot(ctx context.Context) error {
	s.logger.Warn().Msg("rebooting host")
	return sudoSystemctl(ctx, rebootTimeout, "reboot")
}

func (s *SystemdManager) DropCaches(ctx context.Context) error {
	s.logger.Info().Msg("dropping kernel caches")
	if err := run(ctx, dropCacheTimeout, "sync"); err != nil {
		return err
	}
	// The redirection target is only writable by root, so the whole
	// shell runs under sudo.
	return run(ctx, dropCacheTimeout, "sudo", "bash", "-c", "echo 3 > /proc/sys/vm/drop_caches")
}

// ---------------------------------------------------------------------------
// DirectManager — development (no systemd, no sudo)
// ---------------------------------------------------------------------------

// DirectManager implements ServiceManager with direct process signals
// where possible and logged no-ops otherwise.
type DirectManager struct {
	logger zerolog.Logger
}

func NewDirectManager(logger zerolog.Logger) *DirectManager {
	return &DirectManager{logger: logger.With().Str("svc_mgr", "direct").Logger()}
}

func (d *DirectManager) Restart(ctx context.Context, unit string) error {
	d.logger.Debug().Str("unit", unit).Msg("restart: sending SIGTERM (supervisor must restart it)")
	if err := pkillSignal(ctx, unit, "TERM"); err != nil {
		d.logger.Warn().Str("unit", unit).Msg("could not signal process (may not be running)")
	}
	return nil
}

func (d *DirectManager) Reload(ctx context.Context, unit string) error {
	d.logger.Debug().Str("unit", unit).Msg("reload: sending SIGHUP")
	if err := pkillSignal(ctx, unit, "HUP"); err != nil {
		d.logger.Warn().Str("unit", unit).Msg("could not signal process (may not be running)")
	}
	return nil
}

func (d *DirectManager) Reboot(_ context.Context) error {
	d.logger.Warn().Msg("reboot: no-op without systemd")
	return nil
}

func (d *DirectManager) DropCaches(_ context.Context) error {
	d.logger.Warn().Msg("drop caches: no-op without root")
	return nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s %v: %w", name, args, context.DeadlineExceeded)
	}
	if err != nil {
		return fmt.Errorf("%s %v: %s: %w", name, args, string(output), err)
	}
	return nil
}

func sudoSystemctl(ctx context.Context, timeout time.Duration, args ...string) error {
	return run(ctx, timeout, "sudo", append([]string{"systemctl"}, args...)...)
}

func pkillSignal(ctx context.Context, process, signal string) error {
	cmd := exec.CommandContext(ctx, "pkill", "-"+signal, "-f", process)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pkill -%s %s: %s: %w", signal, process, string(output), err)
	}
	return nil
}
