// Package diagnostics verifies the daemon's external dependencies at startup:
// the ffmpeg and ffprobe binaries, the audio work directory, and the Redis
// staging store. The daemon refuses to start when any check fails, so a
// missing transcoder surfaces immediately instead of on the first upload.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/sessionscribe/sessionscribe/internal/config"
)

// Check is the outcome of a single startup probe.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Checker probes the process environment. OS lookups are injected so tests
// can simulate missing binaries.
type Checker struct {
	lookPath func(file string) (string, error)
	log      *slog.Logger
}

func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{lookPath: exec.LookPath, log: logger}
}

// Run executes all startup checks and logs each result. It always runs the
// full set so the operator sees every problem at once.
func (c *Checker) Run(ctx context.Context, cfg *config.Config, rdb *redis.Client) []Check {
	checks := []Check{
		c.checkTool("ffmpeg", cfg.Audio.FFmpegPath),
		c.checkTool("ffprobe", cfg.Audio.FFprobePath),
		c.checkWorkDir(cfg.Audio.ResolveWorkDir()),
		c.checkRedis(ctx, rdb),
	}
	for _, chk := range checks {
		if chk.OK {
			c.log.Info("diagnostics.check.ok", "name", chk.Name, "detail", chk.Detail)
		} else {
			c.log.Error("diagnostics.check.failed", "name", chk.Name, "detail", chk.Detail)
		}
	}
	return checks
}

// Failed reports whether any check in the set did not pass.
func Failed(checks []Check) bool {
	for _, chk := range checks {
		if !chk.OK {
			return true
		}
	}
	return false
}

func (c *Checker) checkTool(name, path string) Check {
	resolved, err := c.lookPath(path)
	if err != nil {
		return Check{Name: name, Detail: fmt.Sprintf("%s not found: %v", path, err)}
	}
	return Check{Name: name, OK: true, Detail: resolved}
}

// checkWorkDir creates the directory and proves it is writable by touching a
// file in it, since MkdirAll succeeds on an existing read-only directory.
func (c *Checker) checkWorkDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "work_dir", Detail: fmt.Sprintf("create %s: %v", dir, err)}
	}
	probe, err := os.CreateTemp(dir, "probe-*")
	if err != nil {
		return Check{Name: "work_dir", Detail: fmt.Sprintf("write to %s: %v", dir, err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return Check{Name: "work_dir", OK: true, Detail: filepath.Clean(dir)}
}

func (c *Checker) checkRedis(ctx context.Context, rdb *redis.Client) Check {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return Check{Name: "redis", Detail: fmt.Sprintf("ping %s: %v", rdb.Options().Addr, err)}
	}
	return Check{Name: "redis", OK: true, Detail: rdb.Options().Addr}
}
