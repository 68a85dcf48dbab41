// Package sandbox runs untrusted embedded code blocks under a reduced-
// privilege account and captures their output.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/starford/wolog/internal/apperr"
)

// Runner executes a script with the given interpreter and returns its
// stdout. Implementations must bound execution time.
type Runner interface {
	Run(ctx context.Context, interpreter string, script []byte) ([]byte, error)
}

// Config describes the privilege-dropping wrapper and execution budget.
type Config struct {
	Sudo    string        // path to the privilege-dropping wrapper, default "sudo"
	User    string        // unprivileged account, default "nobody"
	Group   string        // unprivileged group, default "nogroup"
	Timeout time.Duration // wait budget per execution, default 10s
}

// SudoRunner runs scripts as an unprivileged user via sudo. Construction
// fails closed: without a resolvable wrapper binary no executions happen.
type SudoRunner struct {
	cfg Config
}

// New resolves the wrapper binary and returns a runner. If the host cannot
// drop privileges the error wraps apperr.ErrUnavailable and the caller must
// not execute dynamic blocks.
func New(cfg Config) (*SudoRunner, error) {
	if cfg.Sudo == "" {
		cfg.Sudo = "sudo"
	}
	if cfg.User == "" {
		cfg.User = "nobody"
	}
	if cfg.Group == "" {
		cfg.Group = "nogroup"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	resolved, err := exec.LookPath(cfg.Sudo)
	if err != nil {
		return nil, fmt.Errorf("sandbox: privilege wrapper %q: %w: %w", cfg.Sudo, apperr.ErrUnavailable, err)
	}
	cfg.Sudo = resolved
	return &SudoRunner{cfg: cfg}, nil
}

// Run writes the script to a temp file readable only by its executing
// account, invokes the interpreter under the unprivileged identity and
// returns captured stdout. A non-zero exit or a blown timeout is an error
// carrying the captured stderr.
func (r *SudoRunner) Run(ctx context.Context, interpreter string, script []byte) ([]byte, error) {
	file, err := os.CreateTemp("", "wolog-dyn-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: temp file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.Write(script); err != nil {
		file.Close()
		return nil, fmt.Errorf("sandbox: write script: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("sandbox: close script: %w", err)
	}
	// Other-execute only, so the file is useless to anything but the
	// sandbox account.
	if err := os.Chmod(file.Name(), 0o005); err != nil {
		return nil, fmt.Errorf("sandbox: chmod script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Sudo,
		"-u", r.cfg.User, "-g", r.cfg.Group, interpreter, file.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("sandbox: %s timed out after %s: %w", interpreter, r.cfg.Timeout, runCtx.Err())
		}
		return nil, fmt.Errorf("sandbox: %s failed: %w (%s)", interpreter, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
