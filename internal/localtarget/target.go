// Package localtarget provides a concrete implementation of the target.Target
// interface for commands executed on the local machine.
package localtarget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/target"
)

// Target implements target.Target with os/exec and the local filesystem.
type Target struct {
	dir string
}

var _ target.Target = (*Target)(nil)

// New creates a local target rooted at dir. An empty dir means the process
// working directory at the time Getwd is called.
func New(dir string) *Target {
	return &Target{dir: dir}
}

// Name implements target.Target.
func (t *Target) Name() string {
	return "local"
}

// Run implements target.Target. A missing executable is reported as exit code
// 127 with a "command not found" message on stderr rather than as an error,
// so callers see it through the same pass/fail policy as any other failure.
func (t *Target) Run(ctx context.Context, name string, args []string, dir string) (target.Result, error) {
	logger := ctxlog.FromContext(ctx)
	if dir == "" {
		dir = t.dir
	} else {
		dir = t.abs(dir)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Executing local command.", "command", name, "args", args, "dir", dir)
	err := cmd.Run()
	if err == nil {
		return target.Result{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return target.Result{}, fmt.Errorf("local command %s interrupted: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return target.Result{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		logger.Debug("Local command not found.", "command", name, "error", err)
		return target.Result{
			ExitCode: target.ExitCommandNotFound,
			Stderr:   fmt.Sprintf("command not found: %s", name),
		}, nil
	}

	return target.Result{}, fmt.Errorf("failed to start local command %s: %w", name, err)
}

// MkdirAll implements target.Target.
func (t *Target) MkdirAll(_ context.Context, path string) error {
	return os.MkdirAll(t.abs(path), 0o755)
}

// Exists implements target.Target.
func (t *Target) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(t.abs(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Getwd implements target.Target.
func (t *Target) Getwd(_ context.Context) (string, error) {
	if t.dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(t.dir)
}

// WriteFile implements target.Target.
func (t *Target) WriteFile(_ context.Context, path string, data []byte) error {
	return os.WriteFile(t.abs(path), data, 0o644)
}

// ReadFile implements target.Target.
func (t *Target) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(t.abs(path))
}

// Close implements target.Target. The local target holds no resources.
func (t *Target) Close(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("localtarget.Target.Close called")
	return nil
}

// abs resolves relative paths against the target directory rather than the
// process working directory.
func (t *Target) abs(path string) string {
	if filepath.IsAbs(path) || t.dir == "" {
		return path
	}
	return filepath.Join(t.dir, path)
}
