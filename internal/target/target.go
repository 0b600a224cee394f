// Package target defines the Execution Target: the place where an action's
// commands run and where its directory tree lives. A target is either the
// local machine or a remote host reached over SSH; the engine only ever talks
// to the interface below.
package target

import "context"

// ExitCommandNotFound is the exit code reported when the executable cannot be
// resolved, mirroring what a POSIX shell returns.
const ExitCommandNotFound = 127

// Result is the captured outcome of one command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Target is a long-lived handle shared by every action of a workflow.
// Implementations must be safe for concurrent use.
//
// A non-zero exit code is reported through Result, never as an error. An
// error from Run means the target itself failed: the host is unreachable, the
// session broke, or the context was cancelled.
type Target interface {
	// Name identifies the target in logs, e.g. "local" or "ssh:user@host:22".
	Name() string
	// Run executes cmd with args in dir. An empty dir means the target's
	// working directory.
	Run(ctx context.Context, cmd string, args []string, dir string) (Result, error)
	// MkdirAll creates path and any missing parents.
	MkdirAll(ctx context.Context, path string) error
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// Getwd returns the absolute working directory that parentless actions
	// are rooted in.
	Getwd(ctx context.Context) (string, error)
	// WriteFile creates or truncates path with data.
	WriteFile(ctx context.Context, path string, data []byte) error
	// ReadFile returns the contents of path.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// Close releases the session. The target must not be used afterwards.
	Close(ctx context.Context) error
}
