package runner

import (
	"strconv"
	"strings"
)

// DefaultLauncher is the MPI launcher used when a rank count is configured
// without an explicit launcher.
const DefaultLauncher = "mpirun"

// Command is an executable together with the arguments bound to it at
// definition time. Caller-supplied arguments are appended after them.
type Command struct {
	Path string
	Args []string
}

// NewCommand builds a Command from an executable and its bound arguments.
func NewCommand(path string, args ...string) Command {
	return Command{Path: path, Args: append([]string(nil), args...)}
}

// With returns a copy of c with more bound arguments.
func (c Command) With(args ...string) Command {
	bound := make([]string, 0, len(c.Args)+len(args))
	bound = append(bound, c.Args...)
	bound = append(bound, args...)
	return Command{Path: c.Path, Args: bound}
}

// IsZero reports whether no executable is set.
func (c Command) IsZero() bool {
	return c.Path == ""
}

// Argv returns the executable followed by its bound arguments.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// prefixed makes c the trailing part of another command line.
func prefixed(path string, lead []string, c Command) Command {
	args := make([]string, 0, len(lead)+1+len(c.Args))
	args = append(args, lead...)
	args = append(args, c.Argv()...)
	return Command{Path: path, Args: args}
}

// MPI wraps c with `<launcher> -np <np>`. An empty launcher means
// DefaultLauncher.
func MPI(launcher string, np int, c Command) Command {
	if launcher == "" {
		launcher = DefaultLauncher
	}
	return prefixed(launcher, []string{"-np", strconv.Itoa(np)}, c)
}

// Mprof wraps c with memory profiling of the whole process tree.
func Mprof(c Command) Command {
	return prefixed("mprof", []string{"run", "--include-children"}, c)
}

// Env wraps c with `env KEY=VALUE...`, which is how library paths are
// forwarded to remote HPC commands that do not inherit a login environment.
func Env(c Command, vars ...string) Command {
	return prefixed("env", vars, c)
}
