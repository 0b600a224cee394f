// Package sshtarget provides a target.Target that runs commands on a remote
// host over SSH. One client connection is shared by every action; each
// command gets its own SSH session, which the client multiplexes.
package sshtarget

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/target"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the connection settings for a remote target.
type Config struct {
	Host       string
	Port       int
	User       string
	KeyFile    string
	Password   string
	KnownHosts string
	// Insecure disables host key verification. Only meant for throwaway
	// test hosts.
	Insecure bool
	// Workdir roots parentless actions. Empty means the login directory.
	Workdir string
	Timeout time.Duration
}

// Target implements target.Target over an *ssh.Client.
type Target struct {
	client  *ssh.Client
	name    string
	workdir string
}

var _ target.Target = (*Target)(nil)

// Dial connects to the remote host described by cfg.
func Dial(ctx context.Context, cfg Config) (*Target, error) {
	logger := ctxlog.FromContext(ctx)
	if cfg.Host == "" {
		return nil, errors.New("ssh target: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	logger.Debug("Dialing SSH target.", "address", addr, "user", cfg.User)

	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh target: dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh target: handshake with %s: %w", addr, err)
	}

	t := &Target{
		client:  ssh.NewClient(sshConn, chans, reqs),
		name:    fmt.Sprintf("ssh:%s@%s", cfg.User, addr),
		workdir: cfg.Workdir,
	}
	logger.Info("Connected to SSH target.", "target", t.name)
	return t, nil
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(expandHome(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("ssh target: reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("ssh target: parsing key file: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh target: no authentication method configured (key_file or password)")
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case cfg.Insecure:
		hostKey = ssh.InsecureIgnoreHostKey()
	case cfg.KnownHosts != "":
		cb, err := knownhosts.New(expandHome(cfg.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("ssh target: loading known_hosts: %w", err)
		}
		hostKey = cb
	default:
		return nil, errors.New("ssh target: known_hosts is required unless insecure is set")
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}, nil
}

// Name implements target.Target.
func (t *Target) Name() string {
	return t.name
}

// Run implements target.Target. The remote shell reports a missing executable
// as exit code 127 on its own.
func (t *Target) Run(ctx context.Context, name string, args []string, dir string) (target.Result, error) {
	line := commandLine(dir, name, args)
	ctxlog.FromContext(ctx).Debug("Executing remote command.", "target", t.name, "command_line", line)
	return t.exec(ctx, line, nil)
}

// exec runs a raw shell line in a fresh session. Cancelling ctx kills the
// remote process and closes the session.
func (t *Target) exec(ctx context.Context, line string, stdin []byte) (target.Result, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return target.Result{}, fmt.Errorf("ssh target %s: opening session: %w", t.name, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		return target.Result{}, fmt.Errorf("ssh target %s: command interrupted: %w", t.name, ctx.Err())
	}

	res := target.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return res, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	return target.Result{}, fmt.Errorf("ssh target %s: %w", t.name, runErr)
}

// MkdirAll implements target.Target.
func (t *Target) MkdirAll(ctx context.Context, path string) error {
	res, err := t.exec(ctx, "mkdir -p "+quotePath(path), nil)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("ssh target %s: mkdir -p %s exited with code %d: %s", t.name, path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Exists implements target.Target.
func (t *Target) Exists(ctx context.Context, path string) (bool, error) {
	res, err := t.exec(ctx, "test -e "+quotePath(path), nil)
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("ssh target %s: test -e %s exited with code %d: %s", t.name, path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
}

// Getwd implements target.Target.
func (t *Target) Getwd(ctx context.Context) (string, error) {
	line := "pwd"
	if t.workdir != "" {
		line = "cd " + quotePath(t.workdir) + " && pwd"
	}
	res, err := t.exec(ctx, line, nil)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("ssh target %s: resolving working directory exited with code %d: %s", t.name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// WriteFile implements target.Target by streaming data into `cat`.
func (t *Target) WriteFile(ctx context.Context, path string, data []byte) error {
	res, err := t.exec(ctx, "cat > "+quotePath(path), data)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("ssh target %s: writing %s exited with code %d: %s", t.name, path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// ReadFile implements target.Target.
func (t *Target) ReadFile(ctx context.Context, path string) ([]byte, error) {
	res, err := t.exec(ctx, "cat "+quotePath(path), nil)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("ssh target %s: reading %s exited with code %d: %s", t.name, path, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return []byte(res.Stdout), nil
}

// Close implements target.Target.
func (t *Target) Close(ctx context.Context) error {
	ctxlog.FromContext(ctx).Debug("Closing SSH target.", "target", t.name)
	return t.client.Close()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
