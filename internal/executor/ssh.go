package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/JamesDodds/ipmi-api-gateway/internal/strutil"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

const defaultSSHHandshakeTimeout = 15 * time.Second

// SSHProxyOptions configures the jump host connection.
type SSHProxyOptions struct {
	Address          string
	User             string
	KeyPath          string
	KnownHostsPath   string
	UseAgent         *bool
	HandshakeTimeout time.Duration
}

// SSHProxy executes commands by running ipmitool on a jump host that
// has a route into the management network. The BMC credentials still
// come from the target descriptor; the jump host authenticates with a
// key or the local ssh agent.
type SSHProxy struct {
	opts   SSHProxyOptions
	logger *slog.Logger
}

func NewSSHProxy(opts SSHProxyOptions, logger *slog.Logger) *SSHProxy {
	return &SSHProxy{
		opts:   opts,
		logger: logger,
	}
}

func (e *SSHProxy) Execute(ctx context.Context, d target.Descriptor, cmd Command) (Result, error) {
	args, err := ipmitoolArgs(d, cmd)
	if err != nil {
		return Result{}, err
	}

	escaped := make([]string, 0, len(args)+1)
	escaped = append(escaped, defaultIpmitoolPath)
	for _, arg := range args {
		escaped = append(escaped, strutil.ShellEscape(arg))
	}
	remote := strings.Join(escaped, " ")

	e.logger.Debug("Executing ipmitool via proxy",
		"proxy", e.opts.Address,
		"target", d.Name,
		"address", d.Address,
		"command", strutil.Redact(remote, d.Password))

	stdout, stderr, runErr := e.run(ctx, remote)
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		if stderr == "" {
			return Result{}, runErr
		}
		return Result{}, classifyRunError(stderr, runErr)
	}

	return buildResult(cmd, stdout), nil
}

func (e *SSHProxy) run(ctx context.Context, command string) (string, string, error) {
	addr := e.opts.Address
	if !strings.Contains(addr, ":") {
		addr = addr + ":22"
	}

	authMethods := []ssh.AuthMethod{}

	// Prefer explicit key material before falling back to the agent.
	if e.opts.KeyPath != "" {
		expandedPath, err := expandPath(e.opts.KeyPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to expand ssh key path %q: %w", e.opts.KeyPath, err)
		}
		key, err := os.ReadFile(expandedPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to read ssh key %q: %w", expandedPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return "", "", fmt.Errorf("failed to parse ssh key %q: %w", expandedPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if e.useAgent() {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			if agentConn, err := net.Dial("unix", sock); err == nil {
				authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
				defer agentConn.Close()
			}
		}
	}

	if len(authMethods) == 0 {
		return "", "", fmt.Errorf("no ssh authentication methods available for proxy")
	}

	knownHostsPath, err := resolveKnownHostsPath(e.opts.KnownHostsPath)
	if err != nil {
		return "", "", err
	}
	hostKeyCallback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to load known_hosts file %q: %w", knownHostsPath, err)
	}

	config := &ssh.ClientConfig{
		User:            e.opts.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	// Use a dialer that supports context
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", "", fmt.Errorf("failed to dial proxy %s: %w", addr, err)
	}

	if err := applyHandshakeDeadline(ctx, conn, e.handshakeTimeout()); err != nil {
		conn.Close()
		return "", "", err
	}
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		close(handshakeDone)
		conn.Close()
		return "", "", fmt.Errorf("failed to establish ssh connection to proxy %s: %w", addr, err)
	}
	close(handshakeDone)
	if err := clearDeadline(conn); err != nil {
		sshConn.Close()
		return "", "", err
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	// Handle context cancellation
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-done:
		}
	}()
	defer close(done)

	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

func (e *SSHProxy) useAgent() bool {
	if e.opts.UseAgent == nil {
		return true
	}
	return *e.opts.UseAgent
}

func (e *SSHProxy) handshakeTimeout() time.Duration {
	if e.opts.HandshakeTimeout > 0 {
		return e.opts.HandshakeTimeout
	}
	return defaultSSHHandshakeTimeout
}

func applyHandshakeDeadline(ctx context.Context, conn net.Conn, timeout time.Duration) error {
	deadline, ok := handshakeDeadline(ctx, timeout)
	if !ok {
		return nil
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set ssh handshake deadline: %w", err)
	}
	return nil
}

func clearDeadline(conn net.Conn) error {
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("clear ssh handshake deadline: %w", err)
	}
	return nil
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	now := time.Now()
	if timeout > 0 {
		deadline = now.Add(timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	if deadline.IsZero() {
		return time.Time{}, false
	}
	return deadline, true
}

func resolveKnownHostsPath(path string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
