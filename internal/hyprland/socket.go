package hyprland

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"time"
)

// SignatureEnv identifies a running Hyprland instance.
const SignatureEnv = "HYPRLAND_INSTANCE_SIGNATURE"

const commandSocketName = ".socket.sock"

// SocketPaths returns the candidate control socket paths for the instance
// described by getenv, newest layout first. It returns nil when no
// instance signature is set.
func SocketPaths(getenv func(string) string) []string {
	sig := getenv(SignatureEnv)
	if sig == "" {
		return nil
	}
	var paths []string
	if runtimeDir := getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		paths = append(paths, filepath.Join(runtimeDir, "hypr", sig, commandSocketName))
	}
	// Hyprland before 0.40 kept its sockets under /tmp.
	paths = append(paths, filepath.Join("/tmp", "hypr", sig, commandSocketName))
	return paths
}

// Control sends one-shot requests to the Hyprland command socket.
type Control struct {
	paths   []string
	timeout time.Duration
}

// NewControl returns a client for the instance described by getenv.
func NewControl(getenv func(string) string, timeout time.Duration) *Control {
	return &Control{paths: SocketPaths(getenv), timeout: timeout}
}

// Available reports whether any candidate socket accepts a connection
// within the timeout.
func (c *Control) Available(ctx context.Context) bool {
	conn, err := c.dial(ctx)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Command sends cmd (for example "reload" or "j/version") and returns the
// reply.
func (c *Control) Command(ctx context.Context, cmd string) ([]byte, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return nil, fmt.Errorf("write Hyprland command %q: %w", cmd, err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read Hyprland reply to %q: %w", cmd, err)
	}
	return reply, nil
}

// Reload asks Hyprland to re-read its configuration.
func (c *Control) Reload(ctx context.Context) error {
	reply, err := c.Command(ctx, "reload")
	if err != nil {
		return err
	}
	if s := string(reply); s != "ok" && s != "" {
		return fmt.Errorf("hyprland reload: %s", s)
	}
	return nil
}

func (c *Control) dial(ctx context.Context) (net.Conn, error) {
	if len(c.paths) == 0 {
		return nil, fmt.Errorf("%s is not set", SignatureEnv)
	}
	dialer := net.Dialer{Timeout: c.timeout}
	var lastErr error
	for _, path := range c.paths {
		conn, err := dialer.DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("cannot open Hyprland socket: %w", lastErr)
}
