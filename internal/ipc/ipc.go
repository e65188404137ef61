// Package ipc carries hotkey actions and bridge commands from short-lived
// processes (the Hyprland bind line, the invoke subcommand) to the running
// daemon over a unix socket.
//
// The protocol is line based:
//
//	TRIGGER <action>          -> OK | ERROR <message>
//	INVOKE <command> [<json>] -> OK <json> | ERROR <error json>
package ipc

import (
	"os"
	"path/filepath"
	"time"
)

const (
	socketName = "overlay-hotkeys.sock"

	// ClientTimeout bounds a whole Trigger round trip.
	ClientTimeout = 2 * time.Second
	// InvokeTimeout bounds an Invoke round trip, which may edit files and
	// reload the compositor.
	InvokeTimeout = 10 * time.Second

	cmdTrigger = "TRIGGER"
	cmdInvoke  = "INVOKE"
	replyOK    = "OK"
	replyError = "ERROR"
	maxLine    = 4096
)

// DefaultSocketPath returns $XDG_RUNTIME_DIR/overlay-hotkeys.sock, falling
// back to the temp dir.
func DefaultSocketPath(getenv func(string) string) string {
	if dir := getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), socketName)
}
