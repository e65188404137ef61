package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
)

// ErrDaemonNotRunning means nothing accepted the connection.
var ErrDaemonNotRunning = errors.New("overlay-hotkeys daemon is not running")

// Trigger asks the daemon listening on path to run action.
func Trigger(ctx context.Context, path string, action bindings.Action) error {
	reply, err := roundTrip(ctx, path, ClientTimeout, cmdTrigger+" "+string(action))
	if err != nil {
		return err
	}
	switch {
	case reply == replyOK:
		return nil
	case strings.HasPrefix(reply, replyError):
		return errors.New(strings.TrimSpace(strings.TrimPrefix(reply, replyError)))
	default:
		return fmt.Errorf("unexpected reply %q", reply)
	}
}

// Invoke runs command on the daemon's command bridge and returns its JSON
// result. Failures reported by the daemon keep their kind and path.
func Invoke(ctx context.Context, path, command string, payload []byte) ([]byte, error) {
	line := cmdInvoke + " " + command
	if len(bytes.TrimSpace(payload)) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "invalid command payload")
		}
		line += " " + compact.String()
	}

	reply, err := roundTrip(ctx, path, InvokeTimeout, line)
	if err != nil {
		return nil, err
	}
	if out, ok := strings.CutPrefix(reply, replyOK); ok {
		return []byte(strings.TrimSpace(out)), nil
	}
	if body, ok := strings.CutPrefix(reply, replyError); ok {
		return nil, apperr.FromJSON([]byte(strings.TrimSpace(body)))
	}
	return nil, fmt.Errorf("unexpected reply %q", reply)
}

// roundTrip sends one request line and reads one reply line.
func roundTrip(ctx context.Context, path string, timeout time.Duration, line string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
