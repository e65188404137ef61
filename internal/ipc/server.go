package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
)

// Handler runs a triggered action. A returned error is sent back to the
// client.
type Handler func(action bindings.Action) error

// Invoker runs a bridge command with a JSON payload and returns the JSON
// result.
type Invoker func(ctx context.Context, command string, payload []byte) ([]byte, error)

// Server accepts trigger and invoke requests on a unix socket.
type Server struct {
	path    string
	handler Handler
	invoke  Invoker
	log     zerolog.Logger

	mu       sync.Mutex
	ctx      context.Context
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer returns a server for path. invoke may be nil, in which case
// INVOKE requests are refused.
func NewServer(path string, handler Handler, invoke Invoker, log zerolog.Logger) *Server {
	return &Server{
		path:    path,
		handler: handler,
		invoke:  invoke,
		log:     log,
		ctx:     context.Background(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Listen binds the socket. A leftover socket file from a dead daemon is
// removed; a live one makes Listen fail.
func (s *Server) Listen() error {
	if _, err := os.Stat(s.path); err == nil {
		if conn, derr := net.DialTimeout("unix", s.path, 200*time.Millisecond); derr == nil {
			conn.Close()
			return fmt.Errorf("another instance is listening on %s", s.path)
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("failed removing stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on unix socket: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info().Str("path", s.path).Msg("Trigger socket listening")
	return nil
}

// Serve accepts clients until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.ctx = ctx
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("Accept error")
			continue
		}

		s.mu.Lock()
		if s.listener == nil {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleClient(conn)
	}
}

// Close stops accepting, drops open clients and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		err = errors.Join(err, rerr)
	}
	return err
}

func (s *Server) handleClient(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := s.dispatch(line)
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			s.log.Debug().Err(err).Msg("Write error")
			return
		}
	}
}

func (s *Server) dispatch(line string) string {
	verb, arg, _ := strings.Cut(line, " ")
	switch strings.ToUpper(verb) {
	case cmdTrigger:
		return s.trigger(strings.TrimSpace(arg))
	case cmdInvoke:
		return s.invokeCommand(strings.TrimSpace(arg))
	default:
		return replyError + " unknown command " + verb
	}
}

func (s *Server) trigger(arg string) string {
	action, err := bindings.ParseAction(arg)
	if err != nil {
		return replyError + " " + err.Error()
	}
	if err := s.runHandler(action); err != nil {
		s.log.Warn().Err(err).Str("action", string(action)).Msg("Trigger failed")
		return replyError + " " + oneLine(err.Error())
	}
	s.log.Debug().Str("action", string(action)).Msg("Triggered over socket")
	return replyOK
}

func (s *Server) invokeCommand(arg string) string {
	command, payload, _ := strings.Cut(arg, " ")
	if s.invoke == nil {
		return replyError + " " + string(apperr.JSON(apperr.New(apperr.Internal, "daemon does not accept commands")))
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, InvokeTimeout)
	defer cancel()

	out, err := s.runInvoke(ctx, command, []byte(payload))
	if err != nil {
		s.log.Debug().Err(err).Str("command", command).Msg("Invoke failed")
		return replyError + " " + string(apperr.JSON(err))
	}
	s.log.Debug().Str("command", command).Msg("Invoked over socket")
	return replyOK + " " + oneLine(string(out))
}

func (s *Server) runInvoke(ctx context.Context, command string, payload []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.New(apperr.Internal, "command panic: %v", r)
		}
	}()
	return s.invoke(ctx, command, payload)
}

func (s *Server) runHandler(action bindings.Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(action)
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
