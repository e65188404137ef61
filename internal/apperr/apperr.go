package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure surfaced to the UI.
type Kind string

const (
	InvalidAccelerator         Kind = "InvalidAccelerator"
	CorruptBindingStore        Kind = "CorruptBindingStore"
	ShortcutConflict           Kind = "ShortcutConflict"
	UnsupportedPlatform        Kind = "UnsupportedPlatform"
	ActionNotBound             Kind = "ActionNotBound"
	CompositorConfigUnwritable Kind = "CompositorConfigUnwritable"
	UnknownAction              Kind = "UnknownAction"
	Internal                   Kind = "Internal"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrInvalidAccelerator         = &Error{Kind: InvalidAccelerator}
	ErrCorruptBindingStore        = &Error{Kind: CorruptBindingStore}
	ErrShortcutConflict           = &Error{Kind: ShortcutConflict}
	ErrUnsupportedPlatform        = &Error{Kind: UnsupportedPlatform}
	ErrActionNotBound             = &Error{Kind: ActionNotBound}
	ErrCompositorConfigUnwritable = &Error{Kind: CompositorConfigUnwritable}
	ErrUnknownAction              = &Error{Kind: UnknownAction}
)

// Error is a typed failure. Path is set when a file was involved.
type Error struct {
	Kind Kind   `json:"kind"`
	Msg  string `json:"message"`
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can test against the
// package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithPath records the file a failure refers to and returns e.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// PathOf returns the Path of the first *Error in err's chain that has one.
func PathOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Path != "" {
			return e.Path
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// JSON renders err as {"kind", "message", "path"}. Errors without a kind are
// reported as Internal.
func JSON(err error) []byte {
	out := struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Path    string `json:"path,omitempty"`
	}{
		Kind:    KindOf(err),
		Message: err.Error(),
		Path:    PathOf(err),
	}
	raw, _ := json.Marshal(out)
	return raw
}

// remote is an error decoded from JSON. Its text is kept verbatim while the
// kind and path stay reachable through Unwrap.
type remote struct {
	msg   string
	cause *Error
}

func (r *remote) Error() string { return r.msg }
func (r *remote) Unwrap() error { return r.cause }

// FromJSON decodes an error rendered by JSON. Anything else becomes an
// Internal error carrying the raw text.
func FromJSON(raw []byte) error {
	var in struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || in.Kind == "" {
		return New(Internal, "%s", strings.TrimSpace(string(raw)))
	}
	return &remote{msg: in.Message, cause: &Error{Kind: in.Kind, Msg: in.Message, Path: in.Path}}
}
