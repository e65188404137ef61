package hyprland

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/fsutil"
)

const (
	DefaultMainConfig      = "hyprland.conf"
	DefaultBindFile        = "overlay-hotkeys.conf"
	DefaultDispatchCommand = "{exe} trigger {action}"

	maxConfigBytes = 4 << 20
)

// ApplyResult reports what Apply ensured on disk.
type ApplyResult struct {
	BindFilePath   string `json:"bindFilePath"`
	MainConfigPath string `json:"mainConfigPath"`
	SourceLine     string `json:"sourceLine"`
	BindLine       string `json:"bindLine"`
}

// RemoveResult reports what Remove took out.
type RemoveResult struct {
	BindFilePath   string `json:"bindFilePath"`
	MainConfigPath string `json:"mainConfigPath"`
	RemovedBind    bool   `json:"removedBind"`
	RemovedSource  bool   `json:"removedSource"`
}

// Options configures a Writer. Zero fields take defaults.
type Options struct {
	// ConfigDir holds the main config and the bind file.
	// Defaults to $XDG_CONFIG_HOME/hypr.
	ConfigDir  string
	MainConfig string
	BindFile   string

	// DispatchCommand is the exec target of the bind line. {exe} expands to
	// the quoted Executable and {action} to the action name.
	DispatchCommand string
	Executable      string

	// Control, when set, receives a reload after each change.
	Control *Control
	Logger  zerolog.Logger
}

// Writer edits the Hyprland config tree. It only touches its own bind file
// and one marked source line in the main config.
type Writer struct {
	opts Options
	log  zerolog.Logger

	mu sync.Mutex
}

// DefaultConfigDir returns Hyprland's config directory for getenv.
func DefaultConfigDir(getenv func(string) string) string {
	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hypr")
	}
	home := getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".config", "hypr")
}

func NewWriter(opts Options) *Writer {
	if opts.ConfigDir == "" {
		opts.ConfigDir = DefaultConfigDir(os.Getenv)
	}
	if opts.MainConfig == "" {
		opts.MainConfig = DefaultMainConfig
	}
	if opts.BindFile == "" {
		opts.BindFile = DefaultBindFile
	}
	if opts.DispatchCommand == "" {
		opts.DispatchCommand = DefaultDispatchCommand
	}
	if opts.Executable == "" {
		if exe, err := os.Executable(); err == nil {
			opts.Executable = exe
		} else {
			opts.Executable = "overlay-hotkeys"
		}
	}
	return &Writer{opts: opts, log: opts.Logger}
}

// MainConfigPath returns the compositor's main config file.
func (w *Writer) MainConfigPath() string {
	return joinIfRelative(w.opts.ConfigDir, w.opts.MainConfig)
}

// BindFilePath returns the bind file owned by this writer.
func (w *Writer) BindFilePath() string {
	return joinIfRelative(w.opts.ConfigDir, w.opts.BindFile)
}

// SourceLine is the line that makes the main config include the bind file.
func (w *Writer) SourceLine() string {
	return "source = " + w.BindFilePath()
}

// BindLine renders the bind line for action without touching disk.
func (w *Writer) BindLine(action bindings.Action, a accel.Accelerator) (string, error) {
	chord, err := Chord(a)
	if err != nil {
		return "", err
	}
	cmd := strings.NewReplacer(
		"{exe}", shellQuote(w.opts.Executable),
		"{action}", string(action),
	).Replace(w.opts.DispatchCommand)
	return "bind = " + chord + ", exec, " + cmd, nil
}

// Apply ensures the bind file holds exactly one bind line for action and
// that the main config sources the bind file. Repeating a call with the
// same arguments leaves both files unchanged.
func (w *Writer) Apply(ctx context.Context, action bindings.Action, a accel.Accelerator) (ApplyResult, error) {
	bindLine, err := w.BindLine(action, a)
	if err != nil {
		return ApplyResult{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	result := ApplyResult{
		BindFilePath:   w.BindFilePath(),
		MainConfigPath: w.MainConfigPath(),
		SourceLine:     w.SourceLine(),
		BindLine:       bindLine,
	}

	bindChanged, err := w.edit(result.BindFilePath, func(content string) (string, bool) {
		updated := upsertBlock(content, action, bindLine)
		return updated, updated != content
	})
	if err != nil {
		return ApplyResult{}, err
	}

	home, _ := os.UserHomeDir()
	mainChanged, err := w.edit(result.MainConfigPath, func(content string) (string, bool) {
		if sourcesFile(content, result.BindFilePath, w.opts.ConfigDir, home) {
			return content, false
		}
		return appendSource(content, result.SourceLine), true
	})
	if err != nil {
		return ApplyResult{}, err
	}

	w.log.Info().
		Str("action", string(action)).
		Str("bind_file", result.BindFilePath).
		Str("main_config", result.MainConfigPath).
		Bool("bind_changed", bindChanged).
		Bool("source_added", mainChanged).
		Msg("Applied Hyprland binding")

	if bindChanged || mainChanged {
		w.reload(ctx)
	}
	return result, nil
}

// Remove deletes action's block from the bind file. When no managed block
// is left the bind file is deleted and the source line removed.
func (w *Writer) Remove(ctx context.Context, action bindings.Action) (RemoveResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := RemoveResult{
		BindFilePath:   w.BindFilePath(),
		MainConfigPath: w.MainConfigPath(),
	}

	var remaining bool
	_, err := w.edit(result.BindFilePath, func(content string) (string, bool) {
		updated, removed := removeBlock(content, action)
		result.RemovedBind = removed
		remaining = hasAnyBlock(updated)
		return updated, removed
	})
	if err != nil {
		return result, err
	}

	if !remaining {
		target, err := fsutil.ResolveTarget(result.BindFilePath)
		if err == nil {
			err = os.Remove(target)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, apperr.Wrap(apperr.CompositorConfigUnwritable, err, "remove bind file").WithPath(result.BindFilePath)
		}

		_, err = w.edit(result.MainConfigPath, func(content string) (string, bool) {
			updated, removed := removeSource(content, w.SourceLine())
			result.RemovedSource = removed
			return updated, removed
		})
		if err != nil {
			return result, err
		}
	}

	w.log.Info().
		Str("action", string(action)).
		Bool("removed_bind", result.RemovedBind).
		Bool("removed_source", result.RemovedSource).
		Msg("Removed Hyprland binding")

	if result.RemovedBind || result.RemovedSource {
		w.reload(ctx)
	}
	return result, nil
}

// edit reads path (missing reads as empty), applies fn and writes the
// result atomically when fn reports a change.
func (w *Writer) edit(path string, fn func(string) (string, bool)) (bool, error) {
	target, err := fsutil.ResolveTarget(path)
	if err != nil {
		return false, apperr.Wrap(apperr.CompositorConfigUnwritable, err, "resolve config path").WithPath(path)
	}

	raw, err := fsutil.ReadFileLimited(target, maxConfigBytes)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, apperr.Wrap(apperr.CompositorConfigUnwritable, err, "read config").WithPath(target)
	}

	updated, changed := fn(string(raw))
	if !changed {
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(target, []byte(updated), fsutil.FileMode(target, 0o644)); err != nil {
		return false, apperr.Wrap(apperr.CompositorConfigUnwritable, err, "write config").WithPath(target)
	}
	return true, nil
}

func (w *Writer) reload(ctx context.Context) {
	if w.opts.Control == nil {
		return
	}
	if err := w.opts.Control.Reload(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Hyprland reload failed; changes apply on next config reload")
		return
	}
	w.log.Debug().Msg("Hyprland config reloaded")
}

func joinIfRelative(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}
