package platform

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/hyprland"
)

// DefaultProbeTimeout bounds the Hyprland socket probe.
const DefaultProbeTimeout = 250 * time.Millisecond

// Info describes the capabilities of the running session.
type Info struct {
	IsLinux                       bool `json:"isLinux"`
	IsWayland                     bool `json:"isWayland"`
	IsHyprland                    bool `json:"isHyprland"`
	SupportsNativeGlobalShortcuts bool `json:"supportsNativeGlobalShortcuts"`
	CanAutoConfigureHyprland      bool `json:"canAutoConfigureHyprland"`
}

// Label is a short human description, e.g. "Hyprland (Wayland)".
func (i Info) Label() string {
	switch {
	case i.IsHyprland:
		return "Hyprland (Wayland)"
	case i.IsWayland:
		return "Wayland"
	case i.IsLinux:
		return "X11"
	default:
		return runtime.GOOS
	}
}

// Detector derives Info from the environment. The zero value is not usable;
// construct with New.
type Detector struct {
	getenv  func(string) string
	goos    string
	timeout time.Duration
	log     zerolog.Logger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithEnv replaces os.Getenv, mostly for tests.
func WithEnv(getenv func(string) string) Option {
	return func(d *Detector) { d.getenv = getenv }
}

// WithGOOS overrides runtime.GOOS.
func WithGOOS(goos string) Option {
	return func(d *Detector) { d.goos = goos }
}

// WithProbeTimeout bounds the Hyprland socket probe.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(d *Detector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for probe diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Detector) { d.log = log }
}

func New(opts ...Option) *Detector {
	d := &Detector{
		getenv:  os.Getenv,
		goos:    runtime.GOOS,
		timeout: DefaultProbeTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProbeTimeout returns the socket probe bound.
func (d *Detector) ProbeTimeout() time.Duration { return d.timeout }

// Detect inspects the session. It never fails: a missing or unresponsive
// Hyprland socket only clears CanAutoConfigureHyprland.
func (d *Detector) Detect() Info {
	var info Info
	info.IsLinux = d.goos == "linux"

	if info.IsLinux {
		info.IsWayland = d.getenv("XDG_SESSION_TYPE") == "wayland" || d.getenv("WAYLAND_DISPLAY") != ""
		info.IsHyprland = d.getenv(hyprland.SignatureEnv) != ""
	}

	// Native grabs are unreliable on Wayland unless the compositor is Hyprland.
	info.SupportsNativeGlobalShortcuts = !(info.IsWayland && !info.IsHyprland)

	if info.IsHyprland {
		info.CanAutoConfigureHyprland = d.probeHyprland()
	}
	return info
}

func (d *Detector) probeHyprland() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn().Interface("panic", r).Msg("Hyprland socket probe panicked")
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	ctl := hyprland.NewControl(d.getenv, d.timeout)
	if !ctl.Available(ctx) {
		d.log.Debug().Strs("sockets", hyprland.SocketPaths(d.getenv)).Msg("Hyprland control socket unreachable")
		return false
	}
	return true
}
