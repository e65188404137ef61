package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/hyprland"
	"github.com/petems/overlay-hotkeys/internal/platform"
	"github.com/petems/overlay-hotkeys/internal/service"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetVisible()
	SetHidden()
	SetDegraded(reason string)
}

type Config struct {
	Service       *service.Service
	Overlay       *Overlay // Optional - a fresh visible overlay when nil
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	svc     *service.Service
	overlay *Overlay
	log     zerolog.Logger

	mu     sync.Mutex
	status StatusUpdater
}

func New(cfg Config) *App {
	overlay := cfg.Overlay
	if overlay == nil {
		overlay = NewOverlay()
	}
	a := &App{
		svc:     cfg.Service,
		overlay: overlay,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
	}
	overlay.OnChange(func(bool) { a.RefreshStatus() })
	return a
}

// SetStatusUpdater sets the status sink (for circular dependency resolution)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
	a.RefreshStatus()
}

// Overlay returns the overlay state driven by hotkeys.
func (a *App) Overlay() *Overlay { return a.overlay }

// OnHotkey runs action. It is the callback for native hotkeys.
func (a *App) OnHotkey(action bindings.Action) {
	switch action {
	case bindings.ToggleOverlayVisibility:
		visible := a.overlay.Toggle()
		a.log.Info().Bool("visible", visible).Msg("Toggled overlay")
	default:
		a.log.Warn().Str("action", string(action)).Msg("Ignoring unknown hotkey action")
	}
}

// Trigger validates name and runs it. It serves the trigger socket.
func (a *App) Trigger(action bindings.Action) error {
	action, err := bindings.ParseAction(string(action))
	if err != nil {
		return err
	}
	a.OnHotkey(action)
	return nil
}

// Bindings, PlatformInfo and Status pass through to the service for the
// tray.

func (a *App) Bindings() ([]bindings.Binding, error) { return a.svc.Bindings() }

func (a *App) PlatformInfo() platform.Info { return a.svc.PlatformInfo() }

func (a *App) Status() []service.Status { return a.svc.Status() }

// ApplyHyprland writes every action's binding to the Hyprland config.
func (a *App) ApplyHyprland(ctx context.Context) ([]hyprland.ApplyResult, error) {
	var out []hyprland.ApplyResult
	for _, action := range bindings.Actions {
		res, err := a.svc.ApplyHyprlandBinding(ctx, action)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	a.RefreshStatus()
	return out, nil
}

// RemoveHyprland undoes ApplyHyprland.
func (a *App) RemoveHyprland(ctx context.Context) error {
	for _, action := range bindings.Actions {
		if _, err := a.svc.RemoveHyprlandBinding(ctx, action); err != nil {
			return err
		}
	}
	a.RefreshStatus()
	return nil
}

// HyprlandBindLines previews the bind lines for every action.
func (a *App) HyprlandBindLines() (string, error) {
	lines := make([]string, 0, len(bindings.Actions))
	for _, action := range bindings.Actions {
		line, err := a.svc.HyprlandBindLine(action)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// Reload re-reads the binding store after an external change.
func (a *App) Reload() {
	if err := a.svc.Reload(); err != nil {
		a.log.Warn().Err(err).Msg("Binding reload failed")
	}
	a.RefreshStatus()
}

// RefreshStatus pushes the current state to the status updater. A degraded
// binding wins over the visibility indicator.
func (a *App) RefreshStatus() {
	a.mu.Lock()
	status := a.status
	a.mu.Unlock()
	if status == nil {
		return
	}

	for _, st := range a.svc.Status() {
		if st.Degraded() {
			status.SetDegraded(fmt.Sprintf("%s (%s): %s", st.Action, st.Accelerator, st.NativeError))
			return
		}
	}
	if a.overlay.Visible() {
		status.SetVisible()
	} else {
		status.SetHidden()
	}
}

// Shutdown releases the native hotkey registrations.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info().Msg("Shutting down")
	if err := a.svc.Close(); err != nil {
		return fmt.Errorf("release hotkeys: %w", err)
	}
	return nil
}
