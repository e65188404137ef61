// Package service is the single entry point the UI and the daemon use to
// read, change and apply hotkey bindings.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/hotkey"
	"github.com/petems/overlay-hotkeys/internal/hyprland"
	"github.com/petems/overlay-hotkeys/internal/platform"
)

// Detector reports the capabilities of the current session.
type Detector interface {
	Detect() platform.Info
}

// ConfigWriter edits the Hyprland config tree.
type ConfigWriter interface {
	Apply(ctx context.Context, action bindings.Action, a accel.Accelerator) (hyprland.ApplyResult, error)
	Remove(ctx context.Context, action bindings.Action) (hyprland.RemoveResult, error)
	BindLine(action bindings.Action, a accel.Accelerator) (string, error)
}

type Config struct {
	Store    *bindings.Store
	Platform Detector
	Writer   ConfigWriter
	// Hotkeys is optional. Without it bindings are persisted but never
	// registered, which is what one-shot CLI commands want.
	Hotkeys hotkey.Manager
	Logger  zerolog.Logger
}

type Service struct {
	store   *bindings.Store
	detect  Detector
	writer  ConfigWriter
	hotkeys hotkey.Manager
	log     zerolog.Logger

	// mu serializes mutations; the bind file and main config are shared
	// across actions.
	mu sync.Mutex

	statusMu sync.RWMutex
	status   map[bindings.Action]*Status
}

func New(cfg Config) *Service {
	return &Service{
		store:   cfg.Store,
		detect:  cfg.Platform,
		writer:  cfg.Writer,
		hotkeys: cfg.Hotkeys,
		log:     cfg.Logger,
		status:  make(map[bindings.Action]*Status),
	}
}

// Bindings returns every action's binding in display order.
func (s *Service) Bindings() ([]bindings.Binding, error) {
	return s.store.List()
}

// PlatformInfo re-detects the session on every call.
func (s *Service) PlatformInfo() platform.Info {
	return s.detect.Detect()
}

// UpdateBinding validates and persists raw for action, then registers it
// natively when the session allows. The binding stays persisted even when
// registration fails.
func (s *Service) UpdateBinding(action bindings.Action, raw string) error {
	action, err := bindings.ParseAction(string(action))
	if err != nil {
		return err
	}
	a, err := accel.Parse(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(bindings.Binding{Action: action, Accelerator: a}); err != nil {
		return err
	}
	s.log.Info().Str("action", string(action)).Str("accelerator", a.String()).Msg("Saved hotkey binding")

	info := s.detect.Detect()
	if !info.SupportsNativeGlobalShortcuts {
		err := apperr.New(apperr.UnsupportedPlatform,
			"saved %s, but %s sessions do not support native global shortcuts; bind it in your compositor instead", a, info.Label())
		s.setStatus(action, a, StatePersisted, err)
		return err
	}
	if s.hotkeys == nil {
		s.setStatus(action, a, StatePersisted, nil)
		return nil
	}
	return s.registerLocked(action, a)
}

// ApplyHyprlandBinding writes the persisted binding for action into the
// Hyprland config. It needs a reachable Hyprland session and an explicitly
// saved binding.
func (s *Service) ApplyHyprlandBinding(ctx context.Context, action bindings.Action) (hyprland.ApplyResult, error) {
	action, err := bindings.ParseAction(string(action))
	if err != nil {
		return hyprland.ApplyResult{}, err
	}

	info := s.detect.Detect()
	if !info.CanAutoConfigureHyprland {
		return hyprland.ApplyResult{}, apperr.New(apperr.UnsupportedPlatform, "%s", hyprlandUnavailable(info))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok, err := s.store.Persisted(action)
	if err != nil && !errors.Is(err, apperr.ErrCorruptBindingStore) {
		return hyprland.ApplyResult{}, err
	}
	if err != nil {
		return hyprland.ApplyResult{}, apperr.Wrap(apperr.ActionNotBound, err,
			"no usable saved binding for %s", action).WithPath(s.store.Path())
	}
	if !ok {
		return hyprland.ApplyResult{}, apperr.New(apperr.ActionNotBound,
			"%s has no saved binding; save one before applying it to Hyprland", action)
	}

	res, err := s.writer.Apply(ctx, action, a)
	if err != nil {
		return hyprland.ApplyResult{}, err
	}
	s.setHyprland(action, a, true)
	return res, nil
}

// RemoveHyprlandBinding reverses ApplyHyprlandBinding. It works without a
// running Hyprland session so the files can be cleaned up from anywhere.
func (s *Service) RemoveHyprlandBinding(ctx context.Context, action bindings.Action) (hyprland.RemoveResult, error) {
	action, err := bindings.ParseAction(string(action))
	if err != nil {
		return hyprland.RemoveResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.writer.Remove(ctx, action)
	if err != nil {
		return res, err
	}
	s.setHyprland(action, accel.Accelerator{}, false)
	return res, nil
}

// HyprlandBindLine previews the bind line Apply would write for the
// current binding of action.
func (s *Service) HyprlandBindLine(action bindings.Action) (string, error) {
	action, err := bindings.ParseAction(string(action))
	if err != nil {
		return "", err
	}
	m, err := s.store.Load()
	if err != nil {
		return "", err
	}
	return s.writer.BindLine(action, m[action])
}

// Start materializes the default bindings on first run and registers every
// binding natively. Registration failures are recorded in Status, not
// returned.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureDefaultsLocked(); err != nil {
		s.log.Warn().Err(err).Str("path", s.store.Path()).Msg("Binding store unreadable, using defaults")
	}

	current := s.loadOrDefaults()
	info := s.detect.Detect()
	s.log.Info().Str("platform", info.Label()).
		Bool("native", info.SupportsNativeGlobalShortcuts).
		Bool("hyprland_auto_config", info.CanAutoConfigureHyprland).
		Msg("Detected platform")

	for _, b := range bindings.Ordered(current) {
		s.applyNativeLocked(info, b.Action, b.Accelerator)
	}
}

// EnsureDefaults writes the default bindings when the store file does not
// exist yet, so one-shot commands see the same explicit entries a started
// daemon would.
func (s *Service) EnsureDefaults() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureDefaultsLocked()
}

func (s *Service) ensureDefaultsLocked() error {
	wrote, err := s.store.EnsureDefaults()
	if err != nil {
		return err
	}
	if wrote {
		s.log.Info().Str("path", s.store.Path()).Msg("Wrote default hotkey bindings")
	}
	return nil
}

// Close releases every native registration.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hotkeys == nil {
		return nil
	}
	return s.hotkeys.Close()
}

// Reload re-reads the store and re-registers bindings whose chord changed.
// A corrupt store keeps the current registrations.
func (s *Service) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load()
	if err != nil {
		s.log.Warn().Err(err).Msg("Ignoring unreadable binding store on reload")
		return err
	}

	info := s.detect.Detect()
	for _, b := range bindings.Ordered(current) {
		if st, ok := s.statusOf(b.Action); ok && st.Accelerator == b.Accelerator.String() {
			continue
		}
		s.log.Info().Str("action", string(b.Action)).Str("accelerator", b.Accelerator.String()).Msg("Binding changed on disk")
		s.applyNativeLocked(info, b.Action, b.Accelerator)
	}
	return nil
}

func (s *Service) applyNativeLocked(info platform.Info, action bindings.Action, a accel.Accelerator) {
	switch {
	case !info.SupportsNativeGlobalShortcuts:
		s.setStatus(action, a, StatePersisted, apperr.New(apperr.UnsupportedPlatform,
			"%s sessions do not support native global shortcuts", info.Label()))
	case s.hotkeys == nil:
		s.setStatus(action, a, StatePersisted, nil)
	default:
		if err := s.registerLocked(action, a); err != nil {
			s.log.Warn().Err(err).Str("action", string(action)).Str("accelerator", a.String()).Msg("Native hotkey registration failed")
		}
	}
}

func (s *Service) registerLocked(action bindings.Action, a accel.Accelerator) error {
	if err := s.hotkeys.Register(action, a); err != nil {
		s.setStatus(action, a, StateNativeFailed, err)
		return err
	}
	s.setStatus(action, a, StateNativeRegistered, nil)
	return nil
}

func (s *Service) loadOrDefaults() map[bindings.Action]accel.Accelerator {
	current, err := s.store.Load()
	if err != nil {
		if !errors.Is(err, apperr.ErrCorruptBindingStore) {
			s.log.Error().Err(err).Msg("Failed to load bindings")
		}
		return bindings.Defaults()
	}
	return current
}

func hyprlandUnavailable(info platform.Info) string {
	switch {
	case !info.IsLinux:
		return "automatic Hyprland configuration is only available on Linux"
	case !info.IsHyprland:
		return "automatic Hyprland configuration needs a Hyprland session, but HYPRLAND_INSTANCE_SIGNATURE is not set"
	default:
		return "Hyprland's control socket is not reachable; is the compositor still running?"
	}
}
