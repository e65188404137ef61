package hotkey

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(action bindings.Action, a accel.Accelerator) error
	Unregister(action bindings.Action) error
	Close() error
}

// Grab is one live OS-level key grab.
type Grab interface {
	// Keydown delivers a value per key press. It is closed after Release.
	Keydown() <-chan struct{}
	Release() error
}

// Grabber acquires native key grabs.
type Grabber interface {
	Grab(a accel.Accelerator) (Grab, error)
}

type registration struct {
	accel accel.Accelerator
	grab  Grab
	stop  chan struct{}
	done  chan struct{}
}

// GrabManager tracks one grab per action and forwards key presses to a
// callback.
type GrabManager struct {
	grabber Grabber
	onFire  func(bindings.Action)
	log     zerolog.Logger

	mu     sync.Mutex
	active map[bindings.Action]*registration
	closed bool
}

var _ Manager = (*GrabManager)(nil)

// New returns a manager grabbing through g. A nil g yields a manager whose
// Register always fails with UnsupportedPlatform. onFire runs on a
// forwarding goroutine and must not call back into the manager.
func New(g Grabber, onFire func(bindings.Action), log zerolog.Logger) *GrabManager {
	return &GrabManager{
		grabber: g,
		onFire:  onFire,
		log:     log,
		active:  make(map[bindings.Action]*registration),
	}
}

// Register binds a to action. Any prior grab for action is released first,
// so on failure the action has no grab at all.
func (m *GrabManager) Register(action bindings.Action, a accel.Accelerator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.grabber == nil {
		return apperr.New(apperr.UnsupportedPlatform, "global shortcuts are not available in this session")
	}
	if m.closed {
		return apperr.New(apperr.Internal, "hotkey manager is closed")
	}
	if a.IsZero() {
		return apperr.New(apperr.InvalidAccelerator, "empty accelerator")
	}

	if cur, ok := m.active[action]; ok && cur.accel == a {
		return nil
	}
	for other, reg := range m.active {
		if other != action && reg.accel == a {
			return apperr.New(apperr.ShortcutConflict, "%s is already bound to %s", a, other)
		}
	}

	if err := m.releaseLocked(action); err != nil {
		m.log.Warn().Err(err).Str("action", string(action)).Msg("Failed to release previous hotkey")
	}

	grab, err := m.grabber.Grab(a)
	if err != nil {
		if apperr.KindOf(err) == apperr.InvalidAccelerator {
			return err
		}
		return apperr.Wrap(apperr.ShortcutConflict, err, "could not register %s", a)
	}

	reg := &registration{
		accel: a,
		grab:  grab,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	m.active[action] = reg
	go m.forward(action, reg)

	m.log.Info().Str("action", string(action)).Str("accelerator", a.String()).Msg("Registered global hotkey")
	return nil
}

// Unregister releases the grab for action. Unknown actions are ignored.
func (m *GrabManager) Unregister(action bindings.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked(action)
}

// Close releases every grab. Later Register calls fail.
func (m *GrabManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for action := range m.active {
		if err := m.releaseLocked(action); err != nil {
			errs = append(errs, err)
		}
	}
	m.closed = true
	return errors.Join(errs...)
}

func (m *GrabManager) releaseLocked(action bindings.Action) error {
	reg, ok := m.active[action]
	if !ok {
		return nil
	}
	delete(m.active, action)

	close(reg.stop)
	err := reg.grab.Release()
	<-reg.done

	m.log.Debug().Str("action", string(action)).Str("accelerator", reg.accel.String()).Msg("Released global hotkey")
	return err
}

func (m *GrabManager) forward(action bindings.Action, reg *registration) {
	defer close(reg.done)
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("action", string(action)).Msg("Recovered from panic in hotkey callback")
		}
	}()

	keydown := reg.grab.Keydown()
	for {
		select {
		case <-reg.stop:
			return
		case _, ok := <-keydown:
			if !ok {
				return
			}
			m.log.Debug().Str("action", string(action)).Msg("Hotkey pressed")
			if m.onFire != nil {
				m.onFire(action)
			}
		}
	}
}
