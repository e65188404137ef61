//go:build darwin || windows

package xhotkey

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	xh "golang.design/x/hotkey"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/hotkey"
)

// Supported reports whether this build can grab native shortcuts.
const Supported = true

var keyMap = map[string]xh.Key{
	"Space":  xh.KeySpace,
	"Enter":  xh.KeyReturn,
	"Escape": xh.KeyEscape,
	"Delete": xh.KeyDelete,
	"Tab":    xh.KeyTab,
	"Left":   xh.KeyLeft,
	"Right":  xh.KeyRight,
	"Up":     xh.KeyUp,
	"Down":   xh.KeyDown,

	"A": xh.KeyA, "B": xh.KeyB, "C": xh.KeyC, "D": xh.KeyD, "E": xh.KeyE,
	"F": xh.KeyF, "G": xh.KeyG, "H": xh.KeyH, "I": xh.KeyI, "J": xh.KeyJ,
	"K": xh.KeyK, "L": xh.KeyL, "M": xh.KeyM, "N": xh.KeyN, "O": xh.KeyO,
	"P": xh.KeyP, "Q": xh.KeyQ, "R": xh.KeyR, "S": xh.KeyS, "T": xh.KeyT,
	"U": xh.KeyU, "V": xh.KeyV, "W": xh.KeyW, "X": xh.KeyX, "Y": xh.KeyY,
	"Z": xh.KeyZ,

	"0": xh.Key0, "1": xh.Key1, "2": xh.Key2, "3": xh.Key3, "4": xh.Key4,
	"5": xh.Key5, "6": xh.Key6, "7": xh.Key7, "8": xh.Key8, "9": xh.Key9,

	"F1": xh.KeyF1, "F2": xh.KeyF2, "F3": xh.KeyF3, "F4": xh.KeyF4,
	"F5": xh.KeyF5, "F6": xh.KeyF6, "F7": xh.KeyF7, "F8": xh.KeyF8,
	"F9": xh.KeyF9, "F10": xh.KeyF10, "F11": xh.KeyF11, "F12": xh.KeyF12,
}

// Translate converts a into the native modifier list and key.
func Translate(a accel.Accelerator) ([]xh.Modifier, xh.Key, error) {
	key, ok := keyMap[a.Key()]
	if !ok {
		return nil, 0, apperr.New(apperr.InvalidAccelerator, "key %s cannot be registered as a global shortcut", a.Key())
	}
	mods := make([]xh.Modifier, 0, 4)
	for _, m := range a.ModifierList() {
		mods = append(mods, modifierMap[m])
	}
	return mods, key, nil
}

// Grabber registers accelerators with the OS.
type Grabber struct {
	log zerolog.Logger
}

var _ hotkey.Grabber = (*Grabber)(nil)

func New(log zerolog.Logger) (*Grabber, error) {
	return &Grabber{log: log}, nil
}

// Close is a no-op; each grab is released on its own.
func (g *Grabber) Close() error { return nil }

// Grab registers a. The returned grab's Keydown channel fires once per
// press until Release.
func (g *Grabber) Grab(a accel.Accelerator) (hotkey.Grab, error) {
	mods, key, err := Translate(a)
	if err != nil {
		return nil, err
	}

	hk := xh.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register %s: %w", a, err)
	}

	gr := &grab{
		hk:      hk,
		name:    a.String(),
		keydown: make(chan struct{}),
		stop:    make(chan struct{}),
		log:     g.log,
	}
	go gr.convert()
	return gr, nil
}

type grab struct {
	hk      *xh.Hotkey
	name    string
	keydown chan struct{}
	stop    chan struct{}
	log     zerolog.Logger

	once sync.Once
}

func (g *grab) Keydown() <-chan struct{} { return g.keydown }

// convert turns the library's event channel into a plain signal channel.
func (g *grab) convert() {
	defer close(g.keydown)
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("accelerator", g.name).Msg("Recovered from panic in hotkey converter")
		}
	}()

	for {
		select {
		case <-g.stop:
			return
		case <-g.hk.Keydown():
			select {
			case g.keydown <- struct{}{}:
			case <-g.stop:
				return
			}
		}
	}
}

func (g *grab) Release() error {
	var err error
	g.once.Do(func() {
		close(g.stop)
		if uerr := g.hk.Unregister(); uerr != nil {
			err = fmt.Errorf("unregister %s: %w", g.name, uerr)
		}
	})
	return err
}
