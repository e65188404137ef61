package bindings

import (
	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
)

// Action names a logical hotkey action.
type Action string

const (
	ToggleOverlayVisibility Action = "toggle_overlay_visibility"
)

// Actions lists every recognized action in display order.
var Actions = []Action{
	ToggleOverlayVisibility,
}

var defaults = map[Action]accel.Accelerator{
	ToggleOverlayVisibility: accel.MustParse("Ctrl+Shift+Space"),
}

// Binding pairs an action with its accelerator.
type Binding struct {
	Action      Action            `json:"action"`
	Accelerator accel.Accelerator `json:"accelerator"`
}

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	_, ok := defaults[a]
	return ok
}

// ParseAction validates a name coming from the UI or the CLI.
func ParseAction(name string) (Action, error) {
	a := Action(name)
	if !a.Valid() {
		return "", apperr.New(apperr.UnknownAction, "unknown hotkey action %q", name)
	}
	return a, nil
}

// Default returns the compiled-in accelerator for a.
func Default(a Action) accel.Accelerator {
	return defaults[a]
}

// Defaults returns a fresh map holding the default accelerator for every
// action.
func Defaults() map[Action]accel.Accelerator {
	out := make(map[Action]accel.Accelerator, len(defaults))
	for a, acc := range defaults {
		out[a] = acc
	}
	return out
}

// Ordered flattens m into a slice following Actions order. Actions missing
// from m are skipped.
func Ordered(m map[Action]accel.Accelerator) []Binding {
	out := make([]Binding, 0, len(Actions))
	for _, a := range Actions {
		if acc, ok := m[a]; ok {
			out = append(out, Binding{Action: a, Accelerator: acc})
		}
	}
	return out
}
