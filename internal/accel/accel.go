package accel

import (
	"runtime"
	"strings"

	"github.com/petems/overlay-hotkeys/internal/apperr"
)

// Modifier is a bit in an accelerator's modifier set.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// modifierOrder is the canonical rendering order.
var modifierOrder = []Modifier{ModCtrl, ModAlt, ModShift, ModSuper}

func (m Modifier) String() string {
	switch m {
	case ModCtrl:
		return "Ctrl"
	case ModAlt:
		return "Alt"
	case ModShift:
		return "Shift"
	case ModSuper:
		return "Super"
	default:
		return "?"
	}
}

// Accelerator is a parsed chord: a modifier set plus exactly one primary key.
// The zero value is not a valid accelerator; construct with Parse.
// Accelerators are comparable with ==.
type Accelerator struct {
	mods Modifier
	key  string
}

// Modifiers returns the modifier set.
func (a Accelerator) Modifiers() Modifier { return a.mods }

// Has reports whether m is part of the modifier set.
func (a Accelerator) Has(m Modifier) bool { return a.mods&m != 0 }

// Key returns the canonical primary key name, e.g. "Space" or "F12".
func (a Accelerator) Key() string { return a.key }

// IsZero reports whether a is the zero value.
func (a Accelerator) IsZero() bool { return a.key == "" }

// ModifierList returns the modifiers in canonical order.
func (a Accelerator) ModifierList() []Modifier {
	var out []Modifier
	for _, m := range modifierOrder {
		if a.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// String renders the canonical form, e.g. "Ctrl+Shift+Space".
func (a Accelerator) String() string {
	if a.IsZero() {
		return ""
	}
	var b strings.Builder
	for _, m := range a.ModifierList() {
		b.WriteString(m.String())
		b.WriteByte('+')
	}
	b.WriteString(a.key)
	return b.String()
}

func (a Accelerator) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Accelerator) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MustParse is Parse for compiled-in constants. It panics on error.
func MustParse(raw string) Accelerator {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// Parse reads an accelerator such as "ctrl+shift+space" or "Cmd+Alt+O".
// Tokens are separated by '+', surrounding whitespace and letter case are
// ignored, and aliases are folded to canonical names.
func Parse(raw string) (Accelerator, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Accelerator{}, apperr.New(apperr.InvalidAccelerator, "accelerator is empty")
	}

	var out Accelerator
	for _, token := range strings.Split(text, "+") {
		name := strings.ToLower(strings.TrimSpace(token))
		if name == "" {
			return Accelerator{}, apperr.New(apperr.InvalidAccelerator, "empty key in accelerator %q", text)
		}

		if mod, ok := lookupModifier(name); ok {
			if out.mods&mod != 0 {
				return Accelerator{}, apperr.New(apperr.InvalidAccelerator, "duplicate modifier %s in accelerator %q", mod, text)
			}
			out.mods |= mod
			continue
		}

		key, ok := lookupKey(name)
		if !ok {
			return Accelerator{}, apperr.New(apperr.InvalidAccelerator, "unrecognized key %q in accelerator %q", strings.TrimSpace(token), text)
		}
		if out.key != "" {
			return Accelerator{}, apperr.New(apperr.InvalidAccelerator, "accelerator %q has more than one key (%s, %s)", text, out.key, key)
		}
		out.key = key
	}

	if out.key == "" {
		return Accelerator{}, apperr.New(apperr.InvalidAccelerator, "accelerator %q has no key besides modifiers", text)
	}
	return out, nil
}

var modifierByName = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"ctl":     ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"altgr":   ModAlt,
	"shift":   ModShift,
	"super":   ModSuper,
	"meta":    ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"win":     ModSuper,
	"windows": ModSuper,
	"logo":    ModSuper,
	"mod4":    ModSuper,
}

func lookupModifier(name string) (Modifier, bool) {
	switch name {
	case "cmdorctrl", "commandorcontrol", "cmdorcontrol", "commandorctrl":
		if runtime.GOOS == "darwin" {
			return ModSuper, true
		}
		return ModCtrl, true
	}
	m, ok := modifierByName[name]
	return m, ok
}
