package hyprland

import (
	"strings"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
)

var modNames = map[accel.Modifier]string{
	accel.ModCtrl:  "CTRL",
	accel.ModAlt:   "ALT",
	accel.ModShift: "SHIFT",
	accel.ModSuper: "SUPER",
}

// keysyms maps canonical key names that differ from their xkb keysym.
// Letters, digits and F-keys pass through unchanged.
var keysyms = map[string]string{
	"Space":        "SPACE",
	"Enter":        "Return",
	"Tab":          "Tab",
	"Escape":       "Escape",
	"Backspace":    "BackSpace",
	"Delete":       "Delete",
	"Insert":       "Insert",
	"Home":         "Home",
	"End":          "End",
	"PageUp":       "Page_Up",
	"PageDown":     "Page_Down",
	"Up":           "Up",
	"Down":         "Down",
	"Left":         "Left",
	"Right":        "Right",
	"PrintScreen":  "Print",
	"Plus":         "plus",
	"Minus":        "minus",
	"Equal":        "equal",
	"Comma":        "comma",
	"Period":       "period",
	"Slash":        "slash",
	"Backslash":    "backslash",
	"Semicolon":    "semicolon",
	"Quote":        "apostrophe",
	"Backquote":    "grave",
	"BracketLeft":  "bracketleft",
	"BracketRight": "bracketright",
}

// Chord renders a in Hyprland's "MODS, KEY" form, e.g. "CTRL SHIFT, SPACE".
func Chord(a accel.Accelerator) (string, error) {
	if a.IsZero() {
		return "", apperr.New(apperr.InvalidAccelerator, "empty accelerator")
	}

	key, err := keysym(a.Key())
	if err != nil {
		return "", err
	}
	if a.Modifiers() == 0 && accel.IsPrintable(a.Key()) {
		return "", apperr.New(apperr.InvalidAccelerator,
			"%s without modifiers would capture normal typing in Hyprland", a)
	}

	mods := make([]string, 0, 4)
	for _, m := range a.ModifierList() {
		mods = append(mods, modNames[m])
	}
	return strings.Join(mods, " ") + ", " + key, nil
}

func keysym(key string) (string, error) {
	if sym, ok := keysyms[key]; ok {
		return sym, nil
	}
	switch {
	case len(key) == 1:
		return key, nil
	case len(key) >= 2 && key[0] == 'F':
		return key, nil
	}
	return "", apperr.New(apperr.InvalidAccelerator, "key %s has no Hyprland keysym", key)
}

// shellQuote quotes s for the /bin/sh that Hyprland's exec dispatcher uses.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
