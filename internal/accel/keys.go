package accel

import "strconv"

// keyByName maps lower-cased names and aliases to canonical key names.
// Letters, digits and function keys are added in init.
var keyByName = map[string]string{
	"space":        "Space",
	"spacebar":     "Space",
	"enter":        "Enter",
	"return":       "Enter",
	"tab":          "Tab",
	"escape":       "Escape",
	"esc":          "Escape",
	"backspace":    "Backspace",
	"delete":       "Delete",
	"del":          "Delete",
	"insert":       "Insert",
	"ins":          "Insert",
	"home":         "Home",
	"end":          "End",
	"pageup":       "PageUp",
	"pgup":         "PageUp",
	"pagedown":     "PageDown",
	"pgdn":         "PageDown",
	"up":           "Up",
	"arrowup":      "Up",
	"down":         "Down",
	"arrowdown":    "Down",
	"left":         "Left",
	"arrowleft":    "Left",
	"right":        "Right",
	"arrowright":   "Right",
	"printscreen":  "PrintScreen",
	"print":        "PrintScreen",
	"plus":         "Plus",
	"minus":        "Minus",
	"-":            "Minus",
	"equal":        "Equal",
	"=":            "Equal",
	"comma":        "Comma",
	",":            "Comma",
	"period":       "Period",
	".":            "Period",
	"slash":        "Slash",
	"/":            "Slash",
	"backslash":    "Backslash",
	"\\":           "Backslash",
	"semicolon":    "Semicolon",
	";":            "Semicolon",
	"quote":        "Quote",
	"'":            "Quote",
	"backquote":    "Backquote",
	"grave":        "Backquote",
	"`":            "Backquote",
	"bracketleft":  "BracketLeft",
	"[":            "BracketLeft",
	"bracketright": "BracketRight",
	"]":            "BracketRight",
}

// MaxFunctionKey is the highest F-key Parse accepts.
const MaxFunctionKey = 24

func init() {
	for c := 'a'; c <= 'z'; c++ {
		keyByName[string(c)] = string(c - 'a' + 'A')
	}
	for c := '0'; c <= '9'; c++ {
		keyByName[string(c)] = string(c)
	}
	for n := 1; n <= MaxFunctionKey; n++ {
		name := "F" + strconv.Itoa(n)
		keyByName["f"+strconv.Itoa(n)] = name
	}
}

func lookupKey(name string) (string, bool) {
	k, ok := keyByName[name]
	return k, ok
}

// IsPrintable reports whether key produces text when typed without
// modifiers.
func IsPrintable(key string) bool {
	if len(key) == 1 {
		return true
	}
	switch key {
	case "Space", "Plus", "Minus", "Equal", "Comma", "Period", "Slash",
		"Backslash", "Semicolon", "Quote", "Backquote", "BracketLeft", "BracketRight":
		return true
	}
	return false
}
