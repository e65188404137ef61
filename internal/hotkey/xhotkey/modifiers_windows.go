//go:build windows

package xhotkey

import (
	xh "golang.design/x/hotkey"

	"github.com/petems/overlay-hotkeys/internal/accel"
)

var modifierMap = map[accel.Modifier]xh.Modifier{
	accel.ModCtrl:  xh.ModCtrl,
	accel.ModShift: xh.ModShift,
	accel.ModAlt:   xh.ModAlt,
	accel.ModSuper: xh.ModWin,
}
