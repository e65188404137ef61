//go:build !linux && !darwin && !windows

package xhotkey

import (
	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/hotkey"
)

const Supported = false

type Grabber struct{}

func New(zerolog.Logger) (*Grabber, error) {
	return nil, apperr.New(apperr.UnsupportedPlatform, "global shortcuts are not supported on this OS")
}

func (*Grabber) Close() error { return nil }

func (*Grabber) Grab(a accel.Accelerator) (hotkey.Grab, error) {
	return nil, apperr.New(apperr.UnsupportedPlatform, "global shortcuts are not supported on this OS")
}
