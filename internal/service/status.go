package service

import (
	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/bindings"
)

// State is how far a binding got this session.
type State string

const (
	StatePersisted        State = "persisted"
	StateNativeRegistered State = "native_registered"
	StateNativeFailed     State = "native_failed"
)

// Status describes one action's binding as seen by the running process.
// A binding in StateNativeFailed is saved but not active; NativeError says
// why.
type Status struct {
	Action          bindings.Action `json:"action"`
	Accelerator     string          `json:"accelerator"`
	State           State           `json:"state"`
	NativeError     string          `json:"nativeError,omitempty"`
	HyprlandApplied bool            `json:"hyprlandApplied"`

	hyprlandAccel accel.Accelerator
}

// Degraded reports whether the binding is saved but not usable natively.
func (st Status) Degraded() bool {
	return st.State == StateNativeFailed || st.NativeError != ""
}

// Status returns one entry per action in display order. Actions this
// process has not touched yet are reported from the store as persisted.
func (s *Service) Status() []Status {
	stored := s.loadOrDefaults()

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	out := make([]Status, 0, len(bindings.Actions))
	for _, a := range bindings.Actions {
		if st, ok := s.status[a]; ok {
			out = append(out, *st)
			continue
		}
		out = append(out, Status{
			Action:      a,
			Accelerator: stored[a].String(),
			State:       StatePersisted,
		})
	}
	return out
}

func (s *Service) statusOf(a bindings.Action) (Status, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[a]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

func (s *Service) entry(a bindings.Action) *Status {
	st, ok := s.status[a]
	if !ok {
		st = &Status{Action: a, State: StatePersisted}
		s.status[a] = st
	}
	return st
}

func (s *Service) setStatus(a bindings.Action, acc accel.Accelerator, state State, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	st := s.entry(a)
	st.Accelerator = acc.String()
	st.State = state
	st.NativeError = ""
	if err != nil {
		st.NativeError = err.Error()
	}
	st.HyprlandApplied = !st.hyprlandAccel.IsZero() && st.hyprlandAccel == acc
}

// setHyprland records that acc is (or, with applied false, no longer is)
// written to the Hyprland bind file for a.
func (s *Service) setHyprland(a bindings.Action, acc accel.Accelerator, applied bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	st := s.entry(a)
	if !applied {
		acc = accel.Accelerator{}
	}
	st.hyprlandAccel = acc
	st.HyprlandApplied = applied
	if st.Accelerator == "" {
		st.Accelerator = acc.String()
	}
}
