package app

import "sync"

// Overlay is the visibility state of the overlay window. It starts visible.
type Overlay struct {
	mu       sync.Mutex
	visible  bool
	onChange []func(visible bool)
}

func NewOverlay() *Overlay {
	return &Overlay{visible: true}
}

// Visible reports the current state.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Toggle flips visibility and returns the new state.
func (o *Overlay) Toggle() bool {
	o.mu.Lock()
	o.visible = !o.visible
	visible := o.visible
	listeners := append([]func(bool){}, o.onChange...)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(visible)
	}
	return visible
}

// OnChange registers fn to run after every toggle.
func (o *Overlay) OnChange(fn func(visible bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onChange = append(o.onChange, fn)
}
