//go:build linux

package xhotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

static int lastError;

static int recordError(Display *d, XErrorEvent *e) {
    lastError = e->error_code;
    return 0;
}

// openDisplay installs a recording error handler first so a refused grab
// does not terminate the process.
static Display *openDisplay(void) {
    XSetErrorHandler(recordError);
    return XOpenDisplay(NULL);
}

static const unsigned int lockVariants[] = {0, LockMask, Mod2Mask, LockMask | Mod2Mask};

static int grabChord(Display *d, int keycode, unsigned int mods) {
    Window root = DefaultRootWindow(d);
    lastError = 0;
    for (int i = 0; i < 4; i++) {
        XGrabKey(d, keycode, mods | lockVariants[i], root, False, GrabModeAsync, GrabModeAsync);
    }
    XSync(d, False);
    return lastError;
}

static void ungrabChord(Display *d, int keycode, unsigned int mods) {
    Window root = DefaultRootWindow(d);
    for (int i = 0; i < 4; i++) {
        XUngrabKey(d, keycode, mods | lockVariants[i], root);
    }
    XSync(d, False);
}

static int keycodeFor(Display *d, const char *name) {
    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(d, sym);
}

static int nextKeyPress(Display *d, int *keycode, unsigned int *state) {
    while (XPending(d) > 0) {
        XEvent event;
        XNextEvent(d, &event);
        if (event.type == KeyPress) {
            *keycode = event.xkey.keycode;
            *state = event.xkey.state;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/hotkey"
)

// Supported reports whether this build can grab native shortcuts.
const Supported = true

const pollInterval = 10 * time.Millisecond

// X11 maps Alt to Mod1 and Super to Mod4. Caps Lock and Num Lock (Mod2)
// are masked out of incoming events and grabbed in every combination.
var modMasks = map[accel.Modifier]C.uint{
	accel.ModCtrl:  C.ControlMask,
	accel.ModShift: C.ShiftMask,
	accel.ModAlt:   C.Mod1Mask,
	accel.ModSuper: C.Mod4Mask,
}

var relevantMods = C.uint(C.ControlMask | C.ShiftMask | C.Mod1Mask | C.Mod4Mask)

// x11Keysyms maps canonical key names that differ from their X keysym.
var x11Keysyms = map[string]string{
	"Space":        "space",
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

func keysymName(key string) (string, bool) {
	if name, ok := x11Keysyms[key]; ok {
		return name, true
	}
	switch {
	case len(key) == 1 && key[0] >= 'A' && key[0] <= 'Z':
		return strings.ToLower(key), true
	case len(key) == 1 && key[0] >= '0' && key[0] <= '9':
		return key, true
	case len(key) >= 2 && key[0] == 'F':
		return key, true
	}
	return "", false
}

func modMask(a accel.Accelerator) C.uint {
	var mask C.uint
	for _, m := range a.ModifierList() {
		mask |= modMasks[m]
	}
	return mask
}

type chord struct {
	keycode C.int
	mods    C.uint
}

// Grabber owns one X display connection. Every Xlib call happens under mu.
type Grabber struct {
	log zerolog.Logger

	mu      sync.Mutex
	display *C.Display
	grabs   map[chord]*grab

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ hotkey.Grabber = (*Grabber)(nil)

// New connects to the X server named by DISPLAY. Without one it returns an
// UnsupportedPlatform error.
func New(log zerolog.Logger) (*Grabber, error) {
	d := C.openDisplay()
	if d == nil {
		return nil, apperr.New(apperr.UnsupportedPlatform,
			"cannot open X11 display %q; global shortcuts need an X11 or XWayland session", os.Getenv("DISPLAY"))
	}
	g := &Grabber{
		log:     log,
		display: d,
		grabs:   make(map[chord]*grab),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go g.eventLoop()
	return g, nil
}

// Grab asks the X server for a. A chord held by another client is refused.
func (g *Grabber) Grab(a accel.Accelerator) (hotkey.Grab, error) {
	name, ok := keysymName(a.Key())
	if !ok {
		return nil, apperr.New(apperr.InvalidAccelerator, "key %s cannot be registered as a global shortcut", a.Key())
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.display == nil {
		return nil, apperr.New(apperr.Internal, "X11 grabber is closed")
	}

	keycode := C.keycodeFor(g.display, cname)
	if keycode == 0 {
		return nil, apperr.New(apperr.InvalidAccelerator, "key %s is not on the current keyboard layout", a.Key())
	}
	c := chord{keycode: keycode, mods: modMask(a)}
	if _, taken := g.grabs[c]; taken {
		return nil, fmt.Errorf("%s is already grabbed", a)
	}
	if code := C.grabChord(g.display, c.keycode, c.mods); code != 0 {
		C.ungrabChord(g.display, c.keycode, c.mods)
		return nil, fmt.Errorf("X server refused grab of %s (error code %d)", a, int(code))
	}

	gr := &grab{owner: g, chord: c, keydown: make(chan struct{}, 1)}
	g.grabs[c] = gr
	g.log.Debug().Str("accelerator", a.String()).Int("keycode", int(keycode)).Msg("Grabbed X11 key")
	return gr, nil
}

func (g *Grabber) eventLoop() {
	defer close(g.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.drain()
		}
	}
}

func (g *Grabber) drain() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.display == nil {
		return
	}

	var keycode C.int
	var state C.uint
	for C.nextKeyPress(g.display, &keycode, &state) != 0 {
		gr, ok := g.grabs[chord{keycode: keycode, mods: state & relevantMods}]
		if !ok {
			continue
		}
		select {
		case gr.keydown <- struct{}{}:
		default:
		}
	}
}

// Close ungrabs everything and drops the display connection.
func (g *Grabber) Close() error {
	g.closeOnce.Do(func() {
		close(g.stop)
		<-g.done

		g.mu.Lock()
		defer g.mu.Unlock()
		for c := range g.grabs {
			C.ungrabChord(g.display, c.keycode, c.mods)
		}
		g.grabs = nil
		C.XCloseDisplay(g.display)
		g.display = nil
	})
	return nil
}

type grab struct {
	owner   *Grabber
	chord   chord
	keydown chan struct{}
	once    sync.Once
}

func (gr *grab) Keydown() <-chan struct{} { return gr.keydown }

func (gr *grab) Release() error {
	gr.once.Do(func() {
		g := gr.owner
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.grabs[gr.chord] == gr {
			delete(g.grabs, gr.chord)
		}
		if g.display != nil {
			C.ungrabChord(g.display, gr.chord.keycode, gr.chord.mods)
		}
	})
	return nil
}
