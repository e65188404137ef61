package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/hyprland"
	"github.com/petems/overlay-hotkeys/internal/platform"
)

var (
	x11Session = platform.Info{
		IsLinux:                       true,
		SupportsNativeGlobalShortcuts: true,
	}
	gnomeWayland = platform.Info{
		IsLinux:   true,
		IsWayland: true,
	}
	hyprSession = platform.Info{
		IsLinux:                       true,
		IsWayland:                     true,
		IsHyprland:                    true,
		SupportsNativeGlobalShortcuts: true,
		CanAutoConfigureHyprland:      true,
	}
)

type fakeDetector struct{ info platform.Info }

func (f *fakeDetector) Detect() platform.Info { return f.info }

// mockHotkeys records registrations and fails chords listed in conflicts.
type mockHotkeys struct {
	active    map[bindings.Action]accel.Accelerator
	conflicts map[string]bool
	calls     int
}

func newMockHotkeys() *mockHotkeys {
	return &mockHotkeys{active: map[bindings.Action]accel.Accelerator{}, conflicts: map[string]bool{}}
}

func (m *mockHotkeys) Register(action bindings.Action, a accel.Accelerator) error {
	m.calls++
	delete(m.active, action)
	if m.conflicts[a.String()] {
		return apperr.New(apperr.ShortcutConflict, "%s is grabbed by another client", a)
	}
	m.active[action] = a
	return nil
}

func (m *mockHotkeys) Unregister(action bindings.Action) error {
	delete(m.active, action)
	return nil
}

func (m *mockHotkeys) Close() error { return nil }

type fixture struct {
	svc      *Service
	store    *bindings.Store
	detector *fakeDetector
	hotkeys  *mockHotkeys
	hyprDir  string
}

func newFixture(t *testing.T, info platform.Info, withHotkeys bool) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		store:    bindings.NewStore(filepath.Join(root, "app", "bindings.yaml"), zerolog.Nop()),
		detector: &fakeDetector{info: info},
		hyprDir:  filepath.Join(root, "hypr"),
	}
	writer := hyprland.NewWriter(hyprland.Options{
		ConfigDir:  f.hyprDir,
		Executable: "/usr/bin/overlay-hotkeys",
		Logger:     zerolog.Nop(),
	})
	cfg := Config{
		Store:    f.store,
		Platform: f.detector,
		Writer:   writer,
		Logger:   zerolog.Nop(),
	}
	if withHotkeys {
		f.hotkeys = newMockHotkeys()
		cfg.Hotkeys = f.hotkeys
	}
	f.svc = New(cfg)
	return f
}

func (f *fixture) accelFor(t *testing.T, a bindings.Action) string {
	t.Helper()
	list, err := f.svc.Bindings()
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	for _, b := range list {
		if b.Action == a {
			return b.Accelerator.String()
		}
	}
	t.Fatalf("no binding for %s", a)
	return ""
}

const toggle = bindings.ToggleOverlayVisibility

func TestFreshInstallReturnsDefault(t *testing.T) {
	f := newFixture(t, x11Session, false)

	list, err := f.svc.Bindings()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Action != toggle || list[0].Accelerator.String() != "Ctrl+Shift+Space" {
		t.Fatalf("Bindings = %+v", list)
	}
}

func TestUpdateBindingRegistersNatively(t *testing.T) {
	f := newFixture(t, x11Session, true)

	if err := f.svc.UpdateBinding(toggle, "ctrl+alt+o"); err != nil {
		t.Fatalf("UpdateBinding: %v", err)
	}
	if got := f.accelFor(t, toggle); got != "Ctrl+Alt+O" {
		t.Fatalf("persisted %q", got)
	}
	if got := f.hotkeys.active[toggle]; got.String() != "Ctrl+Alt+O" {
		t.Fatalf("registered %q", got)
	}
	st := f.svc.Status()[0]
	if st.State != StateNativeRegistered || st.Degraded() {
		t.Fatalf("status = %+v", st)
	}
}

func TestUpdateBindingUnsupportedStillPersists(t *testing.T) {
	f := newFixture(t, gnomeWayland, true)

	err := f.svc.UpdateBinding(toggle, "ctrl+alt+o")
	if !errors.Is(err, apperr.ErrUnsupportedPlatform) {
		t.Fatalf("UpdateBinding error = %v, want UnsupportedPlatform", err)
	}
	if got := f.accelFor(t, toggle); got != "Ctrl+Alt+O" {
		t.Fatalf("binding not persisted: %q", got)
	}
	if f.hotkeys.calls != 0 {
		t.Fatal("native registration attempted on unsupported session")
	}
}

func TestUpdateBindingInvalidAccelerator(t *testing.T) {
	f := newFixture(t, x11Session, true)

	for _, raw := range []string{"", "Ctrl+Ctrl+A", "Ctrl+Shift", "Ctrl+Banana"} {
		err := f.svc.UpdateBinding(toggle, raw)
		if !errors.Is(err, apperr.ErrInvalidAccelerator) {
			t.Fatalf("UpdateBinding(%q) error = %v, want InvalidAccelerator", raw, err)
		}
	}
	if _, err := os.Stat(f.store.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("invalid input reached the store")
	}
}

func TestUpdateBindingUnknownAction(t *testing.T) {
	f := newFixture(t, x11Session, true)

	err := f.svc.UpdateBinding("open_settings", "Ctrl+K")
	if !errors.Is(err, apperr.ErrUnknownAction) {
		t.Fatalf("UpdateBinding error = %v, want UnknownAction", err)
	}
}

func TestUpdateBindingConflictKeepsBindingPersisted(t *testing.T) {
	f := newFixture(t, x11Session, true)
	f.hotkeys.conflicts["Super+L"] = true

	err := f.svc.UpdateBinding(toggle, "Super+L")
	if !errors.Is(err, apperr.ErrShortcutConflict) {
		t.Fatalf("UpdateBinding error = %v, want ShortcutConflict", err)
	}
	if got := f.accelFor(t, toggle); got != "Super+L" {
		t.Fatalf("binding not persisted: %q", got)
	}
	st := f.svc.Status()[0]
	if st.State != StateNativeFailed || !st.Degraded() || st.NativeError == "" {
		t.Fatalf("status = %+v, want native_failed with error", st)
	}
}

func TestUpdateBindingWithoutManagerOnlyPersists(t *testing.T) {
	f := newFixture(t, x11Session, false)

	if err := f.svc.UpdateBinding(toggle, "Super+Shift+O"); err != nil {
		t.Fatal(err)
	}
	if st := f.svc.Status()[0]; st.State != StatePersisted || st.Accelerator != "Shift+Super+O" {
		t.Fatalf("status = %+v", st)
	}
}

func TestApplyHyprlandUnavailableTouchesNothing(t *testing.T) {
	for name, info := range map[string]platform.Info{"x11": x11Session, "gnome wayland": gnomeWayland} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, info, false)
			if err := f.store.Save(bindings.Binding{Action: toggle, Accelerator: accel.MustParse("Ctrl+Alt+O")}); err != nil {
				t.Fatal(err)
			}

			_, err := f.svc.ApplyHyprlandBinding(context.Background(), toggle)
			if !errors.Is(err, apperr.ErrUnsupportedPlatform) {
				t.Fatalf("Apply error = %v, want UnsupportedPlatform", err)
			}
			if !strings.Contains(err.Error(), "Hyprland") {
				t.Fatalf("error does not explain itself: %v", err)
			}
			if _, err := os.Stat(f.hyprDir); !errors.Is(err, os.ErrNotExist) {
				t.Fatal("Hyprland config dir was created")
			}
		})
	}
}

func TestApplyHyprlandRequiresSavedBinding(t *testing.T) {
	f := newFixture(t, hyprSession, false)

	_, err := f.svc.ApplyHyprlandBinding(context.Background(), toggle)
	if !errors.Is(err, apperr.ErrActionNotBound) {
		t.Fatalf("Apply error = %v, want ActionNotBound", err)
	}
}

func TestApplyHyprlandCorruptStoreIsNotBound(t *testing.T) {
	f := newFixture(t, hyprSession, false)
	if err := os.MkdirAll(filepath.Dir(f.store.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.store.Path(), []byte("[not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.ApplyHyprlandBinding(context.Background(), toggle)
	if !errors.Is(err, apperr.ErrActionNotBound) {
		t.Fatalf("Apply error = %v, want ActionNotBound", err)
	}
	if !errors.Is(err, apperr.ErrCorruptBindingStore) {
		t.Fatalf("cause not kept: %v", err)
	}
}

func TestApplyAndRemoveHyprland(t *testing.T) {
	f := newFixture(t, hyprSession, true)
	ctx := context.Background()

	if err := f.svc.UpdateBinding(toggle, "Ctrl+Shift+Space"); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.ApplyHyprlandBinding(ctx, toggle)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.BindLine != "bind = CTRL SHIFT, SPACE, exec, /usr/bin/overlay-hotkeys trigger toggle_overlay_visibility" {
		t.Fatalf("BindLine = %q", res.BindLine)
	}
	if st := f.svc.Status()[0]; !st.HyprlandApplied {
		t.Fatalf("status = %+v, want hyprlandApplied", st)
	}

	preview, err := f.svc.HyprlandBindLine(toggle)
	if err != nil || preview != res.BindLine {
		t.Fatalf("HyprlandBindLine = %q, %v", preview, err)
	}

	if err := f.svc.UpdateBinding(toggle, "Super+O"); err != nil {
		t.Fatal(err)
	}
	if st := f.svc.Status()[0]; st.HyprlandApplied {
		t.Fatal("hyprlandApplied still set after the chord changed")
	}

	if _, err := f.svc.RemoveHyprlandBinding(ctx, toggle); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(res.BindFilePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("bind file left behind")
	}
}

func TestStartMaterializesDefaultsAndRegisters(t *testing.T) {
	f := newFixture(t, x11Session, true)

	f.svc.Start()

	acc, ok, err := f.store.Persisted(toggle)
	if err != nil || !ok || acc.String() != "Ctrl+Shift+Space" {
		t.Fatalf("Persisted = %v, %v, %v", acc, ok, err)
	}
	if got := f.hotkeys.active[toggle]; got.String() != "Ctrl+Shift+Space" {
		t.Fatalf("registered %q", got)
	}
}

func TestStartCorruptStoreFallsBackToDefaults(t *testing.T) {
	f := newFixture(t, x11Session, true)
	if err := os.MkdirAll(filepath.Dir(f.store.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.store.Path(), []byte("version: 99\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	f.svc.Start()

	if got := f.hotkeys.active[toggle]; got.String() != "Ctrl+Shift+Space" {
		t.Fatalf("registered %q, want default", got)
	}
	if _, err := f.svc.Bindings(); !errors.Is(err, apperr.ErrCorruptBindingStore) {
		t.Fatalf("Bindings error = %v, want CorruptBindingStore", err)
	}
}

func TestStartRecordsRegistrationFailure(t *testing.T) {
	f := newFixture(t, x11Session, true)
	f.hotkeys.conflicts["Ctrl+Shift+Space"] = true

	f.svc.Start()

	st := f.svc.Status()[0]
	if st.State != StateNativeFailed {
		t.Fatalf("status = %+v, want native_failed", st)
	}
}

func TestReloadRegistersChangedChordOnly(t *testing.T) {
	f := newFixture(t, x11Session, true)
	f.svc.Start()
	calls := f.hotkeys.calls

	if err := f.svc.Reload(); err != nil {
		t.Fatal(err)
	}
	if f.hotkeys.calls != calls {
		t.Fatal("unchanged binding was re-registered")
	}

	if err := f.store.Save(bindings.Binding{Action: toggle, Accelerator: accel.MustParse("Alt+F1")}); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := f.hotkeys.active[toggle]; got.String() != "Alt+F1" {
		t.Fatalf("registered %q after reload", got)
	}
}

func TestPlatformInfoPassesThrough(t *testing.T) {
	f := newFixture(t, hyprSession, false)
	if got := f.svc.PlatformInfo(); got != hyprSession {
		t.Fatalf("PlatformInfo = %+v", got)
	}
	f.detector.info = gnomeWayland
	if got := f.svc.PlatformInfo(); got != gnomeWayland {
		t.Fatal("PlatformInfo was cached")
	}
}

func TestConcurrentUpdateAndApplyShareOneBlock(t *testing.T) {
	f := newFixture(t, hyprSession, true)
	ctx := context.Background()
	if err := f.svc.UpdateBinding(toggle, "Ctrl+Shift+Space"); err != nil {
		t.Fatal(err)
	}

	chords := []string{"Ctrl+Shift+Space", "Super+O", "Alt+F2", "Ctrl+Alt+K"}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := f.svc.UpdateBinding(toggle, chords[i%len(chords)]); err != nil {
				t.Errorf("UpdateBinding: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ApplyHyprlandBinding(ctx, toggle); err != nil {
				t.Errorf("ApplyHyprlandBinding: %v", err)
			}
		}()
	}
	wg.Wait()

	countPrefix := func(path, prefix string) int {
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for _, line := range strings.Split(string(raw), "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), prefix) {
				n++
			}
		}
		return n
	}
	if n := countPrefix(filepath.Join(f.hyprDir, hyprland.DefaultBindFile), "bind ="); n != 1 {
		t.Fatalf("bind file has %d bind lines, want 1", n)
	}
	if n := countPrefix(filepath.Join(f.hyprDir, hyprland.DefaultMainConfig), "source ="); n != 1 {
		t.Fatalf("main config has %d source lines, want 1", n)
	}
}

func TestEnsureDefaultsLetsApplyRunWithoutStart(t *testing.T) {
	f := newFixture(t, hyprSession, false)

	if err := f.svc.EnsureDefaults(); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.ApplyHyprlandBinding(context.Background(), toggle)
	if err != nil {
		t.Fatalf("Apply after EnsureDefaults: %v", err)
	}
	if !strings.Contains(res.BindLine, "CTRL SHIFT, SPACE") {
		t.Fatalf("BindLine = %q", res.BindLine)
	}
}
