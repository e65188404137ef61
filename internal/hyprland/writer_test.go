package hyprland

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/accel"
	"github.com/petems/overlay-hotkeys/internal/apperr"
	"github.com/petems/overlay-hotkeys/internal/bindings"
)

const userConfig = `# user config
monitor = ,preferred,auto,1
bind = SUPER, Q, exec, kitty
`

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "hypr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	w := NewWriter(Options{
		ConfigDir:  dir,
		Executable: "/usr/bin/overlay-hotkeys",
		Logger:     zerolog.Nop(),
	})
	return w, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestApplyWritesBindFileAndSourceLine(t *testing.T) {
	w, dir := newTestWriter(t)
	mainPath := filepath.Join(dir, "hyprland.conf")
	if err := os.WriteFile(mainPath, []byte(userConfig), 0o640); err != nil {
		t.Fatal(err)
	}

	res, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space"))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	wantBind := "bind = CTRL SHIFT, SPACE, exec, /usr/bin/overlay-hotkeys trigger toggle_overlay_visibility"
	if res.BindLine != wantBind {
		t.Fatalf("BindLine = %q, want %q", res.BindLine, wantBind)
	}
	if res.BindFilePath != filepath.Join(dir, "overlay-hotkeys.conf") {
		t.Fatalf("BindFilePath = %q", res.BindFilePath)
	}
	if res.MainConfigPath != mainPath {
		t.Fatalf("MainConfigPath = %q", res.MainConfigPath)
	}
	if res.SourceLine != "source = "+res.BindFilePath {
		t.Fatalf("SourceLine = %q", res.SourceLine)
	}

	bindContent := readFile(t, res.BindFilePath)
	if !strings.Contains(bindContent, "# >>> overlay-hotkeys action=toggle_overlay_visibility >>>\n"+wantBind+"\n# <<< overlay-hotkeys action=toggle_overlay_visibility <<<\n") {
		t.Fatalf("bind file missing block:\n%s", bindContent)
	}

	mainContent := readFile(t, mainPath)
	if !strings.HasPrefix(mainContent, userConfig) {
		t.Fatalf("user content was modified:\n%s", mainContent)
	}
	if strings.Count(mainContent, res.SourceLine) != 1 {
		t.Fatalf("expected one source line:\n%s", mainContent)
	}
	if info, _ := os.Stat(mainPath); info.Mode().Perm() != 0o640 {
		t.Fatalf("main config mode = %o, want 640", info.Mode().Perm())
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	w, dir := newTestWriter(t)
	mainPath := filepath.Join(dir, "hyprland.conf")
	if err := os.WriteFile(mainPath, []byte(userConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	acc := accel.MustParse("Ctrl+Alt+O")

	first, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, acc)
	if err != nil {
		t.Fatal(err)
	}
	bindAfterFirst := readFile(t, first.BindFilePath)
	mainAfterFirst := readFile(t, first.MainConfigPath)

	second, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, acc)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if got := readFile(t, second.BindFilePath); got != bindAfterFirst {
		t.Fatalf("bind file changed on second apply:\n%s\n---\n%s", bindAfterFirst, got)
	}
	if got := readFile(t, second.MainConfigPath); got != mainAfterFirst {
		t.Fatalf("main config changed on second apply:\n%s\n---\n%s", mainAfterFirst, got)
	}
}

func TestApplyNewAcceleratorReplacesLine(t *testing.T) {
	w, _ := newTestWriter(t)
	ctx := context.Background()

	if _, err := w.Apply(ctx, bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space")); err != nil {
		t.Fatal(err)
	}
	res, err := w.Apply(ctx, bindings.ToggleOverlayVisibility, accel.MustParse("Super+O"))
	if err != nil {
		t.Fatal(err)
	}

	content := readFile(t, res.BindFilePath)
	if n := strings.Count(content, "bind ="); n != 1 {
		t.Fatalf("expected exactly one bind line, got %d:\n%s", n, content)
	}
	if n := strings.Count(content, beginMarker(bindings.ToggleOverlayVisibility)); n != 1 {
		t.Fatalf("expected exactly one begin marker, got %d", n)
	}
	if !strings.Contains(content, "bind = SUPER, O, exec,") {
		t.Fatalf("new chord missing:\n%s", content)
	}
}

func TestApplyRepairsDuplicatedAndUnterminatedBlocks(t *testing.T) {
	w, dir := newTestWriter(t)
	bindPath := filepath.Join(dir, "overlay-hotkeys.conf")
	a := bindings.ToggleOverlayVisibility
	messy := strings.Join([]string{
		"# my note",
		beginMarker(a),
		"bind = CTRL, A, exec, old",
		"bind = CTRL, B, exec, older",
		"",
		"bind = SUPER, T, exec, terminal",
		"",
		beginMarker(a),
		"bind = CTRL, C, exec, stale",
		endMarker(a),
		"",
	}, "\n")
	if err := os.WriteFile(bindPath, []byte(messy), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := w.Apply(context.Background(), a, accel.MustParse("Ctrl+Shift+Space"))
	if err != nil {
		t.Fatal(err)
	}
	content := readFile(t, bindPath)
	if strings.Count(content, beginMarker(a)) != 1 || strings.Count(content, endMarker(a)) != 1 {
		t.Fatalf("expected one well-formed block:\n%s", content)
	}
	if strings.Count(content, res.BindLine) != 1 {
		t.Fatalf("expected the new bind line once:\n%s", content)
	}
	for _, gone := range []string{"exec, old", "exec, older", "exec, stale"} {
		if strings.Contains(content, gone) {
			t.Fatalf("stale line %q survived:\n%s", gone, content)
		}
	}
	for _, kept := range []string{"# my note", "bind = SUPER, T, exec, terminal"} {
		if !strings.Contains(content, kept) {
			t.Fatalf("unmanaged line %q was dropped:\n%s", kept, content)
		}
	}
}

func TestApplyCreatesMissingMainConfig(t *testing.T) {
	w, dir := newTestWriter(t)

	res, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, accel.MustParse("F9"))
	if err != nil {
		t.Fatal(err)
	}
	want := sourceMarker + "\n" + res.SourceLine + "\n"
	if got := readFile(t, filepath.Join(dir, "hyprland.conf")); got != want {
		t.Fatalf("main config = %q, want %q", got, want)
	}
}

func TestApplyKeepsExistingUserSource(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "tilde path", line: "source = ~/.config/hypr/overlay-hotkeys.conf"},
		{name: "relative path", line: "source=overlay-hotkeys.conf"},
		{name: "glob", line: "source = ~/.config/hypr/*.conf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			dir := filepath.Join(home, ".config", "hypr")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatal(err)
			}
			mainPath := filepath.Join(dir, "hyprland.conf")
			original := userConfig + tt.line + "\n"
			if err := os.WriteFile(mainPath, []byte(original), 0o644); err != nil {
				t.Fatal(err)
			}

			w := NewWriter(Options{ConfigDir: dir, Executable: "overlay-hotkeys", Logger: zerolog.Nop()})
			if _, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space")); err != nil {
				t.Fatal(err)
			}
			if got := readFile(t, mainPath); got != original {
				t.Fatalf("main config modified although already sourced:\n%s", got)
			}
		})
	}
}

func TestApplyWritesThroughSymlinkedMainConfig(t *testing.T) {
	w, dir := newTestWriter(t)
	dotfiles := filepath.Join(t.TempDir(), "dotfiles")
	if err := os.MkdirAll(dotfiles, 0o755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dotfiles, "hyprland.conf")
	if err := os.WriteFile(target, []byte(userConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "hyprland.conf")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	res, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space"))
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Lstat(link)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("symlink was replaced: %v", err)
	}
	if !strings.Contains(readFile(t, target), res.SourceLine) {
		t.Fatal("source line not written to the link target")
	}
}

func TestApplyUnwritableConfigDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	w, dir := newTestWriter(t)
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })

	_, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space"))
	if !errors.Is(err, apperr.ErrCompositorConfigUnwritable) {
		t.Fatalf("Apply error = %v, want CompositorConfigUnwritable", err)
	}
	if got := apperr.PathOf(err); got != filepath.Join(dir, "overlay-hotkeys.conf") {
		t.Fatalf("error path = %q", got)
	}
}

func TestApplyRejectsUntranslatableAccelerator(t *testing.T) {
	w, dir := newTestWriter(t)

	_, err := w.Apply(context.Background(), bindings.ToggleOverlayVisibility, accel.MustParse("A"))
	if !errors.Is(err, apperr.ErrInvalidAccelerator) {
		t.Fatalf("Apply error = %v, want InvalidAccelerator", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no files written, found %d", len(entries))
	}
}

func TestRemoveRestoresMainConfig(t *testing.T) {
	w, dir := newTestWriter(t)
	mainPath := filepath.Join(dir, "hyprland.conf")
	if err := os.WriteFile(mainPath, []byte(userConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := w.Apply(ctx, bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space"))
	if err != nil {
		t.Fatal(err)
	}
	removed, err := w.Remove(ctx, bindings.ToggleOverlayVisibility)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed.RemovedBind || !removed.RemovedSource {
		t.Fatalf("Remove result = %+v", removed)
	}
	if got := readFile(t, mainPath); got != userConfig {
		t.Fatalf("main config not restored:\n%q\nwant\n%q", got, userConfig)
	}
	if _, err := os.Stat(res.BindFilePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("bind file still present: %v", err)
	}

	again, err := w.Remove(ctx, bindings.ToggleOverlayVisibility)
	if err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if again.RemovedBind || again.RemovedSource {
		t.Fatalf("second Remove changed something: %+v", again)
	}
}

func TestApplyRemovePreservesMainConfigBytes(t *testing.T) {
	tests := []struct {
		name    string
		content string
		eol     string
	}{
		{name: "crlf", content: "monitor=,preferred,auto,1\r\nbind = SUPER, Q, exec, kitty\r\n", eol: "\r\n"},
		{name: "no final newline", content: "monitor=,preferred,auto,1", eol: "\n"},
		{name: "trailing blank lines", content: "monitor=,preferred,auto,1\n\n\n", eol: "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, dir := newTestWriter(t)
			mainPath := filepath.Join(dir, "hyprland.conf")
			if err := os.WriteFile(mainPath, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			ctx := context.Background()

			res, err := w.Apply(ctx, bindings.ToggleOverlayVisibility, accel.MustParse("Ctrl+Shift+Space"))
			if err != nil {
				t.Fatal(err)
			}
			applied := readFile(t, mainPath)
			if !strings.HasPrefix(applied, tt.content) {
				t.Fatalf("Apply rewrote user content:\n%q", applied)
			}
			if !strings.HasSuffix(applied, sourceMarker+tt.eol+res.SourceLine+tt.eol) {
				t.Fatalf("source block does not reuse line ending %q:\n%q", tt.eol, applied)
			}

			if _, err := w.Remove(ctx, bindings.ToggleOverlayVisibility); err != nil {
				t.Fatal(err)
			}
			if got := readFile(t, mainPath); got != tt.content {
				t.Fatalf("main config after Remove = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestRemoveSourceKeepsLaterUserLines(t *testing.T) {
	src := "source = /tmp/hypr/overlay-hotkeys.conf"
	content := appendSource("monitor=,preferred,auto,1", src) + "bind = SUPER, Q, exec, kitty\n"

	got, removed := removeSource(content, src)
	if !removed {
		t.Fatal("source block not found")
	}
	want := "monitor=,preferred,auto,1\nbind = SUPER, Q, exec, kitty\n"
	if got != want {
		t.Fatalf("removeSource = %q, want %q", got, want)
	}
}

func TestBindLineCustomDispatch(t *testing.T) {
	w := NewWriter(Options{
		ConfigDir:       t.TempDir(),
		Executable:      "/opt/Overlay Core/overlay-hotkeys",
		DispatchCommand: "{exe} --action={action}",
		Logger:          zerolog.Nop(),
	})
	got, err := w.BindLine(bindings.ToggleOverlayVisibility, accel.MustParse("Super+Shift+O"))
	if err != nil {
		t.Fatal(err)
	}
	want := "bind = SHIFT SUPER, O, exec, '/opt/Overlay Core/overlay-hotkeys' --action=toggle_overlay_visibility"
	if got != want {
		t.Fatalf("BindLine = %q, want %q", got, want)
	}
}
