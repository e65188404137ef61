package hyprland

import (
	"path/filepath"
	"strings"

	"github.com/petems/overlay-hotkeys/internal/bindings"
)

const (
	markerTag    = "overlay-hotkeys"
	sourceMarker = "# " + markerTag + ": include managed hotkey binds"
)

var bindFileHeader = []string{
	"# Managed by " + markerTag + ".",
	"# Blocks between " + markerTag + " markers are rewritten whenever a binding is applied.",
}

func beginMarker(a bindings.Action) string {
	return "# >>> " + markerTag + " action=" + string(a) + " >>>"
}

func endMarker(a bindings.Action) string {
	return "# <<< " + markerTag + " action=" + string(a) + " <<<"
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func isBindLine(line string) bool {
	key, _, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(key), "bind")
}

// findBlock locates the block for a starting at or after from. It returns
// the half-open line range [start, end). A begin marker without an end
// marker covers the bind lines that follow it.
func findBlock(lines []string, a bindings.Action, from int) (start, end int, ok bool) {
	begin, finish := beginMarker(a), endMarker(a)
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != begin {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			switch strings.TrimSpace(lines[j]) {
			case finish:
				return i, j + 1, true
			case begin:
				return i, endOfBindRun(lines, i+1), true
			}
		}
		return i, endOfBindRun(lines, i+1), true
	}
	return 0, 0, false
}

func endOfBindRun(lines []string, k int) int {
	for k < len(lines) && isBindLine(lines[k]) {
		k++
	}
	return k
}

// upsertBlock replaces a's block with a single bind line, or appends a new
// block. Duplicate blocks for a are dropped.
func upsertBlock(content string, a bindings.Action, bindLine string) string {
	lines := splitLines(content)
	block := []string{beginMarker(a), bindLine, endMarker(a)}

	start, end, ok := findBlock(lines, a, 0)
	if !ok {
		if len(lines) == 0 {
			lines = append(lines, bindFileHeader...)
		}
		if lines[len(lines)-1] != "" {
			lines = append(lines, "")
		}
		return joinLines(append(lines, block...))
	}

	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:start]...)
	out = append(out, block...)
	rest := lines[end:]
	for {
		s, e, dup := findBlock(rest, a, 0)
		if !dup {
			break
		}
		rest = append(trimTrailingBlank(rest[:s:s]), rest[e:]...)
	}
	out = append(out, rest...)
	return joinLines(out)
}

// removeBlock drops every block for a together with the blank separator
// line in front of it.
func removeBlock(content string, a bindings.Action) (string, bool) {
	lines := splitLines(content)
	removed := false
	for {
		s, e, ok := findBlock(lines, a, 0)
		if !ok {
			break
		}
		removed = true
		lines = append(trimTrailingBlank(lines[:s:s]), lines[e:]...)
	}
	if !removed {
		return content, false
	}
	return joinLines(lines), true
}

// hasAnyBlock reports whether content still holds a managed block.
func hasAnyBlock(content string) bool {
	for _, l := range splitLines(content) {
		if strings.HasPrefix(strings.TrimSpace(l), "# >>> "+markerTag+" action=") {
			return true
		}
	}
	return false
}

func trimTrailingBlank(lines []string) []string {
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "" {
		return lines[:n-1]
	}
	return lines
}

// sourcesFile reports whether content already includes bindPath through a
// source line, either literally or through a glob.
func sourcesFile(content, bindPath, configDir, home string) bool {
	want := filepath.Clean(bindPath)
	for _, line := range splitLines(content) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok || strings.TrimSpace(key) != "source" {
			continue
		}
		value = strings.TrimSpace(value)
		if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
		path := expandPath(value, configDir, home)
		if path == want {
			return true
		}
		if matched, err := filepath.Match(path, want); err == nil && matched {
			return true
		}
	}
	return false
}

func expandPath(p, configDir, home string) string {
	switch {
	case p == "~":
		p = home
	case strings.HasPrefix(p, "~/"):
		p = filepath.Join(home, p[2:])
	case strings.HasPrefix(p, "$HOME/"):
		p = filepath.Join(home, p[len("$HOME/"):])
	case !filepath.IsAbs(p):
		p = filepath.Join(configDir, p)
	}
	return filepath.Clean(p)
}

// lineEnding returns the line ending content already uses.
func lineEnding(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// appendSource adds the marker comment and sourceLine after content,
// leaving the existing bytes untouched. A file that ends in a newline gets
// a blank separator line; one that does not only gets its last line
// terminated, so removeSource can restore either exactly.
func appendSource(content, sourceLine string) string {
	eol := lineEnding(content)
	var b strings.Builder
	b.WriteString(content)
	if content != "" {
		b.WriteString(eol)
	}
	b.WriteString(sourceMarker + eol + sourceLine + eol)
	return b.String()
}

// removeSource undoes appendSource. Only a source line directly under the
// marker comment is removed; user-written source lines are left alone.
func removeSource(content, sourceLine string) (string, bool) {
	for off := 0; off < len(content); {
		line, next := lineAt(content, off)
		if strings.TrimSpace(line) != sourceMarker || next >= len(content) {
			off = next
			continue
		}
		src, end := lineAt(content, next)
		if strings.TrimSpace(src) != sourceLine {
			off = next
			continue
		}

		start := off
		if end == len(content) {
			// The block is the tail of the file: drop the separator too.
			switch head := content[:start]; {
			case strings.HasSuffix(head, "\r\n"):
				start -= 2
			case strings.HasSuffix(head, "\n"):
				start--
			}
		}
		return content[:start] + content[end:], true
	}
	return content, false
}

// lineAt returns the line starting at off without its ending, and the
// offset just past that ending.
func lineAt(content string, off int) (string, int) {
	i := strings.IndexByte(content[off:], '\n')
	if i < 0 {
		return content[off:], len(content)
	}
	return strings.TrimSuffix(content[off:off+i], "\r"), off + i + 1
}
