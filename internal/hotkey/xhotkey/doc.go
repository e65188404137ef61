// Package xhotkey grabs global shortcuts from the OS. Linux talks to the X
// server directly and fails cleanly without a display; macOS and Windows go
// through golang.design/x/hotkey.
package xhotkey
