//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework ApplicationServices -framework Cocoa
#import <ApplicationServices/ApplicationServices.h>
#import <Cocoa/Cocoa.h>

int checkAccessibilityPermission(int prompt) {
    NSDictionary *options = @{(__bridge id)kAXTrustedCheckOptionPrompt: prompt ? @YES : @NO};
    return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)options) ? 1 : 0;
}
*/
import "C"

import "errors"

// ErrAccessibility means macOS has not granted the accessibility permission
// that global hotkeys need.
var ErrAccessibility = errors.New("accessibility permission not granted; enable it in System Settings → Privacy & Security → Accessibility")

// CheckAccessibility reports whether the app may register global hotkeys.
func CheckAccessibility() bool {
	return C.checkAccessibilityPermission(0) == 1
}

// EnsurePermissions checks the accessibility permission and, when missing,
// shows the system prompt and returns ErrAccessibility.
func EnsurePermissions() error {
	if CheckAccessibility() {
		return nil
	}
	C.checkAccessibilityPermission(1)
	return ErrAccessibility
}
