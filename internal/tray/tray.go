package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/overlay-hotkeys/internal/app"
	"github.com/petems/overlay-hotkeys/internal/bindings"
	"github.com/petems/overlay-hotkeys/internal/platform"
	"github.com/petems/overlay-hotkeys/internal/service"
)

const hyprlandTimeout = 5 * time.Second

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger
	onQuit  func()

	// copyText is clipboard.WriteAll; tests swap it.
	copyText func(string) error

	mu    sync.Mutex
	ready bool

	// Menu items
	mToggle   *systray.MenuItem
	mPlatform *systray.MenuItem
	mBinding  *systray.MenuItem
	mApply    *systray.MenuItem
	mCopy     *systray.MenuItem
	mRemove   *systray.MenuItem
	mReload   *systray.MenuItem
}

var _ app.StatusUpdater = (*UI)(nil)

// Status update methods for the app to call
func (u *UI) SetVisible() {
	u.updateStatus("visible", "")
}

func (u *UI) SetHidden() {
	u.updateStatus("hidden", "")
}

func (u *UI) SetDegraded(reason string) {
	u.updateStatus("degraded", reason)
}

// New builds the tray. onQuit runs when the user picks Quit or ctx passed
// to Run is cancelled.
func New(application *app.App, version, commit string, log zerolog.Logger, onQuit func()) *UI {
	return &UI{
		app:      application,
		version:  version,
		commit:   commit,
		log:      log,
		onQuit:   onQuit,
		copyText: clipboard.WriteAll,
	}
}

// Run blocks in the systray event loop. It MUST be called from the main
// goroutine.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTitle(titleFor("visible"))
	systray.SetTooltip("Overlay hotkeys")

	u.mToggle = systray.AddMenuItem("Toggle Overlay", "Show or hide the overlay")
	systray.AddSeparator()

	u.mBinding = systray.AddMenuItem("Binding: …", "Current hotkey binding")
	u.mBinding.Disable()
	u.mPlatform = systray.AddMenuItem("Platform: …", "Detected session")
	u.mPlatform.Disable()
	systray.AddSeparator()

	u.mApply = systray.AddMenuItem("Apply to Hyprland", "Write the binding into the Hyprland config")
	u.mCopy = systray.AddMenuItem("Copy Hyprland Bind Line", "Copy the bind line to the clipboard")
	u.mRemove = systray.AddMenuItem("Remove from Hyprland", "Remove the managed bind file and source line")
	u.mReload = systray.AddMenuItem("Reload Bindings", "Re-read the binding store")

	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About overlay-hotkeys")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.ready = true
	u.mu.Unlock()

	u.refreshMenu()
	u.app.RefreshStatus()

	// Event loop
	go u.handleEvents(mAbout, mQuit)
}

func (u *UI) handleEvents(mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mToggle.ClickedCh:
			u.app.OnHotkey(bindings.ToggleOverlayVisibility)
		case <-u.mApply.ClickedCh:
			u.applyHyprland()
		case <-u.mCopy.ClickedCh:
			u.copyBindLine()
		case <-u.mRemove.ClickedCh:
			u.removeHyprland()
		case <-u.mReload.ClickedCh:
			u.app.Reload()
			u.refreshMenu()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// Refresh re-renders the binding and platform rows.
func (u *UI) Refresh() {
	u.mu.Lock()
	ready := u.ready
	u.mu.Unlock()
	if ready {
		u.refreshMenu()
	}
}

func (u *UI) refreshMenu() {
	info := u.app.PlatformInfo()
	status := u.app.Status()

	u.mBinding.SetTitle(bindingLabel(status))
	u.mPlatform.SetTitle(platformLabel(info))
	if info.CanAutoConfigureHyprland {
		u.mApply.Enable()
	} else {
		u.mApply.Disable()
	}
}

func (u *UI) applyHyprland() {
	ctx, cancel := context.WithTimeout(context.Background(), hyprlandTimeout)
	defer cancel()

	results, err := u.app.ApplyHyprland(ctx)
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to apply Hyprland binding")
		u.SetDegraded(err.Error())
		return
	}
	for _, res := range results {
		u.log.Info().Str("bind_file", res.BindFilePath).Str("bind", res.BindLine).Msg("Applied to Hyprland")
	}
	u.refreshMenu()
}

func (u *UI) removeHyprland() {
	ctx, cancel := context.WithTimeout(context.Background(), hyprlandTimeout)
	defer cancel()

	if err := u.app.RemoveHyprland(ctx); err != nil {
		u.log.Error().Err(err).Msg("Failed to remove Hyprland binding")
		return
	}
	u.refreshMenu()
}

func (u *UI) copyBindLine() {
	lines, err := u.app.HyprlandBindLines()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to render bind line")
		return
	}
	if err := u.copyText(lines); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy to clipboard")
		return
	}
	u.log.Info().Str("bind", lines).Msg("Copied Hyprland bind line")
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("overlay-hotkeys")
}

func (u *UI) onExit() {
	if u.onQuit != nil {
		u.onQuit()
	}
}

// updateStatus sets the tray title with keyboard emoji and status indicator
func (u *UI) updateStatus(status, reason string) {
	u.mu.Lock()
	ready := u.ready
	u.mu.Unlock()
	if !ready {
		return
	}
	systray.SetTitle(titleFor(status))
	if reason != "" {
		systray.SetTooltip("Hotkey degraded: " + reason)
	} else {
		systray.SetTooltip("Overlay hotkeys")
	}
}

func titleFor(status string) string {
	return fmt.Sprintf("⌨️ %s", emojiForStatus(status))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "visible":
		return "🟢" // Green - overlay shown
	case "hidden":
		return "⚪️" // White - overlay hidden
	case "degraded":
		return "🟡" // Yellow - binding saved but not active
	default:
		return "🟢"
	}
}

func bindingLabel(status []service.Status) string {
	if len(status) == 0 {
		return "Binding: none"
	}
	st := status[0]
	label := "Binding: " + st.Accelerator
	switch {
	case st.State == service.StateNativeRegistered:
		label += " (active)"
	case st.Degraded():
		label += " (not active)"
	}
	if st.HyprlandApplied {
		label += " [Hyprland]"
	}
	return label
}

func platformLabel(info platform.Info) string {
	label := "Platform: " + info.Label()
	if !info.SupportsNativeGlobalShortcuts {
		label += ", no native shortcuts"
	}
	return label
}
