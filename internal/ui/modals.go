package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/rivo/tview"
)

func friendlyErrorMessage(errStr string) string {
	if strings.Contains(errStr, "no such host") {
		return "Unable to reach the recording server.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "network is unreachable") {
		return "Network is unreachable.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "status 401") {
		return "Recording access denied (401)."
	}
	if strings.Contains(errStr, "status 403") {
		return "Recording access forbidden (403)."
	}
	if strings.Contains(errStr, "status 404") {
		return "Recording not found on the server (404)."
	}
	if strings.Contains(errStr, "no space left on device") {
		return "Not enough disk space to store the recording."
	}
	if strings.Contains(errStr, "failed to decode") {
		return "The recording could not be decoded.\nThe cached file may be damaged."
	}
	if strings.Contains(errStr, "failed to initialize") {
		return "No audio output is available."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) showError(err error) {
	ui.showPlaybackErrorModal(friendlyErrorMessage(err.Error()))
}

func (ui *UI) showPlaybackErrorModal(message string) {
	hymnID := ui.session.HymnID

	doDismiss := func() {
		ui.pages.RemovePage("error-modal")
		ui.app.SetFocus(ui.hymnList)
	}

	doRetry := func() {
		doDismiss()
		if hymnID > 0 {
			ui.playHymn(hymnID)
		}
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("\n[::b]Playback Error[::-]\n\n%s", tview.Escape(message)))
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(0, 0, 1, 1, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Error ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	modalHeight := 10
	if lines := strings.Count(message, "\n") + 1; lines > 2 {
		modalHeight += lines - 2
	}
	modalHeight = min(modalHeight, 15)

	modal := centered(frame, 50, modalHeight)
	modal.SetBackgroundColor(ui.colors.background)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			doDismiss()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'r' || event.Rune() == 'R' {
				doRetry()
				return nil
			}
		}
		return event
	})

	ui.pages.RemovePage("error-modal")
	ui.pages.AddPage("error-modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]Enter[-] / [%[1]s]p[-]  Play shown hymn
  [%[1]s]Space[-]      Pause / Resume
  [%[1]s]s[-]          Stop

[%[1]s]HYMNS[-]
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate list
  [%[1]s]<[-] / [%[1]s]>[-]      Previous / next hymn
  [%[1]s]r[-]          Random hymn
  [%[1]s]/[-]          Search by name or number
  [%[1]s]PgUp[-]/[%[1]s]PgDn[-]  Scroll verses

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]←[-] / [%[1]s]→[-]      Volume up / down
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]a[-]          About %[2]s
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

[%[1]s]CONFIG[-]: %[3]s`,
		keyColor, config.AppName, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showAboutModal() {
	linkColor := "skyblue"
	dimColor := "gray"

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%s]%s[-]

Version: %s
Project: [%s:::%s]%s[-:::-]
License: MIT

───────────────────────────────────────────

[%s]%d hymns in catalog[-]`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppVersion,
		linkColor, config.AppProjectURL, config.AppProjectURL,
		dimColor, ui.catalog.Len())

	ui.showInfoModal("About", aboutText)
}

func (ui *UI) showInfoModal(title, message string) {
	doDismiss := func() {
		ui.pages.RemovePage("modal")
		ui.app.SetFocus(ui.hymnList)
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	lines := strings.Count(message, "\n") + 1
	modal := centered(frame, 50, min(lines+10, 38))
	modal.SetBackgroundColor(ui.colors.background)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func centered(p tview.Primitive, width, height int) *tview.Flex {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
}
