package ui

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/hymnal-cli/internal/asset"
	"github.com/glebovdev/hymnal-cli/internal/download"
	"github.com/glebovdev/hymnal-cli/internal/hymn"
	"github.com/glebovdev/hymnal-cli/internal/playback"
	"github.com/glebovdev/hymnal-cli/internal/player"
	"github.com/rivo/tview"
)

type StatusRenderer struct {
	player        *player.Player
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	mu       sync.Mutex
	session  playback.Session
	download download.Progress

	primaryColor string
}

func NewStatusRenderer(p *player.Player) *StatusRenderer {
	return &StatusRenderer{
		player:        p,
		maxAnimFrame:  4,
		ticksPerFrame: 3, // Slow down animation (3 ticks per frame)
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) SetSession(session playback.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

func (s *StatusRenderer) SetDownloadProgress(p download.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.download = p
}

func (s *StatusRenderer) DownloadProgress() download.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.download
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	s.mu.Lock()
	session := s.session
	progress := s.download
	s.mu.Unlock()

	var paused bool
	var elapsed, total time.Duration
	if s.player != nil && session.Phase == playback.Playing {
		paused = s.player.IsPaused()
		elapsed, total = s.player.Progress()
	}

	return s.renderSession(session, progress, paused, elapsed, total)
}

func (s *StatusRenderer) renderSession(session playback.Session, progress download.Progress, paused bool, elapsed, total time.Duration) string {
	switch session.Phase {
	case playback.Idle:
		return s.renderIdle()
	case playback.Resolving:
		return s.renderBusy("RESOLVING", session)
	case playback.Downloading:
		label := "DOWNLOADING"
		if progress.Key == asset.KeyFor(session.HymnID) && progress.Total > 0 {
			label = fmt.Sprintf("DOWNLOADING %d%%", downloadPercent(progress))
		}
		return s.renderBusy(label, session)
	case playback.Ready:
		return s.renderBusy("STARTING", session)
	case playback.Playing:
		if paused {
			return s.renderPaused(session, elapsed, total)
		}
		return s.renderPlaying(session, elapsed, total)
	case playback.Stopped:
		return s.renderStopped()
	case playback.Failed:
		return s.renderError(session.Err)
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select a hymn"
	}
	return "○ IDLE │ Select a hymn"
}

func (s *StatusRenderer) renderBusy(label string, session playback.Session) string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return joinParts([]string{
		fmt.Sprintf("%s %s", circles[s.animFrame], label),
		"Hymn " + hymn.Number(session.HymnID),
	})
}

func (s *StatusRenderer) renderPlaying(session playback.Session, elapsed, total time.Duration) string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " PLAYING", "Hymn " + hymn.Number(session.HymnID)}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, formatPosition(elapsed, total))

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused(session playback.Session, elapsed, total time.Duration) string {
	parts := []string{PauseIcon + " PAUSED", "Hymn " + hymn.Number(session.HymnID)}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	parts = append(parts, formatPosition(elapsed, total))

	return joinParts(parts)
}

func (s *StatusRenderer) renderStopped() string {
	if s.isMuted {
		return "■ STOPPED │ [red]MUTED[-]"
	}
	return "■ STOPPED"
}

func (s *StatusRenderer) renderError(err error) string {
	switch {
	case err == nil:
		return "✗ ERROR"
	case errors.Is(err, asset.ErrUnresolvable):
		return "✗ NO RECORDING"
	case errors.Is(err, download.ErrDownloadFailed):
		return "✗ DOWNLOAD FAILED"
	case errors.Is(err, playback.ErrPlaybackEngine):
		return "✗ PLAYBACK FAILED"
	default:
		return "✗ ERROR"
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func formatPosition(elapsed, total time.Duration) string {
	if total <= 0 {
		return formatDuration(elapsed)
	}
	return formatDuration(elapsed) + " / " + formatDuration(total)
}

func joinParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	result := parts[0]
	for i := 1; i < len(parts); i++ {
		result += " │ " + parts[i]
	}
	return result
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.session.Phase {
	case playback.Playing:
		if ui.player.IsPaused() {
			return fmt.Sprintf("[%s]Space[-] resume  [%s]s[-] stop", keyColor, keyColor)
		}
		return fmt.Sprintf("[%s]Space[-] pause  [%s]s[-] stop", keyColor, keyColor)
	case playback.Resolving, playback.Downloading, playback.Ready:
		return fmt.Sprintf("[%s]s[-] cancel", keyColor)
	default:
		return fmt.Sprintf("[%s]Enter[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	muteText := "mute"
	if ui.isMuted {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]/[-] search  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fillArea(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fillArea(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fillArea(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := max(height/2, 1)
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fillArea(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fillArea(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		tview.Print(screen, statusText, x, helpBoxEnd+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		isWide := width >= FooterBreakpoint
		usedHeight := height
		if isWide && height > FooterHeightWide {
			usedHeight = FooterHeightWide
		}

		if isWide {
			ui.drawWideFooter(screen, x, y, width, usedHeight, helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
