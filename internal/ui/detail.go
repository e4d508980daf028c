package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/hymnal-cli/internal/asset"
	"github.com/glebovdev/hymnal-cli/internal/download"
	"github.com/glebovdev/hymnal-cli/internal/hymn"
	"github.com/glebovdev/hymnal-cli/internal/playback"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	NoVersesText = "No verses available for this hymn."
	NotFoundText = "Hymn not found."
)

// FormatVerses renders the numbered verses of h separated by blank lines.
func FormatVerses(h hymn.Hymn) string {
	lines := h.VerseLines()
	if len(lines) == 0 {
		return NoVersesText
	}
	return strings.Join(lines, "\n\n")
}

func (ui *UI) createDetailPanel() *tview.Flex {
	ui.titleView = tview.NewTextView()
	ui.titleView.SetDynamicColors(true)
	ui.titleView.SetTextColor(ui.colors.highlight)
	ui.titleView.SetBackgroundColor(ui.colors.background)
	ui.titleView.SetWrap(false)
	ui.titleView.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))

	ui.categoryView = tview.NewTextView()
	ui.categoryView.SetDynamicColors(true)
	ui.categoryView.SetTextColor(ui.colors.foreground)
	ui.categoryView.SetBackgroundColor(ui.colors.background)
	ui.categoryView.SetWrap(false)

	ui.audioView = tview.NewTextView()
	ui.audioView.SetDynamicColors(true)
	ui.audioView.SetTextColor(ui.colors.foreground)
	ui.audioView.SetBackgroundColor(ui.colors.background)
	ui.audioView.SetWrap(false)

	ui.versesView = tview.NewTextView()
	ui.versesView.SetWordWrap(true)
	ui.versesView.SetScrollable(true)
	ui.versesView.SetTextColor(ui.colors.foreground)
	ui.versesView.SetBackgroundColor(ui.colors.background)
	ui.versesView.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBorderPadding(1, 1, 2, 2).
		SetTitle(" Verses ").
		SetTitleColor(ui.colors.foreground)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.titleView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.categoryView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.audioView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.versesView, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createGraphicalVolumeBar()

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(infoContent, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	return contentFlex
}

// showHymn fills the detail panel with the hymn with the given id.
func (ui *UI) showHymn(id int) {
	if ui.titleView == nil {
		return
	}

	h, ok := ui.catalog.Hymn(id)
	if !ok {
		ui.shownHymnID = 0
		ui.titleView.SetText(" " + NotFoundText)
		ui.categoryView.SetText("")
		ui.audioView.SetText("")
		ui.versesView.SetText("")
		return
	}

	ui.shownHymnID = id

	ui.titleView.SetText(fmt.Sprintf(" [%s]%s[-]",
		ui.colors.highlight.String(),
		tview.Escape(hymnTitle(h))))

	category := h.Category
	if category == "" {
		category = "N/A"
	}
	ui.categoryView.SetText(fmt.Sprintf(" Category: [:%s] %s [:-]",
		ui.colors.tagBackground.String(),
		tview.Escape(category)))

	ui.versesView.SetText(tview.Escape(FormatVerses(h)))
	ui.versesView.ScrollToBeginning()

	ui.updateAudioStatus()

	log.Debug().Int("hymn", h.ID).Msg("Showing hymn")
}

func (ui *UI) updateAudioStatus() {
	if ui.audioView == nil {
		return
	}

	h, ok := ui.catalog.Hymn(ui.shownHymnID)
	if !ok {
		ui.audioView.SetText("")
		return
	}

	ui.audioView.SetText(" " + ui.audioStatusText(h))
}

func (ui *UI) audioStatusText(h hymn.Hymn) string {
	keyColor := ui.colors.helpHotkey.String()

	if !h.HasAudio() {
		return "[::d]No recording available[::-]"
	}

	if ui.session.HymnID != h.ID {
		return fmt.Sprintf("♪ Recording available  [%s]Enter[-] play", keyColor)
	}

	switch ui.session.Phase {
	case playback.Resolving:
		return ui.getPlayingIndicator() + "Preparing recording..."
	case playback.Downloading:
		progress := ui.statusRenderer.DownloadProgress()
		if progress.Key == asset.KeyFor(h.ID) && progress.Total > 0 {
			return fmt.Sprintf("%sDownloading [%s]%s[-] %d%%",
				ui.getPlayingIndicator(),
				ui.colors.highlight.String(),
				ui.renderProgressBar(downloadPercent(progress)),
				downloadPercent(progress))
		}
		return ui.getPlayingIndicator() + "Downloading recording..."
	case playback.Ready:
		return ui.getPlayingIndicator() + "Starting playback..."
	case playback.Playing:
		return fmt.Sprintf("➤ Playing  [%s]s[-] stop  [%s]Space[-] pause", keyColor, keyColor)
	case playback.Failed:
		return fmt.Sprintf("✗ Playback failed  [%s]Enter[-] retry", keyColor)
	default:
		return fmt.Sprintf("♪ Recording available  [%s]Enter[-] play", keyColor)
	}
}

func downloadPercent(p download.Progress) int {
	if p.Total <= 0 {
		return 0
	}
	percent := int(p.Received * 100 / p.Total)
	return min(percent, 100)
}
