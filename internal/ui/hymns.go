package ui

import (
	"fmt"
	"math/rand/v2"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/hymnal-cli/internal/hymn"
	"github.com/glebovdev/hymnal-cli/internal/playback"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const maxNameWidth = 32

func (ui *UI) createHymnListTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	headers := []struct {
		text      string
		expansion int
		align     int
	}{
		{" ", 0, tview.AlignLeft},
		{"No.", 0, tview.AlignRight},
		{"Name", 1, tview.AlignLeft},
		{"♪", 0, tview.AlignCenter},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetTextColor(ui.colors.foreground).
			SetBackgroundColor(ui.colors.listHeader).
			SetAlign(h.align).
			SetSelectable(false)
		if h.expansion > 0 {
			cell.SetExpansion(h.expansion)
		}
		table.SetCell(0, col, cell)
	}

	table.SetSelectionChangedFunc(func(row, column int) {
		if row > 0 && row <= len(ui.visible) {
			ui.showHymn(ui.visible[row-1].ID)
		}
	})

	ui.hymnList = table
	ui.applyFilter("")

	return table
}

// applyFilter rebuilds the list from the catalog search for query, keeping the
// shown hymn selected when it is still listed.
func (ui *UI) applyFilter(query string) {
	ui.query = query
	ui.visible = ui.catalog.Search(query)

	ui.refreshHymnTable()

	if index := ui.indexOfHymn(ui.shownHymnID); index >= 0 {
		ui.hymnList.Select(index+1, 0)
	} else if len(ui.visible) > 0 {
		ui.hymnList.Select(1, 0)
	}

	log.Debug().Str("query", query).Int("count", len(ui.visible)).Msg("Hymn list filtered")
}

func (ui *UI) refreshHymnTable() {
	for row := ui.hymnList.GetRowCount() - 1; row > 0; row-- {
		ui.hymnList.RemoveRow(row)
	}

	for i := range ui.visible {
		ui.setHymnRow(ui.hymnList, i+1, i)
	}

	title := fmt.Sprintf("Hymns (%d)", len(ui.visible))
	if ui.query != "" {
		title = fmt.Sprintf("Hymns (%d of %d)", len(ui.visible), len(ui.catalog.Listed()))
	}
	ui.hymnList.SetTitle(title)
}

func (ui *UI) setHymnRow(table *tview.Table, row int, index int) {
	if index < 0 || index >= len(ui.visible) {
		return
	}
	h := ui.visible[index]

	playIcon := " "
	if h.ID == ui.playingHymnID {
		playIcon = ui.playIcon()
	}
	table.SetCell(row, 0, tview.NewTableCell(playIcon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	table.SetCell(row, 1, tview.NewTableCell(hymn.Number(h.ID)).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))

	table.SetCell(row, 2, tview.NewTableCell(truncateName(h.Name, maxNameWidth)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxNameWidth+2).
		SetExpansion(1))

	table.SetCell(row, 3, tview.NewTableCell(audioMarker(h)).
		SetTextColor(ui.colors.highlight).
		SetAlign(tview.AlignCenter))
}

func (ui *UI) playIcon() string {
	if ui.session.Phase == playback.Playing && ui.player.IsPaused() {
		return PauseIcon
	}
	return "➤"
}

func audioMarker(h hymn.Hymn) string {
	if h.HasAudio() {
		return "♪"
	}
	return " "
}

func truncateName(name string, width int) string {
	runes := []rune(name)
	if len(runes) <= width {
		return name
	}
	return string(runes[:width-3]) + "..."
}

func (ui *UI) indexOfHymn(id int) int {
	if id <= 0 {
		return -1
	}
	for i, h := range ui.visible {
		if h.ID == id {
			return i
		}
	}
	return -1
}

func (ui *UI) nextHymn() {
	count := len(ui.visible)
	if count == 0 {
		return
	}

	row, _ := ui.hymnList.GetSelection()
	nextIndex := row % count
	ui.selectAndShowHymn(nextIndex)
}

func (ui *UI) prevHymn() {
	count := len(ui.visible)
	if count == 0 {
		return
	}

	row, _ := ui.hymnList.GetSelection()
	prevIndex := row - 2
	if prevIndex < 0 {
		prevIndex = count - 1
	}
	ui.selectAndShowHymn(prevIndex)
}

func (ui *UI) randomHymn() {
	count := len(ui.visible)
	if count == 0 {
		return
	}

	ui.selectAndShowHymn(rand.IntN(count))
}

func (ui *UI) selectAndShowHymn(index int) {
	if index < 0 || index >= len(ui.visible) {
		return
	}

	ui.hymnList.Select(index+1, 0)
	ui.showHymn(ui.visible[index].ID)
}

func (ui *UI) updateHymnListPlayingIndicator() {
	index := ui.indexOfHymn(ui.playingHymnID)
	if index < 0 {
		return
	}

	row := index + 1
	h := ui.visible[index]

	if playCell := ui.hymnList.GetCell(row, 0); playCell != nil {
		playCell.SetText(ui.playIcon())
	}

	nameCell := ui.hymnList.GetCell(row, 2)
	if nameCell == nil {
		return
	}

	indicator := ui.getPlayingIndicator()
	if ui.session.Phase == playback.Playing && ui.player.IsPaused() {
		indicator = ""
	}

	name := truncateName(h.Name, maxNameWidth-len([]rune(indicator))-1)
	nameCell.SetText(name + " " + indicator)
}
