package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// volumeLevels returns how many bar lines are filled and empty for percent.
func volumeLevels(percent int) (filled, empty int) {
	filled = (config.ClampVolume(percent) * volumeBarHeight) / 100
	return filled, volumeBarHeight - filled
}

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	ui.mu.Lock()
	displayVolume := ui.currentVolume
	isMuted := ui.isMuted
	if isMuted {
		displayVolume = ui.config.Volume
	}
	ui.mu.Unlock()

	filledLines, emptyLines := volumeLevels(displayVolume)

	barColor := ui.colors.highlight
	if isMuted {
		barColor = ui.colors.mutedVolume
	}

	createText := func(text string, color tcell.Color) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(text)
		tv.SetTextAlign(tview.AlignRight)
		tv.SetTextColor(color)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}

	createBarLine := func(barText string, color tcell.Color, showPercent bool) *tview.Flex {
		line := tview.NewFlex().SetDirection(tview.FlexColumn)
		line.SetBackgroundColor(ui.colors.background)

		if !showPercent {
			line.AddItem(createText("    ", ui.colors.foreground), 4, 0, false)
			line.AddItem(createText(barText, color), 0, 1, false)
			return line
		}

		percentView := createText(fmt.Sprintf("%d%%", displayVolume), barColor)
		if isMuted {
			percentView.SetTextStyle(tcell.StyleDefault.
				Foreground(barColor).
				Background(ui.colors.background).
				Attributes(tcell.AttrStrikeThrough))
		}

		line.AddItem(percentView, 4, 0, false)
		line.AddItem(createText(barText, color), 0, 1, false)
		return line
	}

	container.AddItem(createText("   max", ui.colors.foreground), 1, 0, false)

	for i := 0; i < emptyLines; i++ {
		container.AddItem(createBarLine(" ░░", ui.colors.foreground, false), 1, 0, false)
	}
	for i := 0; i < filledLines; i++ {
		container.AddItem(createBarLine(" ██", barColor, i == 0), 1, 0, false)
	}

	container.AddItem(createText("   min", ui.colors.foreground), 1, 0, false)
	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	volumeContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	volumeContainer.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(volumeContainer)
	return volumeContainer
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()

	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		ui.statusRenderer.SetMuted(false)
		ui.mu.Unlock()

		ui.player.SetVolume(ui.currentVolume)
		ui.updateVolumeDisplay()
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", ui.currentVolume)
		return
	}

	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	ui.mu.Unlock()

	ui.player.SetVolume(ui.currentVolume)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
	log.Debug().Msgf("Volume adjusted to %d%%", ui.currentVolume)
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.currentVolume = ui.config.Volume
		ui.isMuted = false
		log.Debug().Msgf("Unmuted, restored volume to %d%%", ui.currentVolume)
	} else {
		if ui.currentVolume == 0 {
			ui.config.Volume = config.DefaultVolume
		} else {
			ui.config.Volume = ui.currentVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
		log.Debug().Msgf("Muted, saved volume %d%%", ui.config.Volume)
	}
	ui.statusRenderer.SetMuted(ui.isMuted)
	ui.mu.Unlock()

	ui.player.SetVolume(ui.currentVolume)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
}
