package ui

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/hymnal-cli/internal/asset"
	"github.com/glebovdev/hymnal-cli/internal/catalog"
	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/glebovdev/hymnal-cli/internal/download"
	"github.com/glebovdev/hymnal-cli/internal/hymn"
	"github.com/glebovdev/hymnal-cli/internal/playback"
	"github.com/glebovdev/hymnal-cli/internal/player"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep         = 5
	HeaderHeight       = 3
	FooterHeightWide   = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow = 6 // Narrow: 2 rows × 3 lines each
	ListWidth          = 56
	FooterBreakpoint   = 130 // Width threshold for responsive footer
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

type UI struct {
	app             *tview.Application
	catalog         *catalog.Catalog
	controller      *playback.Controller
	player          *player.Player
	config          *config.Config
	hymnList        *tview.Table
	searchInput     *tview.InputField
	helpPanel       *tview.Box
	contentLayout   *tview.Flex
	detailPanel     *tview.Flex
	titleView       *tview.TextView
	categoryView    *tview.TextView
	audioView       *tview.TextView
	versesView      *tview.TextView
	volumeView      *tview.Flex
	mainLayout      *tview.Flex
	pages           *tview.Pages
	stopUpdates     chan struct{}
	unsubscribe     func()
	requestMu       sync.Mutex
	requests        []playbackRequest
	requestReady    chan struct{}
	visible         []hymn.Hymn
	query           string
	shownHymnID     int
	playingHymnID   int
	session         playback.Session
	currentVolume   int
	isMuted         bool
	lastFooterWidth int // Track width to detect layout changes
	mu              sync.Mutex
	animationFrame  int
	playingSpinner  *PlayingSpinner
	statusRenderer  *StatusRenderer
	colors          struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		listHeader       tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
		tagBackground    tcell.Color
		mutedVolume      tcell.Color
		modalBackground  tcell.Color
	}
}

func NewUI(cfg *config.Config, cat *catalog.Catalog, controller *playback.Controller, player *player.Player) *UI {
	ui := &UI{
		app:           tview.NewApplication(),
		catalog:       cat,
		controller:    controller,
		player:        player,
		config:        cfg,
		stopUpdates:   make(chan struct{}),
		requestReady:  make(chan struct{}, 1),
		currentVolume: cfg.Volume,
		isMuted:       false,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.listHeader = config.GetColor(cfg.Theme.ListHeader)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.tagBackground = config.GetColor(cfg.Theme.TagBackground)
	ui.colors.mutedVolume = config.GetColor(cfg.Theme.MutedVolume)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	player.SetVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer(player)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

// SetDownloadProgress feeds transfer progress to the status bar. Safe for
// concurrent use.
func (ui *UI) SetDownloadProgress(p download.Progress) {
	ui.statusRenderer.SetDownloadProgress(p)
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	if ui.shownHymnID > 0 {
		ui.config.LastHymn = ui.shownHymnID
	}
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) safeCloseChannel() {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if ui.stopUpdates != nil {
		select {
		case <-ui.stopUpdates:
			// Already closed
		default:
			close(ui.stopUpdates)
		}
		ui.stopUpdates = nil
	}
}

func (ui *UI) stop() {
	if ui.unsubscribe != nil {
		ui.unsubscribe()
	}
	ui.SaveConfig()
	go ui.controller.Stop()
	ui.safeCloseChannel()
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupUI()
	ui.configureScreen()

	ui.unsubscribe = ui.controller.Subscribe(func(s playback.Session) {
		ui.app.QueueUpdateDraw(func() {
			ui.onSessionChanged(s)
		})
	})

	ui.startAnimation()
	ui.startRequestWorker()

	ui.app.SetRoot(ui.pages, true).EnableMouse(true)
	ui.app.SetFocus(ui.hymnList)
	ui.showInitialHymn()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) showInitialHymn() {
	if len(ui.visible) == 0 {
		return
	}

	if ui.config.LastHymn > 0 {
		if index := ui.indexOfHymn(ui.config.LastHymn); index >= 0 {
			ui.selectAndShowHymn(index)
			return
		}
		log.Debug().Int("hymn", ui.config.LastHymn).Msg("Last hymn not listed, showing first hymn")
	}

	ui.selectAndShowHymn(0)
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.detailPanel = ui.createDetailPanel()
	ui.searchInput = ui.createSearchInput()
	ui.hymnList = ui.createHymnListTable()
	ui.helpPanel = ui.createFooter()

	listColumn := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.searchInput, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.hymnList, 0, 1, true)
	listColumn.SetBackgroundColor(ui.colors.background)

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(listColumn, ListWidth, 0, true).
		AddItem(nil, 2, 0, false).
		AddItem(ui.detailPanel, 0, 1, false)
	body.SetBackgroundColor(ui.colors.background)

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") {
			return event
		}
		if ui.app.GetFocus() == ui.searchInput {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	pad := func() *tview.Box { return tview.NewBox().SetBackgroundColor(ui.colors.headerBackground) }

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(pad(), 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(pad(), 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(pad(), 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(pad(), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) createSearchInput() *tview.InputField {
	input := tview.NewInputField().
		SetLabel(" / ").
		SetPlaceholder("Search by name or number").
		SetFieldWidth(0)
	input.SetLabelColor(ui.colors.highlight)
	input.SetFieldBackgroundColor(ui.colors.listHeader)
	input.SetFieldTextColor(ui.colors.foreground)
	input.SetPlaceholderTextColor(ui.colors.borders)
	input.SetBackgroundColor(ui.colors.background)

	input.SetChangedFunc(func(text string) {
		ui.applyFilter(text)
	})

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEscape {
			input.SetText("")
		}
		ui.app.SetFocus(ui.hymnList)
	})

	return input
}

// playSelected requests playback of the hymn shown in the detail panel.
// Hymns without a recording are ignored.
func (ui *UI) playSelected() {
	h, ok := ui.catalog.Hymn(ui.shownHymnID)
	if !ok {
		return
	}
	if !h.HasAudio() {
		log.Debug().Int("hymn", h.ID).Msg("No recording for hymn, play ignored")
		return
	}

	ui.playHymn(h.ID)
}

func (ui *UI) playHymn(hymnID int) {
	ui.enqueueRequest(playbackRequest{hymnID: hymnID})
}

func (ui *UI) stopPlayback() {
	ui.enqueueRequest(playbackRequest{stop: true})
}

// playbackRequest is a key press waiting for the request worker.
type playbackRequest struct {
	hymnID int
	stop   bool
}

// enqueueRequest never blocks, so it is safe to call from the event loop.
func (ui *UI) enqueueRequest(r playbackRequest) {
	ui.requestMu.Lock()
	ui.requests = append(ui.requests, r)
	ui.requestMu.Unlock()

	select {
	case ui.requestReady <- struct{}{}:
	default:
	}
}

func (ui *UI) nextRequest() (playbackRequest, bool) {
	ui.requestMu.Lock()
	defer ui.requestMu.Unlock()

	if len(ui.requests) == 0 {
		return playbackRequest{}, false
	}
	r := ui.requests[0]
	ui.requests = ui.requests[1:]
	return r, true
}

// startRequestWorker hands queued requests to the controller in the order the
// keys were pressed. Controller calls stay off the event loop because session
// changes are drawn with QueueUpdateDraw.
func (ui *UI) startRequestWorker() {
	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ui.requestReady:
			}

			for {
				r, ok := ui.nextRequest()
				if !ok {
					break
				}
				ui.handleRequest(r)
			}
		}
	}()
}

// handleRequest supersedes the current session before returning; only the
// download and engine start of a play request run in the background.
func (ui *UI) handleRequest(r playbackRequest) {
	if r.stop {
		ui.controller.Stop()
		return
	}

	log.Info().Int("hymn", r.hymnID).Msg("Starting playback")
	run := ui.controller.Begin(r.hymnID)
	go func() {
		if err := run(context.Background()); err != nil {
			log.Debug().Err(err).Int("hymn", r.hymnID).Msg("Playback request failed")
		}
	}()
}

func (ui *UI) onSessionChanged(s playback.Session) {
	previous := ui.playingHymnID

	ui.session = s
	ui.statusRenderer.SetSession(s)

	ui.playingHymnID = 0
	if s.Phase.Busy() || s.Phase == playback.Playing {
		ui.playingHymnID = s.HymnID
	}

	if previous != ui.playingHymnID {
		if index := ui.indexOfHymn(previous); index >= 0 {
			ui.setHymnRow(ui.hymnList, index+1, index)
		}
	}
	ui.updateHymnListPlayingIndicator()

	if s.HymnID == ui.shownHymnID {
		ui.updateAudioStatus()
	}

	if s.Phase == playback.Failed && s.Err != nil && !errors.Is(s.Err, asset.ErrUnresolvable) {
		ui.showError(s.Err)
	}
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

func (ui *UI) getPlayingIndicator() string {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	frameIndex := ui.animationFrame % len(ui.playingSpinner.Frames)
	return ui.playingSpinner.Frames[frameIndex]
}

func (ui *UI) startAnimation() {
	if ui.playingSpinner == nil {
		ui.playingSpinner = NewPlayingSpinner()
	}

	ui.mu.Lock()
	stop := ui.stopUpdates
	ui.mu.Unlock()

	go func() {
		animationTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer animationTicker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-animationTicker.C:
				ui.statusRenderer.AdvanceAnimation()

				ui.app.QueueUpdateDraw(func() {
					if ui.session.Phase.Busy() || ui.session.Phase == playback.Playing {
						ui.animationFrame++
						ui.updateHymnListPlayingIndicator()
					}
					if ui.shownHymnID == ui.session.HymnID && ui.session.Phase == playback.Downloading {
						ui.updateAudioStatus()
					}
				})
			}
		}
	}()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			if ui.session.Phase == playback.Playing && ui.session.HymnID == ui.shownHymnID {
				ui.player.TogglePause()
				ui.updateHymnListPlayingIndicator()
			} else {
				ui.playSelected()
			}
			return nil
		case 'p', 'P':
			ui.playSelected()
			return nil
		case 's', 'S':
			ui.stopPlayback()
			return nil
		case '/':
			ui.app.SetFocus(ui.searchInput)
			return nil
		case '>':
			ui.nextHymn()
			return nil
		case '<':
			ui.prevHymn()
			return nil
		case 'r', 'R':
			ui.randomHymn()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyEnter:
		ui.playSelected()
		return nil
	case tcell.KeyEscape:
		if ui.query != "" {
			ui.searchInput.SetText("")
			return nil
		}
		ui.stop()
		return nil
	case tcell.KeyPgDn:
		row, _ := ui.versesView.GetScrollOffset()
		ui.versesView.ScrollTo(row+5, 0)
		return nil
	case tcell.KeyPgUp:
		row, _ := ui.versesView.GetScrollOffset()
		ui.versesView.ScrollTo(max(row-5, 0), 0)
		return nil
	case tcell.KeyRight:
		// Right arrow - volume up (hidden shortcut)
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyLeft:
		// Left arrow - volume down (hidden shortcut)
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}

func (ui *UI) renderProgressBar(percent int) string {
	const width = 30
	percent = min(max(percent, 0), 100)
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func hymnTitle(h hymn.Hymn) string {
	return fmt.Sprintf("%s. %s", hymn.Number(h.ID), h.Name)
}
