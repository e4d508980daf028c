package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/glebovdev/hymnal-cli/internal/catalog"
	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/glebovdev/hymnal-cli/internal/download"
	"github.com/glebovdev/hymnal-cli/internal/hymn"
	"github.com/glebovdev/hymnal-cli/internal/playback"
	"github.com/glebovdev/hymnal-cli/internal/player"
	"github.com/glebovdev/hymnal-cli/internal/ui"
)

var errFetchIncomplete = errors.New("some recordings could not be fetched")

// createRootCommand builds the root command, which starts the TUI, with all
// subcommands attached.
func (app *Application) createRootCommand(ctx context.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hymnal",
		Short:         config.AppTagline,
		Long:          config.AppDescription + ".",
		Version:       config.AppVersion,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.setup(true, cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.close()
			return app.runTUI(ctx)
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v{{.Version}}\n%s\n", config.AppName, config.AppDescription))

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&app.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&app.catalogPath, "catalog", "", "Path to the hymn catalog (hymns.json)")
	flags.StringVar(&app.cacheDir, "cache-dir", "", "Directory for downloaded recordings")

	rootCmd.AddCommand(app.createPlayCommand(ctx))
	rootCmd.AddCommand(app.createFetchCommand(ctx))
	rootCmd.AddCommand(app.createSearchCommand())
	rootCmd.AddCommand(app.createAnnotateCommand())

	return rootCmd
}

func (app *Application) runTUI(ctx context.Context) error {
	audio := player.NewPlayer()
	controller := playback.NewController(app.Resolver, app.Coordinator, audio)
	hymnalUI := ui.NewUI(app.Config, app.Catalog, controller, audio)
	app.Coordinator.OnProgress(hymnalUI.SetDownloadProgress)

	uiDone := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			log.Info().Msg("Received shutdown signal, cleaning up...")
			hymnalUI.Shutdown()
		case <-uiDone:
		}
	}()

	log.Info().Msg("Starting UI...")

	// Run UI in a goroutine so we can handle signals properly
	errCh := make(chan error, 1)
	go func() {
		errCh <- hymnalUI.Run()
	}()

	err := <-errCh
	close(uiDone)

	controller.Stop()
	audio.Stop()

	if err != nil {
		log.Error().Err(err).Msg("Error running UI")
		return err
	}
	log.Info().Msgf("%s stopped", config.AppName)
	return nil
}

func (app *Application) createPlayCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "play <hymn>",
		Short: "Play the recording of a hymn",
		Long:  `Download the recording of a hymn if it is not cached yet and play it until it ends.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hymnID, err := parseHymnID(args[0])
			if err != nil {
				return err
			}
			if err := app.setup(false, cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.close()
			return app.play(ctx, cmd.OutOrStdout(), hymnID)
		},
	}
}

func (app *Application) play(ctx context.Context, out io.Writer, hymnID int) error {
	audio := player.NewPlayer()
	audio.SetVolume(app.Config.Volume)
	defer audio.Stop()

	controller := playback.NewController(app.Resolver, app.Coordinator, audio)
	return playUntilDone(ctx, out, app.Catalog, controller, hymnID)
}

// playUntilDone prints every phase change and waits for the track to end,
// fail, or ctx to be canceled.
func playUntilDone(ctx context.Context, out io.Writer, cat *catalog.Catalog, controller *playback.Controller, hymnID int) error {
	done := make(chan playback.Session, 1)
	unsubscribe := controller.Subscribe(func(s playback.Session) {
		fmt.Fprintln(out, describeSession(cat, s))
		if s.Phase == playback.Stopped || s.Phase == playback.Failed {
			select {
			case done <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := controller.Play(ctx, hymnID); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	select {
	case s := <-done:
		return s.Err
	case <-ctx.Done():
		controller.Stop()
		return nil
	}
}

func describeSession(cat *catalog.Catalog, s playback.Session) string {
	title := hymn.Number(s.HymnID)
	if h, ok := cat.Hymn(s.HymnID); ok {
		title += " " + h.Name
	}

	line := fmt.Sprintf("%-11s %s", s.Phase, title)
	if s.Phase == playback.Failed && s.Err != nil {
		line += ": " + s.Err.Error()
	}
	return line
}

func (app *Application) createFetchCommand(ctx context.Context) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "fetch <hymn>...",
		Short: "Download recordings into the cache",
		Long:  `Download the recordings of the given hymns into the local cache without playing them.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseHymnIDs(args)
			if err != nil {
				return err
			}
			if err := app.setup(false, cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.close()

			if concurrency <= 0 {
				concurrency = app.Config.PrefetchConcurrency
			}
			return app.fetch(ctx, cmd.OutOrStdout(), ids, config.ClampConcurrency(concurrency))
		},
	}
	cmd.Flags().IntVarP(&concurrency, "jobs", "j", 0, "Maximum parallel downloads (default from config)")

	return cmd
}

func (app *Application) fetch(ctx context.Context, out io.Writer, ids []int, limit int) error {
	var requests []download.Request
	failed := 0

	for _, id := range ids {
		a, err := app.Resolver.Resolve(id)
		if err != nil {
			fmt.Fprintf(out, "skip  %s: %v\n", hymn.Number(id), err)
			failed++
			continue
		}
		requests = append(requests, download.Request{Key: a.Key, URL: a.URL})
	}

	for _, result := range app.Coordinator.Prefetch(ctx, requests, limit) {
		if result.Err != nil {
			fmt.Fprintf(out, "fail  %s: %v\n", result.Key, result.Err)
			failed++
			continue
		}
		fmt.Fprintf(out, "ok    %s  %s\n", result.Key, result.Path)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFetchIncomplete, failed, len(ids))
	}
	return nil
}

func (app *Application) createSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search hymns by number or name",
		Long:  `Print the hymns whose number or name matches the query. Fuzzy name matches follow exact ones.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(false, cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.close()
			out := cmd.OutOrStdout()
			printHymns(out, app.Catalog.Search(strings.Join(args, " ")), terminalWidth(out))
			return nil
		},
	}
}

// printHymns writes one line per hymn, cut to width columns when width > 0.
func printHymns(out io.Writer, hymns []hymn.Hymn, width int) {
	if len(hymns) == 0 {
		fmt.Fprintln(out, "No hymns found.")
		return
	}

	for _, h := range hymns {
		marker := " "
		if h.HasAudio() {
			marker = "♪"
		}
		line := fmt.Sprintf("%s %s  %s  [%s]", marker, hymn.Number(h.ID), h.Name, h.Category)
		fmt.Fprintln(out, fitWidth(line, width))
	}
}

func fitWidth(line string, width int) string {
	runes := []rune(line)
	if width <= 0 || len(runes) <= width {
		return line
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}

// terminalWidth returns the column count of out when it is a terminal, or 0.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return 0
	}

	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}

	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}

func (app *Application) createAnnotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "annotate",
		Short: "Add recording file names to the catalog",
		Long:  `Rewrite the catalog so that every hymn carries its canonical recording file name.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.setup(false, cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.close()

			if err := app.Catalog.WithFileNames().Save(app.CatalogFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Annotated %d hymns in %s\n", app.Catalog.Len(), app.CatalogFile)
			return nil
		},
	}
}

func parseHymnID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid hymn number %q", arg)
	}
	return id, nil
}

func parseHymnIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	seen := make(map[int]bool, len(args))

	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			if strings.TrimSpace(field) == "" {
				continue
			}
			id, err := parseHymnID(field)
			if err != nil {
				return nil, err
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return nil, errors.New("no hymn numbers given")
	}
	return ids, nil
}
