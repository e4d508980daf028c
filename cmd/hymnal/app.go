package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/hymnal-cli/internal/api"
	"github.com/glebovdev/hymnal-cli/internal/asset"
	"github.com/glebovdev/hymnal-cli/internal/cache"
	"github.com/glebovdev/hymnal-cli/internal/catalog"
	"github.com/glebovdev/hymnal-cli/internal/config"
	"github.com/glebovdev/hymnal-cli/internal/download"
)

// Application holds the components shared by every command. One process
// owns exactly one download coordinator.
type Application struct {
	debug       bool
	catalogPath string
	cacheDir    string

	Config      *config.Config
	Catalog     *catalog.Catalog
	CatalogFile string
	Store       *cache.Store
	Resolver    *asset.Resolver
	Coordinator *download.Coordinator
	Registry    *prometheus.Registry

	logFile *os.File
}

// setup loads configuration and the catalog and wires the audio pipeline.
// interactive selects TUI-safe logging.
func (app *Application) setup(interactive bool, stderr io.Writer) error {
	cfg, cfgErr := config.Load()
	if app.catalogPath != "" {
		cfg.CatalogPath = app.catalogPath
	}
	if app.cacheDir != "" {
		cfg.CacheDir = app.cacheDir
	}

	cacheDir, err := cfg.AudioCacheDir()
	if err != nil {
		return err
	}
	store, err := cache.NewStore(cacheDir)
	if err != nil {
		return err
	}

	app.setupLogging(store.BaseDir(), interactive, stderr)

	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Using default configuration")
	}
	if app.debug {
		if configPath, err := config.GetConfigPath(); err == nil {
			log.Debug().Msgf("Config: %s", configPath)
		}
		log.Debug().Msgf("Cache: %s", store.BaseDir())
	}

	if err := store.CleanPartials(); err != nil {
		log.Warn().Err(err).Msg("Failed to clean partial recordings")
	}

	catalogFile, err := cfg.CatalogFile()
	if err != nil {
		return err
	}
	cat, err := catalog.Load(catalogFile)
	if err != nil {
		return err
	}

	resolver, err := asset.NewResolver(cfg.AudioBaseURL, cat)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	client := api.NewAudioClient(cfg.DownloadTimeout)

	app.Config = cfg
	app.Catalog = cat
	app.CatalogFile = catalogFile
	app.Store = store
	app.Resolver = resolver
	app.Registry = registry
	app.Coordinator = download.NewCoordinator(store, client, download.NewMetrics(registry))

	return nil
}

func (app *Application) setupLogging(logDir string, interactive bool, stderr io.Writer) {
	if app.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)

		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(stderr, "Warning: could not create log dir: %v\n", err)
		}
		logPath := filepath.Join(logDir, "debug.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: could not create log file: %v\n", err)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"})
		} else {
			app.logFile = logFile
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
			fmt.Fprintf(stderr, "Debug log: %s\n", logPath)
		}
		log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
		return
	}

	if interactive {
		// The TUI owns the terminal, so errors go nowhere visible
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			app.logFile = logFile
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"})
}

// close logs the download counters in debug mode and releases the log file.
func (app *Application) close() {
	if app.debug && app.Registry != nil {
		app.logMetrics()
	}
	if app.logFile != nil {
		app.logFile.Close()
		app.logFile = nil
	}
}

func (app *Application) logMetrics() {
	families, err := app.Registry.Gather()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to gather metrics")
		return
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			event := log.Debug().Str("metric", family.GetName())
			for _, label := range metric.GetLabel() {
				event = event.Str(label.GetName(), label.GetValue())
			}
			event.Float64("value", metric.GetCounter().GetValue()).Msg("Download counter")
		}
	}
}
