package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "Hymnal CLI"
	AppTagline     = "Terminal hymnal"
	AppDescription = "A terminal hymnal with searchable lyrics and cached audio recordings"
	AppProjectURL  = "https://github.com/glebovdev/hymnal-cli"

	ConfigDir          = ".config/hymnal"
	ConfigFileName     = "config.yml"
	CatalogFileName    = "hymns.json"
	DefaultAudioBase   = "https://hymnal.example.com/audio"
	DefaultVolume      = 70
	MinVolume          = 0
	MaxVolume          = 100
	DefaultTimeout     = 60 * time.Second
	DefaultConcurrency = 2
	MaxConcurrency     = 8
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// ClampConcurrency ensures prefetch concurrency is within [1, MaxConcurrency].
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/hymnal-cli/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background       string `yaml:"background"`
	Foreground       string `yaml:"foreground"`
	Borders          string `yaml:"borders"`
	Highlight        string `yaml:"highlight"`
	HeaderBackground string `yaml:"header_background"`
	ListHeader       string `yaml:"list_header"`
	HelpBackground   string `yaml:"help_background"`
	HelpForeground   string `yaml:"help_foreground"`
	HelpHotkey       string `yaml:"help_hotkey"`
	TagBackground    string `yaml:"tag_background"`
	MutedVolume      string `yaml:"muted_volume"`
	ModalBackground  string `yaml:"modal_background"`
}

type Config struct {
	Volume              int           `yaml:"volume"`
	LastHymn            int           `yaml:"last_hymn"`
	AudioBaseURL        string        `yaml:"audio_base_url"`
	CatalogPath         string        `yaml:"catalog_path"`
	CacheDir            string        `yaml:"cache_dir"`
	DownloadTimeout     time.Duration `yaml:"download_timeout"`
	PrefetchConcurrency int           `yaml:"prefetch_concurrency"`
	Theme               Theme         `yaml:"theme"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.normalize()

	return cfg, nil
}

func (c *Config) normalize() {
	c.Volume = ClampVolume(c.Volume)
	c.PrefetchConcurrency = ClampConcurrency(c.PrefetchConcurrency)
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = DefaultTimeout
	}
	if strings.TrimSpace(c.AudioBaseURL) == "" {
		c.AudioBaseURL = DefaultAudioBase
	}
	if c.LastHymn < 0 {
		c.LastHymn = 0
	}
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

// CatalogFile returns the catalog location, defaulting to hymns.json next to
// the config file. A leading ~ is expanded to the home directory.
func (c *Config) CatalogFile() (string, error) {
	if c.CatalogPath != "" {
		return expandHome(c.CatalogPath)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), CatalogFileName), nil
}

// AudioCacheDir returns the configured cache directory with ~ expanded, or
// an empty string to select the platform default.
func (c *Config) AudioCacheDir() (string, error) {
	if c.CacheDir == "" {
		return "", nil
	}
	return expandHome(c.CacheDir)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:              DefaultVolume,
		LastHymn:            0,
		AudioBaseURL:        DefaultAudioBase,
		CatalogPath:         "",
		CacheDir:            "",
		DownloadTimeout:     DefaultTimeout,
		PrefetchConcurrency: DefaultConcurrency,
		Theme: Theme{
			Background:       "#1a1b25",
			Foreground:       "#a3aacb",
			Borders:          "#40445b",
			Highlight:        "#ff9d65",
			HeaderBackground: "#473533",
			ListHeader:       "#3a3d4f",
			HelpBackground:   "#2b2d3a",
			HelpForeground:   "#9aa3c6",
			HelpHotkey:       "#ff9d65",
			TagBackground:    "#40445b",
			MutedVolume:      "#6b6f85",
			ModalBackground:  "#282a36",
		},
	}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
