package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mcwizard/scanner"
)

const (
	defaultCurseForgeAPIURL = "https://api.curseforge.com/v1"
	defaultUserAgent        = "mcwizard/dev"
	defaultCacheTTL         = 2 * time.Minute
	minWatchDebounce        = 200 * time.Millisecond
)

// Config holds all configuration for the application.
// Values are loaded by Viper from a config file and/or environment variables.
type Config struct {
	DataDir          string        `mapstructure:"MCWIZARD_DATA_DIR"`
	CurseForgeAPIKey string        `mapstructure:"CURSEFORGE_API_KEY"`
	CurseForgeAPIURL string        `mapstructure:"CURSEFORGE_API_URL"`
	UserAgent        string        `mapstructure:"USERAGENT"`
	CatalogCacheTTL  time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	ArchiveStrategy  string        `mapstructure:"ARCHIVE_STRATEGY"`
	MaxItemPreviews  int           `mapstructure:"MAX_ITEM_PREVIEWS"`
	MaxAssetPreviews int           `mapstructure:"MAX_ASSET_PREVIEWS"`
	WatchDebounce    time.Duration `mapstructure:"WATCH_DEBOUNCE"`
	LogFile          string        `mapstructure:"LOG_FILE"`

	ModsDir      string `mapstructure:"-"` // Derived from DataDir
	LedgerPath   string `mapstructure:"-"`
	PreviewDir   string `mapstructure:"-"`
	DatabasePath string `mapstructure:"-"`
}

var envKeys = []string{
	"MCWIZARD_DATA_DIR",
	"CURSEFORGE_API_KEY",
	"CURSEFORGE_API_URL",
	"USERAGENT",
	"CATALOG_CACHE_TTL",
	"REDIS_URL",
	"ARCHIVE_STRATEGY",
	"MAX_ITEM_PREVIEWS",
	"MAX_ASSET_PREVIEWS",
	"WATCH_DEBOUNCE",
	"LOG_FILE",
}

// LoadConfig reads configuration from file and environment variables.
// It runs before the file logger exists, so it reports through slog.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	vipErr := viper.ReadInConfig()
	if _, ok := vipErr.(viper.ConfigFileNotFoundError); ok {
		slog.Debug("Config file (.env) not found, relying on environment variables.")
	} else if vipErr != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vipErr)
	}

	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			slog.Warn("Unable to bind env var", "key", key, "error", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", err)
	}

	processConfigDefaults(&config)
	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// processConfigDefaults fills unset values and derives the managed paths.
func processConfigDefaults(config *Config) {
	if config.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
			slog.Warn("No user config directory, using temp dir", "path", base, "error", err)
		}
		config.DataDir = filepath.Join(base, "mcwizard")
	}
	if config.CurseForgeAPIURL == "" {
		config.CurseForgeAPIURL = defaultCurseForgeAPIURL
	}
	config.CurseForgeAPIURL = strings.TrimRight(config.CurseForgeAPIURL, "/")
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.CatalogCacheTTL <= 0 {
		config.CatalogCacheTTL = defaultCacheTTL
	}
	if config.ArchiveStrategy == "" {
		config.ArchiveStrategy = "auto"
	}
	config.ArchiveStrategy = strings.ToLower(config.ArchiveStrategy)
	if config.MaxItemPreviews <= 0 {
		config.MaxItemPreviews = scanner.DefaultMaxItemPreviews
	}
	if config.MaxAssetPreviews <= 0 {
		config.MaxAssetPreviews = scanner.DefaultMaxAssetPreviews(runtime.GOOS)
	}
	if config.WatchDebounce < minWatchDebounce {
		config.WatchDebounce = minWatchDebounce
	}

	config.ModsDir = filepath.Join(config.DataDir, "mods")
	config.LedgerPath = filepath.Join(config.DataDir, "installed-mods.json")
	config.PreviewDir = filepath.Join(config.DataDir, "previews")
	config.DatabasePath = filepath.Join(config.DataDir, "mcwizard.db")
	if config.LogFile == "" {
		config.LogFile = filepath.Join(config.DataDir, "mcwizard.log")
	}
}

// validateAndEnsureDirectories checks values that have no sensible default
// and creates the data, mods and previews directories.
func validateAndEnsureDirectories(config *Config) error {
	if config.DataDir == "" {
		return fmt.Errorf("MCWIZARD_DATA_DIR is required")
	}
	switch config.ArchiveStrategy {
	case "auto", "powershell", "unzip", "native":
	default:
		return fmt.Errorf("invalid ARCHIVE_STRATEGY %q (want auto, powershell, unzip or native)", config.ArchiveStrategy)
	}

	for _, dir := range []string{config.DataDir, config.ModsDir, config.PreviewDir} {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Debug("Directory does not exist, creating it", "path", dir)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		} else if err != nil {
			return fmt.Errorf("check %s: %w", dir, err)
		}
	}
	return nil
}

// RequireAPIKey reports a helpful error when catalog calls are impossible.
func (c Config) RequireAPIKey() error {
	if c.CurseForgeAPIKey == "" {
		return fmt.Errorf("CURSEFORGE_API_KEY is not set; add it to .env or the environment")
	}
	return nil
}
