package cmd

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mcwizard/archive"
	"mcwizard/catalog"
	"mcwizard/config"
	"mcwizard/db"
	"mcwizard/downloads"
	"mcwizard/ledger"
	"mcwizard/logger"
	"mcwizard/scanner"
)

// App holds the process-scoped components every command works with.
type App struct {
	Cfg        config.Config
	Scanner    *scanner.Scanner
	Ledger     *ledger.Ledger
	History    *db.History
	Cache      catalog.Cache
	Catalog    *catalog.Client // nil without an API key
	Transfer   *downloads.HTTPTransfer
	Correlator *downloads.Correlator

	closers []func() error
}

// bootstrap handles shared initialization logic for commands.
func bootstrap(path string) (*App, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	if err := logger.InitLogger(cfg.LogFile, level); err != nil {
		return nil, err
	}
	log := logger.Log

	app := &App{Cfg: cfg}

	reader, err := archive.New(cfg.ArchiveStrategy, archive.CmdRunner{}, logger.Named("archive"))
	if err != nil {
		return nil, err
	}
	app.Scanner = scanner.New(reader, cfg.PreviewDir, logger.Named("scanner"))
	app.Scanner.MaxItemPreviews = cfg.MaxItemPreviews
	app.Scanner.MaxAssetPreviews = cfg.MaxAssetPreviews

	app.Ledger = ledger.New(cfg.LedgerPath, logger.Named("ledger"))

	history, err := db.Open(cfg.DatabasePath, logger.Named("db"))
	if err != nil {
		return nil, err
	}
	app.History = history
	app.closers = append(app.closers, history.Close)
	log.Infow("Database initialized", zap.String("path", cfg.DatabasePath))

	app.Cache = newCatalogCache(cfg, log)
	if rc, ok := app.Cache.(*catalog.RedisCache); ok {
		app.closers = append(app.closers, rc.Close)
	}

	if cfg.RequireAPIKey() == nil {
		client, err := catalog.NewClient(cfg, app.Cache, logger.Named("catalog"))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to create catalog client: %w", err)
		}
		app.Catalog = client
	} else {
		log.Infow("No catalog API key, catalog commands are disabled")
	}

	app.Transfer = downloads.NewHTTPTransfer(cfg.ModsDir, cfg.UserAgent, logger.Named("transfer"))
	var cat downloads.Catalog
	if app.Catalog != nil {
		cat = app.Catalog
	}
	app.Correlator = downloads.NewCorrelator(cfg.ModsDir, app.Transfer, cat, app.Ledger, app.History, logger.Named("downloads"))

	app.Ledger.Resync()
	return app, nil
}

// newCatalogCache prefers Redis when REDIS_URL is set and falls back to memory.
func newCatalogCache(cfg config.Config, log *zap.SugaredLogger) catalog.Cache {
	if cfg.RedisURL != "" {
		rc, err := catalog.NewRedisCacheFromURL(cfg.RedisURL, cfg.CatalogCacheTTL)
		if err == nil {
			log.Infow("Using Redis catalog cache", zap.Duration("ttl", cfg.CatalogCacheTTL))
			return rc
		}
		log.Warnw("Invalid REDIS_URL, using in-memory catalog cache", zap.Error(err))
	}
	return catalog.NewMemoryCache(cfg.CatalogCacheTTL)
}

// requireCatalog returns the catalog client or the reason there is none.
func (a *App) requireCatalog() (*catalog.Client, error) {
	if a.Catalog == nil {
		if err := a.Cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		return nil, errors.New("catalog client is not available")
	}
	return a.Catalog, nil
}

// Close waits for running downloads and releases open resources.
func (a *App) Close() {
	if a.Transfer != nil {
		a.Transfer.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Log.Warnw("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
