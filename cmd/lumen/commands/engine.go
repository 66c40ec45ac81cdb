package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/arkologystudio/lumen/internal/config"
	"github.com/arkologystudio/lumen/internal/crawler"
	"github.com/arkologystudio/lumen/internal/diagnostics"
	"github.com/arkologystudio/lumen/internal/fetcher"
	"github.com/arkologystudio/lumen/internal/scanners"
	"github.com/arkologystudio/lumen/internal/storage"
	"github.com/arkologystudio/lumen/pkg/utils"
)

// engine bundles everything a command needs to run diagnostics. Close must be
// called when the command is done.
type engine struct {
	cfg          *config.Config
	service      *diagnostics.Service
	store        *storage.LocalStore
	sites        *storage.SiteDirectory
	entitlements *storage.StaticEntitlements
	metrics      *utils.MetricsCollector
}

func (e *engine) Close() {
	e.store.Close()
}

func buildEngine(runtimeMetrics bool) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logrus.StandardLogger()
	metrics := utils.NewMetricsCollector(runtimeMetrics)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	f := fetcher.New(limiter, metrics, logger)
	c := crawler.New(f, logger)
	registry := scanners.NewRegistry(metrics, logger)

	store, err := storage.NewLocalStore(cfg.DataDir, cfg.CacheTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	sites := storage.NewSiteDirectory()
	entitlements := storage.NewStaticEntitlements()

	service := diagnostics.NewService(c, f, registry, store, sites, entitlements, diagnostics.Config{
		CacheTTL:      cfg.CacheTTL,
		PageTimeout:   cfg.PageTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
		UserAgent:     cfg.UserAgent,
	}, metrics, logger)

	return &engine{
		cfg:          cfg,
		service:      service,
		store:        store,
		sites:        sites,
		entitlements: entitlements,
		metrics:      metrics,
	}, nil
}
