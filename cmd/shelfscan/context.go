package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"shelfscan/internal/catalog"
	"shelfscan/internal/config"
	"shelfscan/internal/detect"
	"shelfscan/internal/logging"
	"shelfscan/internal/pipeline"
	"shelfscan/internal/services"
	"shelfscan/internal/store"
	"shelfscan/internal/vision"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the workspace store for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

// withLockedPipeline builds the full pipeline behind the workspace lock so
// two processes never drive the same database concurrently.
func (c *commandContext) withLockedPipeline(needDetector bool, fn func(*config.Config, *store.Store, *pipeline.Pipeline, *slog.Logger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !locked {
		return errors.New("another shelfscan process is already running against this workspace")
	}
	defer func() { _ = lock.Unlock() }()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	p, err := buildPipeline(cfg, st, logger, needDetector)
	if err != nil {
		return err
	}
	return fn(cfg, st, p, logger)
}

func buildPipeline(cfg *config.Config, st *store.Store, logger *slog.Logger, needDetector bool) (*pipeline.Pipeline, error) {
	deps := pipeline.Deps{
		Vision: vision.NewClient(vision.Config{
			APIKey:         cfg.Vision.APIKey,
			BaseURL:        cfg.Vision.BaseURL,
			Model:          cfg.Vision.Model,
			TimeoutSeconds: cfg.Vision.TimeoutSeconds,
			RetryAttempts:  cfg.Vision.RetryAttempts,
		}),
	}

	retry := services.DefaultRetryPolicy()
	if cfg.Catalog.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Catalog.RetryAttempts
	}
	searcher, err := catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.APISecret, cfg.Catalog.MaxResults,
		catalog.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Catalog.TimeoutSeconds) * time.Second}),
		catalog.WithRetryPolicy(retry),
		catalog.WithMinRequestInterval(time.Duration(cfg.Catalog.MinRequestIntervalMS)*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("configure catalog client: %w", err)
	}
	deps.Catalog = searcher

	if needDetector {
		detector, err := detect.NewClient(cfg.Detector.BaseURL, cfg.Detector.APIKey,
			time.Duration(cfg.Detector.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("configure detector client: %w", err)
		}
		deps.Detector = detector
	}

	return pipeline.New(cfg, st, deps, logger, pipeline.WithSink(pipeline.NewLogSink(logger)))
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
