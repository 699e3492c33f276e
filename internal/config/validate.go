package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateVision(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validatePreFilter(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDetector() error {
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return errors.New("detector.confidence_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateVision() error {
	if c.Vision.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/shelfscan/config.toml"
		}
		return fmt.Errorf("vision.api_key is required. Set it in %s (create with 'shelfscan config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.BaseURL == "" {
		return errors.New("catalog.base_url must be set")
	}
	if c.Catalog.APIKey == "" || c.Catalog.APISecret == "" {
		return errors.New("catalog.api_key and catalog.api_secret must be set")
	}
	if c.Catalog.MaxResults > 200 {
		return errors.New("catalog.max_results must not exceed 200")
	}
	return nil
}

func (c *Config) validatePreFilter() error {
	if c.PreFilter.MinScore < 0 || c.PreFilter.MinScore > 1 {
		return errors.New("prefilter.min_score must be between 0 and 1")
	}
	if c.PreFilter.MaxCandidates > 50 {
		return errors.New("prefilter.max_candidates must not exceed 50")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers > 64 {
		return errors.New("pipeline.workers must not exceed 64")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
