package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateScratch(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.ArchiveDir == "" {
		return errors.New("paths.archive_dir must be set")
	}
	if c.Paths.PreparedDir == "" {
		return errors.New("paths.prepared_dir must be set")
	}
	if c.Paths.PreparedDir == c.Paths.ArchiveDir {
		return errors.New("paths.prepared_dir must differ from paths.archive_dir")
	}
	if within(c.Paths.ScratchDir, c.Paths.PreparedDir) {
		return fmt.Errorf("paths.scratch_dir %q must not live inside paths.prepared_dir", c.Paths.ScratchDir)
	}
	return nil
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (c *Config) validateExtraction() error {
	switch c.Extraction.OnShardError {
	case ShardErrorSkip, ShardErrorAbort:
	default:
		return fmt.Errorf("extraction.on_shard_error must be %q or %q, got %q", ShardErrorSkip, ShardErrorAbort, c.Extraction.OnShardError)
	}
	if _, err := filepath.Match(c.Extraction.ShardPattern, "probe"); err != nil {
		return fmt.Errorf("extraction.shard_pattern: %w", err)
	}
	return nil
}

func (c *Config) validateScratch() error {
	if c.Scratch.StaleAfterHours < 0 {
		return errors.New("scratch.stale_after_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
