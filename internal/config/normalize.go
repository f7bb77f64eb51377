package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeNormalization(); err != nil {
		return err
	}
	c.normalizeExtraction()
	c.normalizeSeries()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ArchiveDir, err = expandPath(strings.TrimSpace(c.Paths.ArchiveDir)); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if c.Paths.PreparedDir, err = expandPath(strings.TrimSpace(c.Paths.PreparedDir)); err != nil {
		return fmt.Errorf("paths.prepared_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(strings.TrimSpace(c.Paths.ScratchDir)); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Catalog.Enabled && strings.TrimSpace(c.Catalog.Path) == "" {
		c.Catalog.Path = defaultCatalogPath
	}
	if c.Catalog.Path, err = expandPath(strings.TrimSpace(c.Catalog.Path)); err != nil {
		return fmt.Errorf("catalog.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNormalization() error {
	table := strings.TrimSpace(c.Normalization.RotationTable)
	if table == "" {
		if value, ok := os.LookupEnv(rotationTableEnv); ok {
			table = strings.TrimSpace(value)
		}
	}
	expanded, err := expandPath(table)
	if err != nil {
		return fmt.Errorf("normalization.rotation_table: %w", err)
	}
	c.Normalization.RotationTable = expanded
	return nil
}

func (c *Config) normalizeExtraction() {
	c.Extraction.ShardPattern = strings.TrimSpace(c.Extraction.ShardPattern)
	if c.Extraction.ShardPattern == "" {
		c.Extraction.ShardPattern = defaultShardPattern
	}
	c.Extraction.OnShardError = strings.ToLower(strings.TrimSpace(c.Extraction.OnShardError))
	if c.Extraction.OnShardError == "" {
		c.Extraction.OnShardError = ShardErrorSkip
	}
}

func (c *Config) normalizeSeries() {
	if len(c.Series.TagOverrides) == 0 {
		return
	}
	overrides := make(map[string]string, len(c.Series.TagOverrides))
	for code, keyword := range c.Series.TagOverrides {
		code = strings.ToUpper(strings.TrimSpace(code))
		keyword = strings.TrimSpace(keyword)
		if code == "" || keyword == "" {
			continue
		}
		overrides[code] = keyword
	}
	c.Series.TagOverrides = overrides
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
