package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Shard error policies.
const (
	ShardErrorSkip  = "skip"
	ShardErrorAbort = "abort"
)

// Paths contains directory configuration.
type Paths struct {
	// ArchiveDir holds the downloaded shard archives.
	ArchiveDir string `toml:"archive_dir"`
	// PreparedDir receives the canonical series/sessions/subjects layout.
	PreparedDir string `toml:"prepared_dir"`
	// ScratchDir hosts the process-private session subtrees.
	ScratchDir string `toml:"scratch_dir"`
	LogDir     string `toml:"log_dir"`
}

// Extraction controls how shards are discovered and how failures are treated.
type Extraction struct {
	ShardPattern string `toml:"shard_pattern"`
	// OnShardError is "skip" (log and continue with the next shard) or "abort".
	OnShardError string `toml:"on_shard_error"`
}

// Normalization controls the CT geometry corrections.
type Normalization struct {
	RotationTable string `toml:"rotation_table"`
	RotateCT      bool   `toml:"rotate_ct"`
	TrimCT        bool   `toml:"trim_ct"`
}

// Series controls which decoded series are written.
type Series struct {
	// SkipColorStills drops RGB still images, which in this dataset are
	// scanned report pages rather than radiographs.
	SkipColorStills bool `toml:"skip_color_stills"`
	// TagOverrides maps raw tag codes to keywords the DICOM dictionary lacks.
	TagOverrides map[string]string `toml:"tag_overrides"`
}

// Catalog configures the SQLite progress catalog.
type Catalog struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Scratch configures leftover cleanup in the scratch root.
type Scratch struct {
	StaleAfterHours int `toml:"stale_after_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bimcvprep.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Extraction    Extraction    `toml:"extraction"`
	Normalization Normalization `toml:"normalization"`
	Series        Series        `toml:"series"`
	Catalog       Catalog       `toml:"catalog"`
	Scratch       Scratch       `toml:"scratch"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("bimcvprep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a preparation run writes to.
// The archive directory is only read and is never created.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.PreparedDir, c.Paths.ScratchDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Catalog.Enabled && c.Catalog.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.Catalog.Path), 0o755); err != nil {
			return fmt.Errorf("create catalog directory: %w", err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}
