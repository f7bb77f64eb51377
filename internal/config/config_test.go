package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bimcvprep/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BIMCVPREP_ROTATION_TABLE", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantScratch := filepath.Join(tempHome, ".cache", "bimcvprep", "scratch")
	if cfg.Paths.ScratchDir != wantScratch {
		t.Fatalf("unexpected scratch dir: got %q want %q", cfg.Paths.ScratchDir, wantScratch)
	}
	wantPrepared := filepath.Join(tempHome, "data", "bimcv-covid19", "prepared")
	if cfg.Paths.PreparedDir != wantPrepared {
		t.Fatalf("unexpected prepared dir: got %q want %q", cfg.Paths.PreparedDir, wantPrepared)
	}
	if cfg.Extraction.ShardPattern != "*part*.tar.gz" {
		t.Fatalf("unexpected shard pattern: %q", cfg.Extraction.ShardPattern)
	}
	if cfg.Extraction.OnShardError != config.ShardErrorSkip {
		t.Fatalf("expected skip policy by default, got %q", cfg.Extraction.OnShardError)
	}
	if !cfg.Normalization.RotateCT || !cfg.Normalization.TrimCT {
		t.Fatal("expected CT rotation and trimming enabled by default")
	}
	if cfg.Normalization.RotationTable != "" {
		t.Fatalf("expected no rotation table by default, got %q", cfg.Normalization.RotationTable)
	}
	if !cfg.Series.SkipColorStills {
		t.Fatal("expected color stills skipped by default")
	}
	if !cfg.Catalog.Enabled {
		t.Fatal("expected catalog enabled by default")
	}
	if cfg.Logging.Format != "auto" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BIMCVPREP_ROTATION_TABLE", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := struct {
		Paths struct {
			ArchiveDir  string `toml:"archive_dir"`
			PreparedDir string `toml:"prepared_dir"`
		} `toml:"paths"`
		Extraction struct {
			OnShardError string `toml:"on_shard_error"`
		} `toml:"extraction"`
		Series struct {
			TagOverrides map[string]string `toml:"tag_overrides"`
		} `toml:"series"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}{}
	payload.Paths.ArchiveDir = "~/shards"
	payload.Paths.PreparedDir = "~/out"
	payload.Extraction.OnShardError = " ABORT "
	payload.Series.TagOverrides = map[string]string{"00091001": " VendorCreator ", "": "x"}
	payload.Logging.Format = "JSON"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.ArchiveDir != filepath.Join(tempHome, "shards") {
		t.Fatalf("unexpected archive dir: %q", cfg.Paths.ArchiveDir)
	}
	if cfg.Paths.PreparedDir != filepath.Join(tempHome, "out") {
		t.Fatalf("unexpected prepared dir: %q", cfg.Paths.PreparedDir)
	}
	if cfg.Extraction.OnShardError != config.ShardErrorAbort {
		t.Fatalf("expected abort policy, got %q", cfg.Extraction.OnShardError)
	}
	if got := cfg.Series.TagOverrides["00091001"]; got != "VendorCreator" {
		t.Fatalf("unexpected tag override: %q", got)
	}
	if len(cfg.Series.TagOverrides) != 1 {
		t.Fatalf("expected blank override dropped, got %v", cfg.Series.TagOverrides)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercase format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRotationTableFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	table := filepath.Join(t.TempDir(), "rotations.csv")
	t.Setenv("BIMCVPREP_ROTATION_TABLE", table)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\narchive_dir = \"/tmp/a\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Normalization.RotationTable != table {
		t.Fatalf("expected rotation table from env, got %q", cfg.Normalization.RotationTable)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nlibrary_dir = \"/x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"shard policy", func(c *config.Config) { c.Extraction.OnShardError = "retry" }, "on_shard_error"},
		{"same dirs", func(c *config.Config) { c.Paths.PreparedDir = c.Paths.ArchiveDir }, "must differ"},
		{"scratch inside prepared", func(c *config.Config) { c.Paths.ScratchDir = filepath.Join(c.Paths.PreparedDir, "tmp") }, "scratch_dir"},
		{"bad pattern", func(c *config.Config) { c.Extraction.ShardPattern = "[" }, "shard_pattern"},
		{"stale hours", func(c *config.Config) { c.Scratch.StaleAfterHours = -1 }, "stale_after_hours"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.ArchiveDir = "/data/archive"
			cfg.Paths.PreparedDir = "/data/prepared"
			cfg.Paths.ScratchDir = "/tmp/scratch"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BIMCVPREP_ROTATION_TABLE", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Scratch.StaleAfterHours != 24 {
		t.Fatalf("unexpected stale hours: %d", cfg.Scratch.StaleAfterHours)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Paths.PreparedDir = filepath.Join(base, "prepared")
	cfg.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Catalog.Path = filepath.Join(base, "state", "catalog.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.PreparedDir, cfg.Paths.ScratchDir, cfg.Paths.LogDir, filepath.Dir(cfg.Catalog.Path)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if _, err := os.Stat(cfg.Paths.ArchiveDir); !os.IsNotExist(err) {
		t.Fatal("archive dir must not be created")
	}
}
