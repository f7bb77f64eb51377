package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bimcvprep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.PreparedDir = filepath.Join(base, "prepared")
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = ""
	cfgVal.Catalog.Path = filepath.Join(base, "state", "catalog.db")
	cfgVal.Logging.Format = "json"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRotationTable writes a rotation CSV with the given rows and points the
// config at it.
func WithRotationTable(rows map[string]string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "rotations.csv")
		content := "series_id,transform_type\n"
		for uid, variant := range rows {
			content += uid + "," + variant + "\n"
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			b.t.Fatalf("write rotation table: %v", err)
		}
		b.cfg.Normalization.RotationTable = path
	}
}

// WithShardErrorPolicy sets extraction.on_shard_error.
func WithShardErrorPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extraction.OnShardError = policy
	}
}

// WithoutCatalog disables the SQLite catalog.
func WithoutCatalog() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.Enabled = false
	}
}

// WithColorStills keeps RGB stills instead of skipping them.
func WithColorStills() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Series.SkipColorStills = false
	}
}
