package crocolake

import (
	"github.com/sirupsen/logrus"

	"github.com/crocolake/go-crocolake/catalog"
	"github.com/crocolake/go-crocolake/engine"
	"github.com/crocolake/go-crocolake/filter"
	crocoio "github.com/crocolake/go-crocolake/io"
)

// DatabaseType identifies a database variant. See catalog.DatabaseType.
type DatabaseType = catalog.DatabaseType

const (
	// PHY is the physical observation database.
	PHY = catalog.PHY
	// BGC is the biogeochemical observation database.
	BGC = catalog.BGC
)

// Config holds the loader configuration.
type Config struct {
	// Type selects the database variant.
	Type DatabaseType

	// RootPath is the directory (or S3 prefix) holding the CrocoLakePHY /
	// CrocoLakeBGC databases.
	RootPath string

	// Variables restricts the columns loaded; empty means every variable
	// the catalog lists for the chosen type.
	Variables []string

	// Sources restricts the source datasets read; empty means every
	// source present under the root for the chosen type.
	Sources []string

	// Filters is the initial row filter specification.
	Filters filter.Spec

	// Catalog supplies variable and source registries. Defaults to the
	// bundled CrocoLake catalog; tests inject minimal ones.
	Catalog *catalog.Catalog

	// FileIO overrides the storage backend. Defaults to the local
	// filesystem, or S3 when S3Config is set.
	FileIO crocoio.FileIO

	// S3Config, when set, reads the database from S3-compatible storage.
	S3Config *crocoio.S3Config

	// Engine overrides the columnar engine. Defaults to the Parquet
	// engine over FileIO.
	Engine engine.Engine

	// Logger receives read narration. Defaults to a discarding logger.
	Logger *logrus.Logger
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	log := logrus.New()
	log.SetOutput(discard{})
	return &Config{
		Type:    PHY,
		Catalog: catalog.Default(),
		Logger:  log,
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Option is a functional option for loader configuration.
type Option func(*Config)

// WithDatabaseType selects the database variant.
func WithDatabaseType(t DatabaseType) Option {
	return func(c *Config) {
		c.Type = t
	}
}

// WithRootPath sets the database root path.
func WithRootPath(path string) Option {
	return func(c *Config) {
		c.RootPath = path
	}
}

// WithVariables restricts the loaded columns.
func WithVariables(names ...string) Option {
	return func(c *Config) {
		c.Variables = names
	}
}

// WithSources restricts the source datasets read.
func WithSources(names ...string) Option {
	return func(c *Config) {
		c.Sources = names
	}
}

// WithFilters sets the initial filter specification.
func WithFilters(spec filter.Spec) Option {
	return func(c *Config) {
		c.Filters = spec
	}
}

// WithCatalog injects a variable/source catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Config) {
		c.Catalog = cat
	}
}

// WithFileIO sets the storage backend.
func WithFileIO(fio crocoio.FileIO) Option {
	return func(c *Config) {
		c.FileIO = fio
	}
}

// WithS3 reads the database from S3-compatible object storage.
func WithS3(cfg *crocoio.S3Config) Option {
	return func(c *Config) {
		c.S3Config = cfg
	}
}

// WithEngine sets the columnar engine.
func WithEngine(eng engine.Engine) Option {
	return func(c *Config) {
		c.Engine = eng
	}
}

// WithLogger sets the logger for read narration.
func WithLogger(log *logrus.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}
