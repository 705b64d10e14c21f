package crocolake

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/sirupsen/logrus"

	"github.com/crocolake/go-crocolake/catalog"
	"github.com/crocolake/go-crocolake/engine"
	"github.com/crocolake/go-crocolake/filter"
	crocoio "github.com/crocolake/go-crocolake/io"
)

// Loader loads a CrocoLake database variant into a lazy tabular view.
//
// A Loader is created once, optionally re-filtered via SetFilters, and
// derived from via GetDataframe. It holds no other mutable state: calling
// GetDataframe after different SetFilters calls yields independent handles
// reflecting the most recent specification.
type Loader struct {
	typ       DatabaseType
	rootPath  string
	typedRoot string
	cat       *catalog.Catalog
	fio       crocoio.FileIO
	eng       engine.Engine
	log       *logrus.Logger

	variables []string
	sources   []engine.Source
	filters   filter.Spec
}

// NewLoader creates a Loader and eagerly validates its parameters: the
// database type, the root path, every selected variable against the
// catalog, and every selected source against the registry and the disk.
func NewLoader(ctx context.Context, opts ...Option) (*Loader, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.Type.Valid() {
		return nil, fmt.Errorf("%w: database type must be %s or %s, got %q",
			ErrInvalidConfig, PHY, BGC, cfg.Type)
	}
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("%w: root path is required", ErrInvalidConfig)
	}

	fio := cfg.FileIO
	if fio == nil {
		if cfg.S3Config != nil {
			s3fio, err := crocoio.NewS3FileIO(ctx, cfg.S3Config)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			fio = s3fio
		} else {
			fio = crocoio.NewLocalFileIO()
		}
	}

	l := &Loader{
		typ:      cfg.Type,
		rootPath: cfg.RootPath,
		cat:      cfg.Catalog,
		fio:      fio,
		log:      cfg.Logger,
	}

	if ok, err := fio.Exists(ctx, cfg.RootPath); err != nil {
		return nil, err
	} else if !ok {
		return nil, &PathNotFoundError{Path: cfg.RootPath}
	}

	l.typedRoot = fio.Join(cfg.RootPath, cfg.Type.DirName())
	if ok, err := fio.Exists(ctx, l.typedRoot); err != nil {
		return nil, err
	} else if !ok {
		return nil, &PathNotFoundError{Path: l.typedRoot}
	}
	l.log.Infof("looking for %s data in %s", l.typ, l.typedRoot)

	vars, err := l.expandVariables(cfg.Variables)
	if err != nil {
		return nil, err
	}
	l.variables = vars

	sources, err := l.resolveSources(ctx, cfg.Sources)
	if err != nil {
		return nil, err
	}
	l.sources = sources

	if l.eng = cfg.Engine; l.eng == nil {
		units := make(map[string]string)
		for _, name := range l.cat.VariablesFor(l.typ) {
			units[name] = l.cat.Unit(name)
		}
		l.eng = engine.NewParquet(fio,
			engine.WithLogger(l.log),
			engine.WithUnits(units),
		)
	}

	if len(cfg.Variables) > 0 {
		if err := l.checkVariablesStored(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Filters != nil {
		if err := l.SetFilters(cfg.Filters); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// checkVariablesStored verifies every selected variable against the union
// of the resolved sources' stored schemas, so a selection cannot silently
// vanish from the materialized schema. DB_NAME is synthesized at read time
// and always available. Only explicit selections are checked; selecting
// everything means everything the sources have.
func (l *Loader) checkVariablesStored(ctx context.Context) error {
	stored := map[string]bool{engine.DBNameColumn: true}
	for _, src := range l.sources {
		schema, err := l.eng.SourceSchema(ctx, src.Path)
		if err != nil {
			return err
		}
		for _, f := range schema.Fields() {
			stored[f.Name] = true
		}
	}

	var missing []string
	for _, name := range l.variables {
		if !stored[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &VariableNotStoredError{Variables: missing}
	}
	return nil
}

// expandVariables validates the selection against the catalog and unions
// in the mandatory identifier columns. An empty selection means every
// variable the catalog lists for the type.
func (l *Loader) expandVariables(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return l.cat.VariablesFor(l.typ), nil
	}

	var unknown []string
	for _, name := range requested {
		if !l.cat.HasVariable(name, l.typ) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownVariableError{Variables: unknown}
	}

	selected := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		if !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}
	for _, name := range l.cat.MandatoryFor(l.typ) {
		if !seen[name] {
			seen[name] = true
			selected = append(selected, name)
		}
	}
	return selected, nil
}

// resolveSources maps the selection to on-disk sub-directories. Sources are
// located by their codename inside the sub-directory name
// (<id>_<TYPE>_<CODENAME>-<variant>_<date>). A selection naming a source
// absent from the registry fails with UnknownSource; naming one with no
// data under the root fails with MissingSourceData. With no selection,
// absent sources are skipped with a warning, the way a PHY-only source is
// simply not there in a BGC tree.
func (l *Loader) resolveSources(ctx context.Context, requested []string) ([]engine.Source, error) {
	explicit := len(requested) > 0
	names := requested
	if !explicit {
		names = l.cat.SourcesFor(l.typ)
	}

	var unknown []string
	for _, name := range names {
		if _, ok := l.cat.Source(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownSourceError{Sources: unknown}
	}

	dirs, err := l.fio.ListDirs(ctx, l.typedRoot)
	if err != nil {
		return nil, err
	}

	var sources []engine.Source
	for _, name := range names {
		src, _ := l.cat.Source(name)
		pattern := l.fio.Join(l.typedRoot, "*"+src.Codename+"*")

		var matches []string
		for _, dir := range dirs {
			if strings.Contains(path.Base(strings.ReplaceAll(dir, "\\", "/")), src.Codename) {
				matches = append(matches, dir)
			}
		}

		switch {
		case len(matches) > 1:
			return nil, &AmbiguousSourceError{Source: name, Paths: matches}
		case len(matches) == 0 && explicit:
			return nil, &MissingSourceDataError{Source: name, Pattern: pattern}
		case len(matches) == 0:
			l.log.Warnf("no data for source %s in %s, skipping it", name, l.typedRoot)
		default:
			l.log.Infof("found source %s at %s", name, matches[0])
			sources = append(sources, engine.Source{Name: name, Path: matches[0]})
		}
	}

	if len(sources) == 0 {
		return nil, &MissingSourceDataError{Pattern: l.typedRoot}
	}
	return sources, nil
}

// SetFilters replaces the current filter specification wholesale. Every
// referenced column must be a catalog variable for the chosen type;
// operator/value compatibility against the stored data is deferred to the
// engine at materialization time. A nil spec clears all row filtering.
func (l *Loader) SetFilters(spec filter.Spec) error {
	if spec == nil {
		l.filters = nil
		return nil
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var unknown []string
	for _, col := range spec.Columns() {
		if !l.cat.HasVariable(col, l.typ) {
			unknown = append(unknown, col)
		}
	}
	if len(unknown) > 0 {
		return &UnknownVariableError{Variables: unknown}
	}

	l.filters = spec.Clone()
	return nil
}

// SetFiltersKeepOnly replaces the filter specification and additionally
// restricts the selected variables to the columns the filters reference.
// Mandatory identifier columns stay selected. A nil spec only clears the
// filters; the variable selection is left alone.
func (l *Loader) SetFiltersKeepOnly(spec filter.Spec) error {
	if spec == nil {
		return l.SetFilters(nil)
	}
	if err := l.SetFilters(spec); err != nil {
		return err
	}

	wanted := make(map[string]bool)
	for _, col := range l.filters.Columns() {
		wanted[col] = true
	}
	for _, name := range l.cat.MandatoryFor(l.typ) {
		wanted[name] = true
	}

	var kept []string
	for _, name := range l.variables {
		if wanted[name] {
			kept = append(kept, name)
		}
	}
	l.variables = kept
	return nil
}

// GetDataframe produces the lazy dataset handle covering all resolved
// sources, with column projection and the current filter specification
// pushed down to the reader. No row data is read; the caller materializes
// via Dataset.Collect. Engine failures propagate unmodified.
func (l *Loader) GetDataframe(ctx context.Context) (*Dataset, error) {
	frames := make([]engine.Frame, 0, len(l.sources))
	names := make([]string, 0, len(l.sources))
	for _, src := range l.sources {
		frame, err := l.eng.Open(ctx, src, l.variables, l.filters)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
		names = append(names, src.Name)
	}

	frame, err := l.eng.Concat(frames...)
	if err != nil {
		return nil, err
	}

	return newDataset(frame, names, l.log), nil
}

// Schema returns the schema a dataset built from this loader materializes
// to: the union, across resolved sources, of the selected columns. Only
// schema metadata is read.
func (l *Loader) Schema(ctx context.Context) (*arrow.Schema, error) {
	ds, err := l.GetDataframe(ctx)
	if err != nil {
		return nil, err
	}
	return ds.Schema(ctx)
}

// Variables returns the selected variables, mandatory columns included.
func (l *Loader) Variables() []string {
	out := make([]string, len(l.variables))
	copy(out, l.variables)
	return out
}

// Sources returns the names of the resolved sources.
func (l *Loader) Sources() []string {
	out := make([]string, 0, len(l.sources))
	for _, src := range l.sources {
		out = append(out, src.Name)
	}
	return out
}

// DatabaseType returns the database variant this loader reads.
func (l *Loader) DatabaseType() DatabaseType {
	return l.typ
}

// Filters returns a copy of the current filter specification.
func (l *Loader) Filters() filter.Spec {
	return l.filters.Clone()
}
