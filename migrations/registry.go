package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strconv"
	"strings"

	strm "github.com/goliatone/go-strm"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-strm"

	rootPath   = "data/sql/migrations"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Migration is one versioned schema step. Both directions are always present.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// DialectSchema is the migration tree of one database dialect.
type DialectSchema struct {
	Dialect    string
	Path       string
	FS         fs.FS
	Migrations []Migration
}

func (s DialectSchema) Versions() []int {
	out := make([]int, 0, len(s.Migrations))
	for _, migration := range s.Migrations {
		out = append(out, migration.Version)
	}
	return out
}

type ApplyFunc func(ctx context.Context, schema DialectSchema) error

type Option func(*registerOptions)

type registerOptions struct {
	root     fs.FS
	dialects []string
}

// WithRoot reads migrations from root instead of the embedded tree.
func WithRoot(root fs.FS) Option {
	return func(o *registerOptions) {
		if root != nil {
			o.root = root
		}
	}
}

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(o *registerOptions) {
		next := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			trimmed := strings.TrimSpace(strings.ToLower(dialect))
			if trimmed == "" || slices.Contains(next, trimmed) {
				continue
			}
			next = append(next, trimmed)
		}
		if len(next) > 0 {
			o.dialects = next
		}
	}
}

// Load returns the postgres tree and its sqlite alternative. A nil root reads
// the embedded migrations. Both trees must carry the same versions.
func Load(root fs.FS) ([]DialectSchema, error) {
	if root == nil {
		root = strm.GetMigrationsFS()
	}
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}

	schemas := []DialectSchema{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/" + DialectSQLite, FS: sqliteFS},
	}
	for i := range schemas {
		catalog, err := Catalog(schemas[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s: %w", schemas[i].Dialect, err)
		}
		if len(catalog) == 0 {
			return nil, fmt.Errorf("migrations: %s tree %q has no migrations", schemas[i].Dialect, schemas[i].Path)
		}
		schemas[i].Migrations = catalog
	}
	if !slices.Equal(schemas[0].Versions(), schemas[1].Versions()) {
		return nil, fmt.Errorf("migrations: postgres versions %v and sqlite versions %v differ",
			schemas[0].Versions(), schemas[1].Versions())
	}
	return schemas, nil
}

// Catalog lists the NNNNN_name.up.sql / NNNNN_name.down.sql pairs at the top
// level of fsys, ordered by version.
func Catalog(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()
		var stem string
		var up bool
		switch {
		case strings.HasSuffix(filename, upSuffix):
			stem, up = strings.TrimSuffix(filename, upSuffix), true
		case strings.HasSuffix(filename, downSuffix):
			stem = strings.TrimSuffix(filename, downSuffix)
		default:
			continue
		}
		version, name, err := parseStem(stem)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		migration, ok := byVersion[version]
		if !ok {
			migration = &Migration{Version: version, Name: name}
			byVersion[version] = migration
		}
		if migration.Name != name {
			return nil, fmt.Errorf("version %d is used by %q and %q", version, migration.Name, name)
		}
		if up {
			migration.Up = filename
		} else {
			migration.Down = filename
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, migration := range byVersion {
		if migration.Up == "" || migration.Down == "" {
			return nil, fmt.Errorf("version %d (%s) needs both up and down files", migration.Version, migration.Name)
		}
		out = append(out, *migration)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Register hands every selected dialect tree to apply, postgres first.
func Register(ctx context.Context, apply ApplyFunc, opts ...Option) ([]DialectSchema, error) {
	if apply == nil {
		return nil, fmt.Errorf("migrations: apply function is required")
	}
	options := registerOptions{dialects: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	schemas, err := Load(options.root)
	if err != nil {
		return nil, err
	}
	selected := make([]DialectSchema, 0, len(schemas))
	for _, schema := range schemas {
		if !slices.Contains(options.dialects, schema.Dialect) {
			continue
		}
		if err := apply(ctx, schema); err != nil {
			return selected, fmt.Errorf("migrations: register %s (%s): %w", schema.Dialect, schema.Path, err)
		}
		selected = append(selected, schema)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("migrations: no tree matches dialects %v", options.dialects)
	}
	return selected, nil
}

func parseStem(stem string) (int, string, error) {
	prefix, name, ok := strings.Cut(stem, "_")
	if !ok || strings.TrimSpace(name) == "" {
		return 0, "", fmt.Errorf("expected <version>_<name>")
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("invalid version %q", prefix)
	}
	return version, name, nil
}
