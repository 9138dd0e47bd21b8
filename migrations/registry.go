package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	integrations "github.com/goliatone/go-integrations"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-integrations"

	embeddedRoot = "data/sql/migrations"
	upSuffix     = ".up.sql"
	downSuffix   = ".down.sql"
)

// Tree is the migration directory for one SQL dialect.
type Tree struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration records what Register handed to the persistence layer.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Trees             []Tree
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.SourceLabel = label
		}
	}
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(targets); len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

// WithTrees replaces the embedded credential schema. Trees without a dialect
// or filesystem are skipped.
func WithTrees(trees ...Tree) Option {
	return func(r *Registration) {
		var next []Tree
		for _, tree := range trees {
			tree.Dialect = normalizeDialect(tree.Dialect)
			if tree.Dialect == "" || tree.FS == nil {
				continue
			}
			next = append(next, tree)
		}
		if len(next) > 0 {
			r.Trees = next
		}
	}
}

// Filesystems resolves the postgres and sqlite credential schema. The first
// non-nil source overrides the embedded tree. A source may hold
// data/sql/migrations or be that directory itself; sqlite files live in a
// sqlite subdirectory either way. Every up migration needs a down pair.
func Filesystems(sources ...fs.FS) ([]Tree, error) {
	var root fs.FS = integrations.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	postgres, err := locateRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(postgres.FS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: open sqlite tree: %w", err)
	}
	sqlite := Tree{Dialect: DialectSQLite, Path: path.Join(postgres.Path, "sqlite"), FS: sqliteFS}

	trees := []Tree{postgres, sqlite}
	for _, tree := range trees {
		if err := checkPairs(tree); err != nil {
			return nil, err
		}
	}
	return trees, nil
}

// Register hands each tree selected by the validation targets to registerFn,
// usually a persistence client's RegisterSQLMigrations.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       DefaultSourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	trees, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Trees = trees

	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.ValidationTargets) == 0 || len(reg.Trees) == 0 {
		return reg, fmt.Errorf("migrations: nothing to register")
	}

	for _, tree := range reg.Trees {
		if !slices.Contains(reg.ValidationTargets, tree.Dialect) {
			continue
		}
		if err := registerFn(ctx, tree.Dialect, reg.SourceLabel, tree.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s tree %s: %w", tree.Dialect, tree.Path, err)
		}
	}
	return reg, nil
}

func locateRoot(root fs.FS) (Tree, error) {
	if info, err := fs.Stat(root, embeddedRoot); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, embeddedRoot)
		if err != nil {
			return Tree{}, fmt.Errorf("migrations: open %s: %w", embeddedRoot, err)
		}
		return Tree{Dialect: DialectPostgres, Path: embeddedRoot, FS: sub}, nil
	}
	if ups, _ := fs.Glob(root, "*"+upSuffix); len(ups) > 0 {
		return Tree{Dialect: DialectPostgres, Path: ".", FS: root}, nil
	}
	return Tree{}, fmt.Errorf("migrations: no %s directory or up migrations in source", embeddedRoot)
}

// checkPairs requires at least one up migration and a down file for each.
func checkPairs(tree Tree) error {
	ups, err := fs.Glob(tree.FS, "*"+upSuffix)
	if err != nil {
		return fmt.Errorf("migrations: list %s tree %s: %w", tree.Dialect, tree.Path, err)
	}
	if len(ups) == 0 {
		return fmt.Errorf("migrations: %s tree %q has no up migrations", tree.Dialect, tree.Path)
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, upSuffix) + downSuffix
		if _, err := fs.Stat(tree.FS, down); err != nil {
			return fmt.Errorf("migrations: %s tree %q is missing %s", tree.Dialect, tree.Path, down)
		}
	}
	return nil
}

func normalizeDialect(dialect string) string {
	return strings.ToLower(strings.TrimSpace(dialect))
}

func normalizeDialects(dialects []string) []string {
	var out []string
	for _, dialect := range dialects {
		if dialect = normalizeDialect(dialect); dialect != "" && !slices.Contains(out, dialect) {
			out = append(out, dialect)
		}
	}
	return out
}
