package persist

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// schema returns the embedded migration files rooted at their directory.
func schema() (fs.FS, error) {
	return fs.Sub(migrations, "migrations")
}

// Migrate applies the pending var store migrations embedded in the binary
// and returns the schema version it left the database at.
func (db *DB) Migrate(ctx context.Context) (int64, error) {
	fsys, err := schema()
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(db.Pool), fsys)
	if err != nil {
		return 0, fmt.Errorf("migrations: %w", err)
	}
	defer p.Close()

	results, err := p.Up(ctx)
	for _, r := range results {
		db.log.Info("migration applied",
			zap.String("file", r.Source.Path),
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	return p.GetDBVersion(ctx)
}
