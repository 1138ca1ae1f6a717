package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nyengine/nyengine/internal/vars"
	"go.uber.org/zap"
)

type VarRow struct {
	Name      string
	Value     string
	UpdatedAt time.Time
}

type VarRepo struct {
	db *DB
}

func NewVarRepo(db *DB) *VarRepo {
	return &VarRepo{db: db}
}

func (r *VarRepo) LoadAll(ctx context.Context) ([]VarRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, value, updated_at FROM vars ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (VarRow, error) {
		var v VarRow
		err := row.Scan(&v.Name, &v.Value, &v.UpdatedAt)
		return v, err
	})
}

// SaveModified upserts every modified var and appends the batch to
// var_history in one transaction.
func (r *VarRepo) SaveModified(ctx context.Context, level string, vs []*vars.Var) error {
	if len(vs) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save vars begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, v := range vs {
		batch.Queue(
			`INSERT INTO vars (name, value, updated_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			v.Name(), v.String(),
		)
		batch.Queue(
			`INSERT INTO var_history (name, value, level) VALUES ($1, $2, $3)`,
			v.Name(), v.String(), level,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save vars: %w", err)
	}
	return tx.Commit(ctx)
}

// Delete removes the stored value of name, so the next start uses its
// default. History rows are kept.
func (r *VarRepo) Delete(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM vars WHERE name = $1`, name)
	return err
}

// RestoreVars applies saved rows to reg. NoLoad vars are skipped with a
// warning; any other failure aborts.
func RestoreVars(reg *vars.Registry, rows []VarRow, log *zap.Logger) (int, error) {
	n := 0
	for _, row := range rows {
		err := reg.Restore(row.Name, row.Value)
		switch {
		case errors.Is(err, vars.ErrNoLoad), errors.Is(err, vars.ErrReadOnly):
			log.Warn("saved var ignored", zap.String("var", row.Name), zap.Error(err))
		case err != nil:
			return n, fmt.Errorf("restore var %s: %w", row.Name, err)
		default:
			n++
		}
	}
	return n, nil
}
