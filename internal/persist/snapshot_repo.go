package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SnapshotRepo is the database-backed Store. Each slot keeps its latest
// snapshot; older rows are retained for point-in-time recovery.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) Save(ctx context.Context, slot string, data []byte) error {
	if _, err := r.db.Pool.Exec(ctx,
		`INSERT INTO snapshots (slot, data) VALUES ($1, $2)`,
		slot, data,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) Load(ctx context.Context, slot string) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data FROM snapshots WHERE slot = $1 ORDER BY created_at DESC LIMIT 1`,
		slot,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// Prune deletes all but the newest keep snapshots per slot.
func (r *SnapshotRepo) Prune(ctx context.Context, slot string, keep int) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots
		 WHERE slot = $1 AND id NOT IN (
		   SELECT id FROM snapshots WHERE slot = $1 ORDER BY created_at DESC LIMIT $2
		 )`,
		slot, keep,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
