package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-agent/internal/types"
)

// Put stores the pending job for key, replacing any previous one
func (db *DB) Put(ctx context.Context, key string, job types.PendingJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal pending job: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO pending_jobs (owner_key, payload)
		 VALUES ($1, $2)
		 ON CONFLICT (owner_key) DO UPDATE SET payload = $2, created_at = NOW()`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending job: %w", err)
	}
	return nil
}

// Read returns the pending job for key, or nil when there is none
func (db *DB) Read(ctx context.Context, key string) (*types.PendingJob, error) {
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT payload FROM pending_jobs WHERE owner_key = $1`,
		key,
	).Scan(&payload)
	return decodePending(payload, err, "read")
}

// Take deletes the pending job for key and returns it, or nil when there is
// none. The single DELETE ... RETURNING lets only one caller win the row.
func (db *DB) Take(ctx context.Context, key string) (*types.PendingJob, error) {
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`DELETE FROM pending_jobs WHERE owner_key = $1 RETURNING payload`,
		key,
	).Scan(&payload)
	return decodePending(payload, err, "take")
}

func decodePending(payload []byte, err error, op string) (*types.PendingJob, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to %s pending job: %w", op, err)
	}

	var job types.PendingJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending job: %w", err)
	}
	return &job, nil
}
