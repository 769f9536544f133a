package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shubh-37/social-autoreply/internal/models"
)

// LogRepository stores per-account pipeline narration shown to operators
type LogRepository struct {
	db *DB
}

func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

// Log appends one entry
func (r *LogRepository) Log(ctx context.Context, entry models.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO pipeline_logs (id, account_id, level, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool.Exec(ctx, query, entry.ID, entry.AccountID, string(entry.Level), entry.Message, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries for an account
func (r *LogRepository) Recent(ctx context.Context, accountID string, limit int) ([]*models.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, level, message, created_at
		FROM pipeline_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		e := &models.LogEntry{}
		var level string
		if err := rows.Scan(&e.ID, &e.AccountID, &level, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Level = models.LogLevel(level)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	return entries, nil
}

// DeleteBefore drops entries older than cutoff across all accounts
func (r *LogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM pipeline_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
