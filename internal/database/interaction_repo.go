package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shubh-37/social-autoreply/internal/models"
)

// InteractionRepository is the ledger of content each account has replied to
type InteractionRepository struct {
	db *DB
}

func NewInteractionRepository(db *DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Upsert records an interaction keyed by (account, content). Revisiting content
// overwrites the reply fields but never clears an existing replied_at.
func (r *InteractionRepository) Upsert(ctx context.Context, interaction *models.Interaction) error {
	if interaction.ID == "" {
		interaction.ID = uuid.New().String()
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO interactions (id, account_id, external_content_id, author_handle,
		                          our_reply_text, our_reply_id, replied_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, external_content_id) DO UPDATE
		SET author_handle = EXCLUDED.author_handle,
		    our_reply_text = EXCLUDED.our_reply_text,
		    our_reply_id = EXCLUDED.our_reply_id,
		    replied_at = COALESCE(EXCLUDED.replied_at, interactions.replied_at)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		interaction.ID,
		interaction.AccountID,
		interaction.ExternalContentID,
		interaction.AuthorHandle,
		interaction.OurReplyText,
		interaction.OurReplyID,
		interaction.RepliedAt,
		interaction.CreatedAt,
	).Scan(&interaction.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert interaction: %w", err)
	}
	return nil
}

// RepliedContentIDs returns which of contentIDs the account already replied to
func (r *InteractionRepository) RepliedContentIDs(ctx context.Context, accountID string, contentIDs []string) (map[string]bool, error) {
	replied := make(map[string]bool)
	if len(contentIDs) == 0 {
		return replied, nil
	}

	query := `
		SELECT external_content_id
		FROM interactions
		WHERE account_id = $1
		  AND external_content_id = ANY($2)
		  AND replied_at IS NOT NULL
	`
	rows, err := r.db.Pool.Query(ctx, query, accountID, contentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query replied content: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan content id: %w", err)
		}
		replied[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate replied content: %w", err)
	}
	return replied, nil
}

// RecentReplied lists replied interactions newest first
func (r *InteractionRepository) RecentReplied(ctx context.Context, accountID string, limit, offset int) ([]*models.Interaction, error) {
	query := `
		SELECT id, account_id, external_content_id, author_handle, our_reply_text,
		       our_reply_id, replied_at, created_at
		FROM interactions
		WHERE account_id = $1 AND replied_at IS NOT NULL
		ORDER BY replied_at DESC, id
	`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET $2`
		args = append(args, offset)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*models.Interaction
	for rows.Next() {
		i := &models.Interaction{}
		err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.ExternalContentID,
			&i.AuthorHandle,
			&i.OurReplyText,
			&i.OurReplyID,
			&i.RepliedAt,
			&i.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}
	return interactions, nil
}

// DeleteByIDs removes interactions by primary key
func (r *InteractionRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM interactions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete interactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStaleUnreplied removes placeholders created before cutoff. An empty
// accountID sweeps every account.
func (r *InteractionRepository) DeleteStaleUnreplied(ctx context.Context, accountID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM interactions WHERE replied_at IS NULL AND created_at < $1`
	args := []any{cutoff}
	if accountID != "" {
		query += ` AND account_id = $2`
		args = append(args, accountID)
	}

	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale interactions: %w", err)
	}
	return tag.RowsAffected(), nil
}
