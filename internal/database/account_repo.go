package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shubh-37/social-autoreply/internal/models"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, user_id, platform, client_id, client_secret, access_token, refresh_token,
	token_expires_at, api_key, platform_user_id, username, settings,
	automation_enabled, created_at, updated_at`

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	settingsJSON, err := json.Marshal(account.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	creds := account.Credentials
	query := `
		INSERT INTO social_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		account.ID,
		account.UserID,
		string(account.Platform),
		creds.ClientID,
		creds.ClientSecret,
		creds.AccessToken,
		creds.RefreshToken,
		creds.TokenExpiresAt,
		creds.APIKey,
		creds.PlatformUserID,
		creds.Username,
		settingsJSON,
		account.AutomationEnabled,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount loads one account. A missing row yields models.ErrAccountNotFound.
func (r *AccountRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrAccountNotFound
	}

	query := `SELECT ` + accountColumns + ` FROM social_accounts WHERE id = $1`
	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// ListAutomated returns every account with automation switched on, oldest first
func (r *AccountRepository) ListAutomated(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM social_accounts
		WHERE automation_enabled
		ORDER BY created_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query automated accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// UpdateTokens stores a refreshed token. An empty refreshToken keeps the stored one.
func (r *AccountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	var refresh *string
	if refreshToken != "" {
		refresh = &refreshToken
	}

	query := `
		UPDATE social_accounts
		SET access_token = $2,
		    refresh_token = COALESCE($3, refresh_token),
		    token_expires_at = $4,
		    updated_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, accessToken, refresh, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// SetAutomation flips the flag the fleet scheduler consults
func (r *AccountRepository) SetAutomation(ctx context.Context, id string, enabled bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrAccountNotFound
	}

	query := `UPDATE social_accounts SET automation_enabled = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, enabled, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	account := &models.Account{}
	var platform string
	var settingsJSON []byte

	err := row.Scan(
		&account.ID,
		&account.UserID,
		&platform,
		&account.Credentials.ClientID,
		&account.Credentials.ClientSecret,
		&account.Credentials.AccessToken,
		&account.Credentials.RefreshToken,
		&account.Credentials.TokenExpiresAt,
		&account.Credentials.APIKey,
		&account.Credentials.PlatformUserID,
		&account.Credentials.Username,
		&settingsJSON,
		&account.AutomationEnabled,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Platform = models.Platform(platform)
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &account.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return account, nil
}
