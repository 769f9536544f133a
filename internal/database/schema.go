package database

import (
	"context"
	"fmt"
)

// CreateTables creates all necessary database tables
func (db *DB) CreateTables(ctx context.Context) error {
	db.logger.Info("Creating database tables")

	accountsTable := `
	CREATE TABLE IF NOT EXISTS social_accounts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id VARCHAR(100) NOT NULL,
		platform VARCHAR(20) NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		client_secret TEXT NOT NULL DEFAULT '',
		access_token TEXT,
		refresh_token TEXT,
		token_expires_at TIMESTAMPTZ,
		api_key TEXT NOT NULL DEFAULT '',
		platform_user_id VARCHAR(100) NOT NULL DEFAULT '',
		username VARCHAR(255) NOT NULL DEFAULT '',
		settings JSONB NOT NULL DEFAULT '{}',
		automation_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_social_accounts_user ON social_accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_social_accounts_automation ON social_accounts(automation_enabled) WHERE automation_enabled;
	`

	interactionsTable := `
	CREATE TABLE IF NOT EXISTS interactions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		account_id UUID NOT NULL REFERENCES social_accounts(id) ON DELETE CASCADE,
		external_content_id VARCHAR(255) NOT NULL,
		author_handle VARCHAR(255) NOT NULL DEFAULT '',
		our_reply_text TEXT NOT NULL DEFAULT '',
		our_reply_id VARCHAR(255) NOT NULL DEFAULT '',
		replied_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (account_id, external_content_id)
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_recent ON interactions(account_id, replied_at DESC);
	CREATE INDEX IF NOT EXISTS idx_interactions_unreplied ON interactions(created_at) WHERE replied_at IS NULL;
	`

	logsTable := `
	CREATE TABLE IF NOT EXISTS pipeline_logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		account_id UUID NOT NULL REFERENCES social_accounts(id) ON DELETE CASCADE,
		level VARCHAR(20) NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_logs_account ON pipeline_logs(account_id, created_at DESC);
	`

	tables := []string{accountsTable, interactionsTable, logsTable}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, table); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	db.logger.Info("All tables created successfully")
	return nil
}
