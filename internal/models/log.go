package models

import "time"

// LogLevel is the severity shown to operators in the account activity log
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// LogEntry is one line of pipeline narration for an account
type LogEntry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
