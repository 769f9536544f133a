package pipeline

import (
	"errors"
	"fmt"

	"github.com/shubh-37/social-autoreply/internal/models"
)

// Stage names a step of a pipeline run
type Stage string

const (
	StageValidate Stage = "validate"
	StageRefresh  Stage = "refresh"
	StageFetch    Stage = "fetch"
	StageFilter   Stage = "filter"
	StageVision   Stage = "vision"
	StageGenerate Stage = "generate"
	StagePost     Stage = "post"
	StageRecord   Stage = "record"
)

// ErrAccountNotFound is returned when the account id does not exist
var ErrAccountNotFound = models.ErrAccountNotFound

// ErrAlreadyReplied is returned when the account has already replied to the target
var ErrAlreadyReplied = errors.New("already replied to this content")

// ConfigError means a required credential or setting is missing. It is raised
// before any network call.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Field)
}

// AuthError means the platform token could not be obtained; the account has to
// be reconnected.
type AuthError struct {
	Platform models.Platform
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s authentication failed: reconnect the account", e.Platform)
	}
	return fmt.Sprintf("%s authentication failed: %v", e.Platform, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StageError wraps an upstream failure in one step of a run
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
