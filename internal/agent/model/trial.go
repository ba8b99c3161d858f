package model

import (
	"context"
	"time"
)

// ConnectionMode selects how a user's agent is billed for model access.
type ConnectionMode string

const (
	// ModeTrial uses the platform model key within the trial window.
	ModeTrial ConnectionMode = "trial"
	// ModeAPI uses the user's own model credentials, no trial limit.
	ModeAPI ConnectionMode = "api"
)

// TrialState holds the per-user admission fields.
// Invariant: Mode == ModeAPI implies APIKey is non-empty; the gate treats an
// api-mode user without credentials as a trial user.
type TrialState struct {
	TrialStartedAt *time.Time     `json:"trial_started_at"`
	Mode           ConnectionMode `json:"connection_mode"`
	APIKey         string         `json:"api_key"`
	APIModel       string         `json:"api_model"`
}

// TrialRepository reads and writes per-user trial/admission state.
type TrialRepository interface {
	// Get returns the trial state for a user. A user with no stored state gets
	// the zero trial state (mode trial, trial not started), not an error.
	Get(ctx context.Context, userID string) (*TrialState, error)

	// SetTrialStart records the trial start timestamp. The write is an
	// unconditional overwrite; callers guard against re-triggering.
	SetTrialStart(ctx context.Context, userID string, at time.Time) error

	// SetConnection switches the user's connection mode and credentials.
	SetConnection(ctx context.Context, userID string, mode ConnectionMode, apiKey, apiModel string) error
}
