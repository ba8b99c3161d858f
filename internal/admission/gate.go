package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/replyforge/server/internal/agent/model"
	logx "github.com/replyforge/server/pkg/logger"
)

// Gate decides whether a user's agent may send messages: users on their own
// API credentials always pass, trial users pass until the trial window
// elapses. Check has no side effects; repeated calls against unchanged stored
// state return the same decision.
type Gate struct {
	trials model.TrialRepository
	window time.Duration
	now    func() time.Time
}

func NewGate(trials model.TrialRepository, cfg model.TrialConfig) *Gate {
	return &Gate{
		trials: trials,
		window: cfg.Duration,
		now:    time.Now,
	}
}

// Check evaluates the admission policy for the user, in order:
// api mode with credentials, trial not started, trial window still open.
func (g *Gate) Check(ctx context.Context, userID string) (model.AdmissionDecision, error) {
	st, err := g.trials.Get(ctx, userID)
	if err != nil {
		return model.AdmissionDecision{}, fmt.Errorf("load trial state for %s: %w", userID, err)
	}

	if st.Mode == model.ModeAPI && st.APIKey != "" {
		return model.AdmissionDecision{Allowed: true, Mode: model.ModeAPI}, nil
	}

	if st.TrialStartedAt == nil {
		// Trial not begun yet; sends are provisionally allowed until the
		// first WhatsApp connection starts the clock.
		return model.AdmissionDecision{Allowed: true, Mode: model.ModeTrial}, nil
	}

	elapsed := g.now().Sub(*st.TrialStartedAt)
	if elapsed < g.window {
		return model.AdmissionDecision{Allowed: true, Mode: model.ModeTrial}, nil
	}

	expiredAt := st.TrialStartedAt.Add(g.window)
	return model.AdmissionDecision{
		Allowed: false,
		Mode:    model.ModeTrial,
		Reason:  fmt.Sprintf("Your free trial expired at %s. Connect your own API key to keep your agent responding.", expiredAt.Format(time.RFC1123)),
	}, nil
}

// StartTrial records the trial start timestamp. Calling it again overwrites
// the timestamp and resets the clock; that matches observed behavior and is
// flagged for product review, so callers must guard against re-triggering.
func (g *Gate) StartTrial(ctx context.Context, userID string) error {
	at := g.now()
	if err := g.trials.SetTrialStart(ctx, userID, at); err != nil {
		return fmt.Errorf("start trial for %s: %w", userID, err)
	}
	logx.Info().Str("user_id", userID).Time("started_at", at).Msg("trial started")
	return nil
}
