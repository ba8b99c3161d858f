package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replyforge/server/internal/agent/model"
	errx "github.com/replyforge/server/internal/core/error"
	logx "github.com/replyforge/server/pkg/logger"
)

const (
	fieldTrialStartedAt = "trial_started_at"
	fieldConnectionMode = "connection_mode"
	fieldAPIKey         = "api_key"
	fieldAPIModel       = "api_model"
)

// RedisTrialRepository keeps per-user trial/admission state in a Redis hash.
type RedisTrialRepository struct {
	rdb redis.Cmdable
}

func NewRedisTrialRepository(rdb redis.Cmdable) *RedisTrialRepository {
	return &RedisTrialRepository{rdb: rdb}
}

func (r *RedisTrialRepository) trialKey(userID string) string {
	return fmt.Sprintf("user:%s:trial", userID)
}

// Get returns the stored trial state; a user with no hash yet gets the zero
// trial state (mode trial, not started).
func (r *RedisTrialRepository) Get(ctx context.Context, userID string) (*model.TrialState, error) {
	key := r.trialKey(userID)
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load trial state from redis")
		return nil, errx.WrapRedis(err)
	}

	st := &model.TrialState{Mode: model.ModeTrial}
	if len(fields) == 0 {
		return st, nil
	}

	if v := fields[fieldConnectionMode]; v != "" {
		st.Mode = model.ConnectionMode(v)
	}
	st.APIKey = fields[fieldAPIKey]
	st.APIModel = fields[fieldAPIModel]

	if v := fields[fieldTrialStartedAt]; v != "" {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			logx.Warn().Str("key", key).Str("value", v).Msg("unparseable trial start timestamp, treating as not started")
		} else {
			st.TrialStartedAt = &at
		}
	}
	return st, nil
}

func (r *RedisTrialRepository) SetTrialStart(ctx context.Context, userID string, at time.Time) error {
	key := r.trialKey(userID)
	if err := r.rdb.HSet(ctx, key, fieldTrialStartedAt, at.Format(time.RFC3339Nano)).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write trial start to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisTrialRepository) SetConnection(ctx context.Context, userID string, mode model.ConnectionMode, apiKey, apiModel string) error {
	key := r.trialKey(userID)
	err := r.rdb.HSet(ctx, key,
		fieldConnectionMode, string(mode),
		fieldAPIKey, apiKey,
		fieldAPIModel, apiModel,
	).Err()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write connection mode to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.TrialRepository = (*RedisTrialRepository)(nil)
