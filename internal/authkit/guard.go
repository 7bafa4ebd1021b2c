package authkit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Guard hands out access tokens that are valid for an outbound call,
// refreshing and persisting them when they are about to expire.
type Guard struct {
	sessions  SessionTokenStore
	refresher TokenRefresher
	clock     Clock
	logger    *zap.Logger
	metrics   MetricsRecorder
	refreshes singleflight.Group
}

// NewGuard constructs a Guard. Nil logger, clock and metrics fall back to no-op defaults.
func NewGuard(sessions SessionTokenStore, refresher TokenRefresher, clock Clock, logger *zap.Logger, metrics MetricsRecorder) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		sessions:  sessions,
		refresher: refresher,
		clock:     clockOrSystem(clock),
		logger:    logger,
		metrics:   metricsOrNoop(metrics),
	}
}

// Resolve loads the session's record for provider and makes it valid.
func (guard *Guard) Resolve(ctx context.Context, sessionID string, provider Provider) (TokenRecord, error) {
	record, ok := guard.sessions.Get(ctx, sessionID, provider)
	if !ok {
		return TokenRecord{}, fmt.Errorf("token_guard.%s: %w", provider, ErrSessionNotFound)
	}
	return guard.EnsureValid(ctx, sessionID, provider, record)
}

// EnsureValid returns record unchanged while it is fresh. Otherwise it refreshes
// once per (session, provider) no matter how many callers are waiting, stores
// the result, and returns it.
func (guard *Guard) EnsureValid(ctx context.Context, sessionID string, provider Provider, record TokenRecord) (TokenRecord, error) {
	if !record.IsExpired(guard.clock.Now()) {
		return record, nil
	}
	key := sessionID + "|" + provider.String()
	result, err, _ := guard.refreshes.Do(key, func() (interface{}, error) {
		return guard.refresh(context.WithoutCancel(ctx), sessionID, provider, record)
	})
	if err != nil {
		return TokenRecord{}, err
	}
	return result.(TokenRecord), nil
}

func (guard *Guard) refresh(ctx context.Context, sessionID string, provider Provider, record TokenRecord) (TokenRecord, error) {
	current := record
	if stored, ok := guard.sessions.Get(ctx, sessionID, provider); ok {
		if !stored.IsExpired(guard.clock.Now()) {
			return stored, nil
		}
		current = stored
	}
	refreshed, err := guard.refresher.Refresh(ctx, provider, current)
	if err != nil {
		guard.metrics.Increment(MetricTokenRefreshFailure)
		level := zap.WarnLevel
		code := "token_refresh.failed"
		if errors.Is(err, ErrRefreshUnavailable) {
			level = zap.InfoLevel
			code = "token_refresh.unavailable"
		}
		guard.logger.Check(level, "token refresh failed").Write(
			zap.String("code", code),
			zap.String("provider", provider.String()),
			zap.Error(err),
		)
		return TokenRecord{}, err
	}
	guard.metrics.Increment(MetricTokenRefreshSuccess)
	if !guard.sessions.Update(ctx, sessionID, provider, refreshed) {
		guard.logger.Info("refreshed token for a session that no longer exists",
			zap.String("code", "token_refresh.session_gone"),
			zap.String("provider", provider.String()),
		)
	}
	return refreshed, nil
}
