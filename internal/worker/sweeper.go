package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WaitlistExpirer переводит просроченные notified записи в expired.
type WaitlistExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ExpirySweeper периодически сверяет лист ожидания: notified записи
// с истекшим сроком уведомления помечаются expired. Сам срок пассивен,
// без свипера его никто не применит.
type ExpirySweeper struct {
	expirer      WaitlistExpirer
	pollInterval time.Duration
	retryPolicy  RetryPolicy
	logger       *zerolog.Logger
}

func NewExpirySweeper(expirer WaitlistExpirer, pollInterval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *ExpirySweeper {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 30 * time.Second
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &ExpirySweeper{
		expirer:      expirer,
		pollInterval: pollInterval,
		retryPolicy:  retry,
		logger:       logger,
	}
}

// Start блокирует до отмены контекста.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.pollInterval).Msg("waitlist expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("waitlist expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	for attempt := 1; attempt <= s.retryPolicy.MaxRetries; attempt++ {
		expired, err := s.expirer.ExpireOverdue(ctx)
		if err == nil {
			if expired > 0 {
				s.logger.Info().Int("expired", expired).Msg("waitlist entries expired")
			}
			return
		}

		s.logger.Error().Err(err).Int("attempt", attempt).Msg("waitlist sweep failed")

		if attempt == s.retryPolicy.MaxRetries {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryPolicy.NextDelay(attempt)):
		}
	}
}
