package user

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Purger is the part of Service the sweeper needs.
type Purger interface {
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}

// ResetTokenSweeper periodically clears expired reset secrets so they do not
// linger on user rows after their TTL.
type ResetTokenSweeper struct {
	cron    *cron.Cron
	purger  Purger
	logger  zerolog.Logger
	timeout time.Duration
}

// NewResetTokenSweeper schedules the sweep with a standard cron spec or a
// descriptor such as "@every 15m".
func NewResetTokenSweeper(purger Purger, schedule string, logger zerolog.Logger) (*ResetTokenSweeper, error) {
	s := &ResetTokenSweeper{
		cron:    cron.New(),
		purger:  purger,
		logger:  logger.With().Str("component", "reset-sweeper").Logger(),
		timeout: 30 * time.Second,
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("schedule reset token sweep %q: %w", schedule, err)
	}
	return s, nil
}

func (s *ResetTokenSweeper) Start() { s.cron.Start() }

// Stop waits for a running sweep to finish or ctx to expire.
func (s *ResetTokenSweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *ResetTokenSweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.purger.PurgeExpiredResetTokens(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("purge expired reset tokens")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("cleared", n).Msg("expired reset tokens cleared")
	}
}
