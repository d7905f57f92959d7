// Package worker runs the periodic maintenance jobs of the service: it
// switches off premium windows that have ended and purges idempotency
// records past their TTL.
//
// Expired premium is also ignored lazily on every read, so the sweeper only
// keeps the stored flags honest for reporting and for clients that read the
// raw rows. A missed run is harmless.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/observability"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// DefaultSchedule is used when Sweeper.Schedule is empty.
const DefaultSchedule = "@every 10m"

// SweepResult reports what one sweep changed.
type SweepResult struct {
	PremiumCleared    int64
	IdempotencyPurged int64
}

// Sweeper clears expired premium windows and stale idempotency records.
type Sweeper struct {
	DB       *gorm.DB
	Schedule string // cron spec, e.g. "@every 10m" or "*/5 * * * *"
	Log      zerolog.Logger
	Now      func() time.Time
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RunOnce performs a single sweep. Both steps run even if the first fails;
// the errors are joined.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	now := s.now()
	var res SweepResult

	cleared, perr := repo.ClearExpiredPremium(ctx, s.DB, now)
	res.PremiumCleared = cleared
	observability.PremiumExpired("sweeper", cleared)

	purged, ierr := repo.PurgeExpiredIdempotency(ctx, s.DB, now)
	res.IdempotencyPurged = purged

	err := errors.Join(perr, ierr)
	ev := s.Log.Info()
	if err != nil {
		ev = s.Log.Error().Err(err)
	}
	ev.Int64("premium_cleared", res.PremiumCleared).
		Int64("idempotency_purged", res.IdempotencyPurged).
		Msg("sweep")
	return res, err
}

// Start schedules RunOnce and blocks until ctx is done. A sweep still in
// progress when the next tick fires is not overlapped.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := s.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}

	lg := cronLogger{log: s.Log}
	c := cron.New(
		cron.WithLogger(lg),
		cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)),
	)
	if _, err := c.AddFunc(spec, func() {
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}

	s.Log.Info().Str("schedule", spec).Msg("sweeper started")
	c.Start()
	<-ctx.Done()

	<-c.Stop().Done()
	s.Log.Info().Msg("sweeper stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
