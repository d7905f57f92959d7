// Package services – QuotaLedger
//
// QuotaLedger owns the daily counters of an identity. "Today" is the calendar
// date at the configured UTC offset. Every read rolls stale counters over and
// every write is one statement in the repo layer, so concurrent requests of
// one identity never lose an increment.
//
// Consume enforces a ceiling without a separate read: it increments first
// and, when the new value is over the limit, gives the use back and rejects.

package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
	"github.com/tbourn/go-anon-ads-backend/internal/observability"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
)

// QuotaLedger tracks per-identity daily usage.
type QuotaLedger struct {
	DB     *gorm.DB
	Policy LimitPolicy
	Offset time.Duration
	Now    func() time.Time
}

func (l *QuotaLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Today returns the current reference day.
func (l *QuotaLedger) Today() domain.Day {
	return domain.ReferenceDay(l.now(), l.Offset)
}

// Snapshot returns the counters of id as of today, rolling stale ones over.
// An identity without a row reads as zero.
func (l *QuotaLedger) Snapshot(ctx context.Context, id domain.Identity) (domain.QuotaRow, domain.Day, error) {
	day := l.Today()
	row, err := repo.RolloverCounters(ctx, l.DB, id, day)
	return row, day, err
}

// Increment records one use of c without enforcing a limit.
func (l *QuotaLedger) Increment(ctx context.Context, id domain.Identity, c domain.Counter) (domain.QuotaRow, error) {
	now := l.now()
	return repo.IncrementCounter(ctx, l.DB, id, c, domain.ReferenceDay(now, l.Offset), now)
}

// Consume records one use of c if the tier allows it and returns the
// post-update row. A rejected use leaves the counter unchanged and returns a
// *QuotaError.
func (l *QuotaLedger) Consume(ctx context.Context, id domain.Identity, c domain.Counter, isPremium bool) (domain.QuotaRow, error) {
	tr := otel.Tracer("services/QuotaLedger")
	ctx, span := tr.Start(ctx, "Consume",
		trace.WithAttributes(
			attribute.String("identity", id.Key()),
			attribute.String("counter", string(c)),
			attribute.Bool("premium", isPremium),
		),
	)
	defer span.End()

	now := l.now()
	day := domain.ReferenceDay(now, l.Offset)
	limit := l.Policy.Max(c, isPremium)

	if c == domain.CounterPins && !isPremium {
		return l.consumeFreePin(ctx, id, day, now)
	}

	row, err := repo.IncrementCounter(ctx, l.DB, id, c, day, now)
	if err != nil {
		return domain.QuotaRow{}, err
	}
	if used := row.UsedOn(c, day); used > limit {
		if _, err := repo.DecrementCounterIfSameDay(ctx, l.DB, id, c, now, day, l.Offset, now); err != nil {
			return domain.QuotaRow{}, err
		}
		observability.QuotaRejected(string(c), isPremium)
		qe := &QuotaError{Counter: c, IsPremium: isPremium, Limit: limit, Used: limit}
		if c == domain.CounterPins {
			next := day.Next().Start(l.Offset)
			qe.NextAvailableAt = &next
		}
		return domain.QuotaRow{}, qe
	}
	observability.QuotaIncremented(string(c), isPremium)
	return row, nil
}

func (l *QuotaLedger) consumeFreePin(ctx context.Context, id domain.Identity, day domain.Day, now time.Time) (domain.QuotaRow, error) {
	cooldown := l.Policy.Quota.FreePinCooldown
	row, ok, err := repo.IncrementPinIfCooledDown(ctx, l.DB, id, day, now, now.Add(-cooldown))
	if err != nil {
		return domain.QuotaRow{}, err
	}
	if ok {
		observability.QuotaIncremented(string(domain.CounterPins), false)
		return row, nil
	}

	observability.QuotaRejected(string(domain.CounterPins), false)
	qe := &QuotaError{Counter: domain.CounterPins, Limit: 1, Used: 1}
	if cur, err := repo.RolloverCounters(ctx, l.DB, id, day); err == nil && cur.LastPinTime != nil {
		next := cur.LastPinTime.Add(cooldown)
		qe.NextAvailableAt = &next
	}
	return domain.QuotaRow{}, qe
}

// Refund gives back one use of c for something created at createdAt. Only
// same-day uses are refunded; yesterday's ad never frees today's quota.
func (l *QuotaLedger) Refund(ctx context.Context, id domain.Identity, c domain.Counter, createdAt time.Time) (bool, error) {
	now := l.now()
	return repo.DecrementCounterIfSameDay(ctx, l.DB, id, c, createdAt, domain.ReferenceDay(now, l.Offset), l.Offset, now)
}
