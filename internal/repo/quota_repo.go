// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the quota ledger statements.
//
// Every read-modify-write of a counter is a single SQL statement evaluated by
// the storage engine (INSERT .. ON CONFLICT DO UPDATE with a CASE on the
// stale-date condition, or a conditional UPDATE .. RETURNING), so two
// concurrent requests of one identity can never both observe the same
// pre-increment value. The statements are portable between SQLite (>= 3.35)
// and Postgres.
//
// Platform users live in user_limits keyed by user_id; anonymous users live
// in web_user_limits keyed by user_token. A missing row is reported as
// domain.ZeroQuota(), never as an error.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// ErrNoIdentity is returned when an identity carries neither key.
var ErrNoIdentity = errors.New("identity has neither tg id nor token")

type quotaTable struct {
	name     string
	keyCol   string
	key      any
	hasTrial bool
}

func quotaTableFor(id domain.Identity) (quotaTable, error) {
	switch {
	case id.TgID > 0:
		return quotaTable{name: "user_limits", keyCol: "user_id", key: id.TgID}, nil
	case id.Token != "":
		return quotaTable{name: "web_user_limits", keyCol: "user_token", key: id.Token, hasTrial: true}, nil
	default:
		return quotaTable{}, ErrNoIdentity
	}
}

func (t quotaTable) returning() string {
	trial := "trial_used"
	if !t.hasTrial {
		trial = "0 AS trial_used"
	}
	return "ads_created_today, ads_last_reset, photos_sent_today, photos_last_reset, " +
		"pin_uses_today, pin_last_reset, last_pin_time, " + trial
}

// queryQuota runs a statement whose RETURNING list is quotaTable.returning()
// and scans at most one row. Columns are scanned positionally so the
// timestamp goes through flexTime: SQLite may hand RETURNING timestamps back
// as text.
func queryQuota(ctx context.Context, db *gorm.DB, q string, args ...any) (domain.QuotaRow, bool, error) {
	rows, err := db.WithContext(ctx).Raw(q, args...).Rows()
	if err != nil {
		return domain.QuotaRow{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.QuotaRow{}, false, rows.Err()
	}
	var (
		out     domain.QuotaRow
		lastPin flexTime
	)
	if err := rows.Scan(
		&out.AdsCreatedToday, &out.AdsLastReset,
		&out.PhotosSentToday, &out.PhotosLastReset,
		&out.PinUsesToday, &out.PinLastReset,
		&lastPin, &out.TrialUsed,
	); err != nil {
		return domain.QuotaRow{}, false, err
	}
	out.LastPinTime = lastPin.Ptr()
	return out, true, rows.Err()
}

// RolloverCounters reads the quota row of id and, in the same statement,
// resets every counter whose last-reset date precedes day. Calling it twice
// with the same day returns identical rows.
func RolloverCounters(ctx context.Context, db *gorm.DB, id domain.Identity, day domain.Day) (domain.QuotaRow, error) {
	t, err := quotaTableFor(id)
	if err != nil {
		return domain.QuotaRow{}, err
	}

	sets := make([]string, 0, 2*len(domain.Counters))
	args := make([]any, 0, 3*len(domain.Counters)+1)
	for _, c := range domain.Counters {
		val, reset, _ := c.Columns()
		sets = append(sets,
			fmt.Sprintf("%[1]s = CASE WHEN %[2]s < ? THEN 0 ELSE %[1]s END", val, reset),
			fmt.Sprintf("%[1]s = CASE WHEN %[1]s < ? THEN ? ELSE %[1]s END", reset),
		)
		args = append(args, day, day, day)
	}
	args = append(args, t.key)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? RETURNING %s",
		t.name, strings.Join(sets, ", "), t.keyCol, t.returning())

	row, found, err := queryQuota(ctx, db, q, args...)
	if err != nil {
		return domain.QuotaRow{}, err
	}
	if !found {
		return domain.ZeroQuota(), nil
	}
	return row, nil
}

// IncrementCounter records one use of counter c for id on day and returns
// the post-update row. A stale row restarts at 1; last-reset never moves
// backwards. Pin increments also stamp last_pin_time with now.
func IncrementCounter(ctx context.Context, db *gorm.DB, id domain.Identity, c domain.Counter, day domain.Day, now time.Time) (domain.QuotaRow, error) {
	row, _, err := incrementCounter(ctx, db, id, c, day, now, nil)
	return row, err
}

// IncrementPinIfCooledDown records a pin only when the previous pin of id is
// older than cutoff (or there is none). The check and the write are one
// statement; ok is false when the cooldown is still running.
func IncrementPinIfCooledDown(ctx context.Context, db *gorm.DB, id domain.Identity, day domain.Day, now, cutoff time.Time) (row domain.QuotaRow, ok bool, err error) {
	return incrementCounter(ctx, db, id, domain.CounterPins, day, now, &cutoff)
}

func incrementCounter(ctx context.Context, db *gorm.DB, id domain.Identity, c domain.Counter, day domain.Day, now time.Time, pinCutoff *time.Time) (domain.QuotaRow, bool, error) {
	t, err := quotaTableFor(id)
	if err != nil {
		return domain.QuotaRow{}, false, err
	}
	val, reset, err := c.Columns()
	if err != nil {
		return domain.QuotaRow{}, false, err
	}

	cols := []string{t.keyCol, val, reset, "updated_at"}
	marks := []string{"?", "1", "?", "?"}
	args := []any{t.key, day, now.UTC()}
	sets := []string{
		fmt.Sprintf("%[1]s = CASE WHEN %[3]s.%[2]s < excluded.%[2]s THEN 1 ELSE %[3]s.%[1]s + 1 END", val, reset, t.name),
		fmt.Sprintf("%[1]s = CASE WHEN %[2]s.%[1]s < excluded.%[1]s THEN excluded.%[1]s ELSE %[2]s.%[1]s END", reset, t.name),
		"updated_at = excluded.updated_at",
	}
	if c == domain.CounterPins {
		cols = append(cols, "last_pin_time")
		marks = append(marks, "?")
		args = append(args, now.UTC())
		sets = append(sets, "last_pin_time = excluded.last_pin_time")
	}

	where := ""
	if pinCutoff != nil {
		where = fmt.Sprintf(" WHERE %[1]s.last_pin_time IS NULL OR %[1]s.last_pin_time <= ?", t.name)
		args = append(args, pinCutoff.UTC())
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s%s RETURNING %s",
		t.name, strings.Join(cols, ", "), strings.Join(marks, ", "), t.keyCol, strings.Join(sets, ", "), where, t.returning())

	return queryQuota(ctx, db, q, args...)
}

// DecrementCounterIfSameDay gives back one use of c when the thing being
// undone (an ad) was created on day in the reference timezone and the row was
// last reset on day. The value floors at zero. It reports whether a row was
// changed.
func DecrementCounterIfSameDay(ctx context.Context, db *gorm.DB, id domain.Identity, c domain.Counter, createdAt time.Time, day domain.Day, offset time.Duration, now time.Time) (bool, error) {
	if domain.ReferenceDay(createdAt, offset) != day {
		return false, nil
	}
	t, err := quotaTableFor(id)
	if err != nil {
		return false, err
	}
	val, reset, err := c.Columns()
	if err != nil {
		return false, err
	}

	q := fmt.Sprintf("UPDATE %[1]s SET %[2]s = CASE WHEN %[2]s > 0 THEN %[2]s - 1 ELSE 0 END, updated_at = ? WHERE %[3]s = ? AND %[4]s = ?",
		t.name, val, t.keyCol, reset)
	res := db.WithContext(ctx).Exec(q, now.UTC(), t.key, day)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimWebTrial flips trial_used for an anonymous token. It returns false
// when the trial had already been used.
func ClaimWebTrial(ctx context.Context, db *gorm.DB, token string, now time.Time) (bool, error) {
	if token == "" {
		return false, ErrNoIdentity
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO web_user_limits (user_token, trial_used, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_token) DO UPDATE SET trial_used = excluded.trial_used, updated_at = excluded.updated_at
		 WHERE web_user_limits.trial_used = ?`,
		token, true, now.UTC(), false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
