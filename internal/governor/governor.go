// Package governor decides, per inbound request, whether a user may
// consume one unit of daily quota, and commits the consumption.
package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatgate/internal/domain"
	"chatgate/internal/keylock"
)

// State is the per-request outcome of Decide.
type State string

const (
	StateUnregistered  State = "unregistered"
	StateAdmitted      State = "admitted"
	StateLimitExceeded State = "limit_exceeded"
)

// Allowancer resolves the daily allowance of a plan.
type Allowancer interface {
	Allowance(plan domain.Plan) (int, error)
}

// Decision is the result of one admission attempt.
type Decision struct {
	State     State
	Plan      domain.Plan
	Allowance int
	Used      int
	Remaining int
	Date      string
}

// LowQuota reports whether an admitted request left threshold or fewer
// units for the day.
func (d Decision) LowQuota(threshold int) bool {
	return d.State == StateAdmitted && d.Remaining <= threshold
}

// Options tune a Governor.
type Options struct {
	// Location defines where calendar days begin. UTC when nil.
	Location *time.Location
}

// Governor owns the read-rollover-check-increment-persist sequence.
type Governor struct {
	store  domain.UserStore
	policy Allowancer
	locks  *keylock.Striped
	loc    *time.Location
	logger zerolog.Logger
}

// New wires a Governor. locks must be the instance shared with the window
// manager so both serialise on the same user.
func New(store domain.UserStore, policy Allowancer, locks *keylock.Striped, opts Options, logger zerolog.Logger) *Governor {
	if locks == nil {
		locks = keylock.New(0)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Governor{
		store:  store,
		policy: policy,
		locks:  locks,
		loc:    loc,
		logger: logger.With().Str("component", "governor").Logger(),
	}
}

// Today returns the calendar date of now in the governor's location.
func (g *Governor) Today(now time.Time) string {
	return domain.DateOf(now, g.loc)
}

// Decide admits or rejects one request for userID at now. Admission and
// increment happen under the user's lock and are persisted before return.
func (g *Governor) Decide(ctx context.Context, userID string, now time.Time) (Decision, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	today := g.Today(now)
	rec, err := g.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return Decision{State: StateUnregistered, Date: today}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("governor: load %s: %w", userID, err)
	}

	rolled := rec.RollOver(today)
	allowed, err := g.policy.Allowance(rec.Plan)
	if err != nil {
		return Decision{}, fmt.Errorf("governor: user %s: %w", userID, err)
	}

	decision := Decision{
		Plan:      rec.Plan,
		Allowance: allowed,
		Date:      rec.LastUsedDate,
	}
	if rec.DailyUsageCount < allowed {
		rec.DailyUsageCount++
		rec.UpdatedAt = now.UTC()
		if err := g.store.Put(ctx, *rec); err != nil {
			return Decision{}, fmt.Errorf("governor: persist %s: %w", userID, err)
		}
		decision.State = StateAdmitted
		decision.Used = rec.DailyUsageCount
		decision.Remaining = allowed - rec.DailyUsageCount
		g.logger.Debug().Str("user_id", userID).Bool("rollover", rolled).Int("remaining", decision.Remaining).Msg("admitted")
		return decision, nil
	}

	if rolled {
		rec.UpdatedAt = now.UTC()
		if err := g.store.Put(ctx, *rec); err != nil {
			return Decision{}, fmt.Errorf("governor: persist %s: %w", userID, err)
		}
	}
	decision.State = StateLimitExceeded
	decision.Used = rec.DailyUsageCount
	g.logger.Debug().Str("user_id", userID).Int("used", rec.DailyUsageCount).Msg("limit exceeded")
	return decision, nil
}

// Refund gives back one unit consumed today. It is a no-op once the day
// has rolled over or when nothing was consumed.
func (g *Governor) Refund(ctx context.Context, userID string, now time.Time) error {
	unlock := g.locks.Lock(userID)
	defer unlock()

	rec, err := g.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("governor: load %s: %w", userID, err)
	}
	if rec.LastUsedDate != g.Today(now) || rec.DailyUsageCount == 0 {
		return nil
	}
	rec.DailyUsageCount--
	rec.UpdatedAt = now.UTC()
	if err := g.store.Put(ctx, *rec); err != nil {
		return fmt.Errorf("governor: persist %s: %w", userID, err)
	}
	return nil
}

// Usage reports the user's quota as a request at now would see it,
// without consuming or persisting anything.
func (g *Governor) Usage(ctx context.Context, userID string, now time.Time) (Decision, error) {
	today := g.Today(now)
	rec, err := g.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return Decision{State: StateUnregistered, Date: today}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("governor: load %s: %w", userID, err)
	}
	rec.RollOver(today)
	today = rec.LastUsedDate
	allowed, err := g.policy.Allowance(rec.Plan)
	if err != nil {
		return Decision{}, fmt.Errorf("governor: user %s: %w", userID, err)
	}
	state := StateAdmitted
	if rec.DailyUsageCount >= allowed {
		state = StateLimitExceeded
	}
	return Decision{
		State:     state,
		Plan:      rec.Plan,
		Allowance: allowed,
		Used:      rec.DailyUsageCount,
		Remaining: allowed - rec.DailyUsageCount,
		Date:      today,
	}, nil
}
