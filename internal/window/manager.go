// Package window keeps the bounded, most-recent sequence of turns each user
// carries as conversational context. Turns live in the persisted user record
// so history survives restarts.
package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatgate/internal/domain"
	"chatgate/internal/keylock"
)

// DefaultTurns is the window size used when none is configured.
const DefaultTurns = 3

// Manager reads and appends turns. It shares its lock set with the governor.
type Manager struct {
	store  domain.UserStore
	locks  *keylock.Striped
	k      int
	now    func() time.Time
	logger zerolog.Logger
}

// New builds a Manager keeping at most k turns per user. k < 0 selects
// DefaultTurns; k == 0 disables history.
func New(store domain.UserStore, locks *keylock.Striped, k int, logger zerolog.Logger) *Manager {
	if locks == nil {
		locks = keylock.New(0)
	}
	if k < 0 {
		k = DefaultTurns
	}
	return &Manager{
		store:  store,
		locks:  locks,
		k:      k,
		now:    time.Now,
		logger: logger.With().Str("component", "window").Logger(),
	}
}

// Size returns K.
func (m *Manager) Size() int { return m.k }

// TurnsFor returns the user's stored turns, oldest first. Unknown users and
// users without history get an empty slice.
func (m *Manager) TurnsFor(ctx context.Context, userID string) ([]domain.Turn, error) {
	rec, err := m.store.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("window: load %s: %w", userID, err)
	}
	return bound(rec.RecentTurns, m.k), nil
}

// Last returns the most recent turn and whether one exists.
func (m *Manager) Last(ctx context.Context, userID string) (domain.Turn, bool, error) {
	turns, err := m.TurnsFor(ctx, userID)
	if err != nil {
		return domain.Turn{}, false, err
	}
	if len(turns) == 0 {
		return domain.Turn{}, false, nil
	}
	return turns[len(turns)-1], true, nil
}

// Record appends one exchange and evicts from the front until at most K
// turns remain. The user must already be registered.
func (m *Manager) Record(ctx context.Context, userID, question, answer string) error {
	return m.locks.Do(userID, func() error {
		rec, err := m.store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("window: load %s: %w", userID, err)
		}
		turns := append(rec.RecentTurns, domain.Turn{Question: question, Answer: answer})
		evicted := len(turns) - len(bound(turns, m.k))
		rec.RecentTurns = bound(turns, m.k)
		rec.UpdatedAt = m.now().UTC()
		if err := m.store.Put(ctx, *rec); err != nil {
			return fmt.Errorf("window: persist %s: %w", userID, err)
		}
		m.logger.Debug().Str("user_id", userID).Int("turns", len(rec.RecentTurns)).Int("evicted", evicted).Msg("turn recorded")
		return nil
	})
}

// bound returns a fresh copy of the last k turns.
func bound(turns []domain.Turn, k int) []domain.Turn {
	if len(turns) > k {
		turns = turns[len(turns)-k:]
	}
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out
}
