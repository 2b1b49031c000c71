package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date encoding used for LastUsedDate.
const DateLayout = "2006-01-02"

// Plan names a quota tier. The set of valid plans is configuration.
type Plan string

const (
	PlanPro Plan = "pro"
	PlanMax Plan = "max"
)

// NormalizePlan lower-cases and trims a plan name.
func NormalizePlan(p string) Plan {
	return Plan(strings.ToLower(strings.TrimSpace(p)))
}

// Turn is one question/answer exchange kept as conversational context.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UserRecord is the persisted quota and context state of a registered user.
type UserRecord struct {
	UserID          string    `json:"user_id"`
	Plan            Plan      `json:"plan"`
	DailyUsageCount int       `json:"daily_usage_count"`
	LastUsedDate    string    `json:"last_used_date,omitempty"`
	RecentTurns     []Turn    `json:"recent_turns,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// NewUserRecord builds the record an administrator registers: no usage,
// empty window.
func NewUserRecord(userID string, plan Plan, now time.Time) UserRecord {
	return UserRecord{
		UserID:    userID,
		Plan:      plan,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Clone returns a deep copy so callers can mutate turns without aliasing
// the store's copy.
func (r UserRecord) Clone() UserRecord {
	out := r
	if r.RecentTurns != nil {
		out.RecentTurns = make([]Turn, len(r.RecentTurns))
		copy(out.RecentTurns, r.RecentTurns)
	}
	return out
}

// RollOver resets the daily counter when today is later than the recorded
// date. It reports whether a reset happened. An earlier date (a late
// message) never resets and never moves LastUsedDate backwards.
func (r *UserRecord) RollOver(today string) bool {
	if today <= r.LastUsedDate {
		return false
	}
	r.DailyUsageCount = 0
	r.LastUsedDate = today
	return true
}

// DateOf formats t as a calendar date in loc (UTC when loc is nil).
func DateOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
