package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"chatgate/internal/domain"
	"chatgate/internal/infra"
	"chatgate/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserStore backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// EnsureSchema creates the chat_users table when missing.
func (r *UserRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QCreateChatUsers); err != nil {
		return fmt.Errorf("%w: create schema: %v", domain.ErrStoreIO, err)
	}
	return nil
}

// Ping checks that the table answers.
func (r *UserRepositoryPG) Ping(ctx context.Context) error {
	var n int64
	if err := r.sql.QueryRow(ctx, sqlinline.QCountChatUsers).Scan(&n); err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrStoreIO, err)
	}
	return nil
}

// Load returns every stored user.
func (r *UserRepositoryPG) Load(ctx context.Context) (map[string]domain.UserRecord, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectChatUsers)
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", domain.ErrStoreIO, err)
	}
	defer rows.Close()

	records := map[string]domain.UserRecord{}
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", domain.ErrStoreIO, err)
		}
		records[rec.UserID] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %v", domain.ErrStoreIO, err)
	}
	return records, nil
}

type replaceRow struct {
	UserID          string        `json:"user_id"`
	Plan            string        `json:"plan"`
	DailyUsageCount int           `json:"daily_usage_count"`
	LastUsedDate    string        `json:"last_used_date"`
	RecentTurns     []domain.Turn `json:"recent_turns"`
	CreatedAt       *time.Time    `json:"created_at,omitempty"`
}

// Save replaces the table with records in a single statement.
func (r *UserRepositoryPG) Save(ctx context.Context, records map[string]domain.UserRecord) error {
	payload := make([]replaceRow, 0, len(records))
	for id, rec := range records {
		row := replaceRow{
			UserID:          id,
			Plan:            string(rec.Plan),
			DailyUsageCount: rec.DailyUsageCount,
			LastUsedDate:    rec.LastUsedDate,
			RecentTurns:     rec.RecentTurns,
		}
		if row.RecentTurns == nil {
			row.RecentTurns = []domain.Turn{}
		}
		if !rec.CreatedAt.IsZero() {
			created := rec.CreatedAt
			row.CreatedAt = &created
		}
		payload = append(payload, row)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode users: %v", domain.ErrStoreIO, err)
	}
	var removed, upserted int64
	if err := r.sql.QueryRow(ctx, sqlinline.QReplaceChatUsers, raw).Scan(&removed, &upserted); err != nil {
		return fmt.Errorf("%w: replace users: %v", domain.ErrStoreIO, err)
	}
	return nil
}

// Get fetches one user.
func (r *UserRepositoryPG) Get(ctx context.Context, userID string) (*domain.UserRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectChatUser, userID)
	rec, err := scanUser(row)
	if infra.IsNoRows(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan user: %v", domain.ErrStoreIO, err)
	}
	return rec, nil
}

// Put upserts one user.
func (r *UserRepositoryPG) Put(ctx context.Context, record domain.UserRecord) error {
	if record.UserID == "" {
		return errors.New("repo: user id is required")
	}
	turns, err := encodeTurns(record.RecentTurns)
	if err != nil {
		return err
	}
	var createdAt *time.Time
	if !record.CreatedAt.IsZero() {
		created := record.CreatedAt
		createdAt = &created
	}
	_, err = r.sql.Exec(ctx, sqlinline.QUpsertChatUser,
		record.UserID,
		string(record.Plan),
		record.DailyUsageCount,
		record.LastUsedDate,
		turns,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert user %s: %v", domain.ErrStoreIO, record.UserID, err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.UserRecord, error) {
	var (
		u     domain.UserRecord
		plan  string
		turns []byte
	)
	if err := row.Scan(&u.UserID, &plan, &u.DailyUsageCount, &u.LastUsedDate, &turns, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Plan = domain.Plan(plan)
	decoded, err := decodeTurns(turns)
	if err != nil {
		return nil, err
	}
	u.RecentTurns = decoded
	return &u, nil
}

var _ domain.UserStore = (*UserRepositoryPG)(nil)
