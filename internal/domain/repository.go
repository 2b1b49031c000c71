package domain

import "context"

// UserStore persists user records keyed by user id.
//
// Load and Save operate on the full mapping; Save must replace it
// atomically. Get and Put operate on a single record with last-writer-wins
// semantics, and concurrent Puts of different users must not lose each
// other's writes. Implementations wrap I/O failures with ErrStoreIO.
type UserStore interface {
	Load(ctx context.Context) (map[string]UserRecord, error)
	Save(ctx context.Context, records map[string]UserRecord) error
	Get(ctx context.Context, userID string) (*UserRecord, error)
	Put(ctx context.Context, record UserRecord) error
}

// Generator produces text for an ordered list of role-tagged messages.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
