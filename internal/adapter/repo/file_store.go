package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"

	"chatgate/internal/domain"
)

// FileStore keeps every user record in one JSON document. Writes go to a
// temporary file that is renamed over the document, so a crash leaves
// either the previous or the new mapping on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore prepares a FileStore at path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repo: file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("repo: ensure store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing document location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the full mapping. A missing document is an empty mapping.
func (s *FileStore) Load(ctx context.Context) (map[string]domain.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save replaces the full mapping.
func (s *FileStore) Save(ctx context.Context, records map[string]domain.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(records)
}

// Get returns a copy of one record or domain.ErrNotFound.
func (s *FileStore) Get(ctx context.Context, userID string) (*domain.UserRecord, error) {
	records, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := rec.Clone()
	return &out, nil
}

// Put replaces one record. The read-modify-write of the document happens
// under the store mutex so concurrent Puts of different users survive.
func (s *FileStore) Put(ctx context.Context, record domain.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.UserID == "" {
		return errors.New("repo: user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return err
	}
	records[record.UserID] = record.Clone()
	return s.write(records)
}

func (s *FileStore) read() (map[string]domain.UserRecord, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.UserRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStoreIO, s.path, err)
	}
	records := map[string]domain.UserRecord{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return records, nil
	}
	stored := map[string]storedRecord{}
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrStoreIO, s.path, err)
	}
	for id, sr := range stored {
		records[id] = sr.record(id)
	}
	return records, nil
}

// storedRecord accepts both the current layout and the older usuarios.json
// one, which keyed usage as usos_diarios and ultimo_uso.
type storedRecord struct {
	domain.UserRecord
	LegacyUses    *int   `json:"usos_diarios,omitempty"`
	LegacyLastUse string `json:"ultimo_uso,omitempty"`
}

func (sr storedRecord) record(id string) domain.UserRecord {
	rec := sr.UserRecord
	if rec.UserID == "" {
		rec.UserID = id
	}
	if sr.LegacyUses != nil && rec.DailyUsageCount == 0 {
		rec.DailyUsageCount = *sr.LegacyUses
	}
	if rec.LastUsedDate == "" {
		rec.LastUsedDate = strings.TrimSpace(sr.LegacyLastUse)
	}
	rec.Plan = domain.NormalizePlan(string(rec.Plan))
	return rec
}

func (s *FileStore) write(records map[string]domain.UserRecord) error {
	if records == nil {
		records = map[string]domain.UserRecord{}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrStoreIO, err)
	}
	if err := atomicwriter.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStoreIO, s.path, err)
	}
	return nil
}

var _ domain.UserStore = (*FileStore)(nil)
