// Package memory implements the storage contract with an in-process map.
//
// It is the development backend and the fixture the conformance suite
// runs against. A single mutex serializes every operation, which also
// serves as the numbering serialization point: only one registration at
// a time passes through the read-max/write-number step.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arthall/onboard-bot/internal/domain"
	"github.com/arthall/onboard-bot/internal/storage"
)

type record struct {
	user domain.User
	seq  int64 // creation order, analogous to a serial primary key
}

// Store keeps all state in process memory.
type Store struct {
	mu       sync.Mutex
	users    map[int64]*record
	settings map[string]string
	nextSeq  int64
}

var _ storage.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:    make(map[int64]*record),
		settings: make(map[string]string),
		nextSeq:  1,
	}
}

// Init is a no-op: there is no schema to create.
func (s *Store) Init(ctx context.Context) error {
	return nil
}

// UserExists reports whether the identity has a record.
func (s *Store) UserExists(ctx context.Context, telegramID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.users[telegramID]
	return ok, nil
}

// AddUser creates the record and assigns max+1 under the store lock.
// Duplicate identities are silently ignored.
func (s *Store) AddUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.TelegramID]; ok {
		return nil
	}

	stored := *user
	if stored.JoinedAt.IsZero() {
		stored.JoinedAt = time.Now().UTC()
	}
	stored.GiveawayNumber = s.maxNumberLocked() + 1

	s.users[user.TelegramID] = &record{user: stored, seq: s.nextSeq}
	s.nextSeq++

	return nil
}

// SavePhone sets the phone field on an existing record.
func (s *Store) SavePhone(ctx context.Context, telegramID int64, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[telegramID]
	if !ok {
		return storage.ErrUserNotFound
	}

	rec.user.Phone = phone
	return nil
}

// AllUserIDs returns every known identity in unspecified order.
func (s *Store) AllUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}

	return ids, nil
}

// GiveawayNumber returns the assigned number for the identity.
func (s *Store) GiveawayNumber(ctx context.Context, telegramID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[telegramID]
	if !ok {
		return 0, storage.ErrUserNotFound
	}

	return rec.user.GiveawayNumber, nil
}

// Stats returns the total count and the five newest records.
func (s *Store) Stats(ctx context.Context) (*domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.sortedRecordsLocked()

	stats := &domain.Stats{Total: len(records)}
	for i := len(records) - 1; i >= 0 && len(stats.Recent) < 5; i-- {
		stats.Recent = append(stats.Recent, records[i].user)
	}

	return stats, nil
}

// ExportUsers returns every record in creation order.
func (s *Store) ExportUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.sortedRecordsLocked()
	users := make([]domain.User, 0, len(records))
	for _, rec := range records {
		users = append(users, rec.user)
	}

	return users, nil
}

// Setting returns the stored value for key.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.settings[key]
	if !ok {
		return "", storage.ErrSettingNotFound
	}

	return value, nil
}

// SetSetting upserts the value for key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

// AssignMissingNumbers numbers unnumbered records in creation order.
func (s *Store) AssignMissingNumbers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	healed := 0
	for _, rec := range s.sortedRecordsLocked() {
		if rec.user.GiveawayNumber > 0 {
			continue
		}

		rec.user.GiveawayNumber = s.maxNumberLocked() + 1
		healed++
	}

	return healed, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) maxNumberLocked() int {
	max := 0
	for _, rec := range s.users {
		if rec.user.GiveawayNumber > max {
			max = rec.user.GiveawayNumber
		}
	}

	return max
}

func (s *Store) sortedRecordsLocked() []*record {
	records := make([]*record, 0, len(s.users))
	for _, rec := range s.users {
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].seq < records[j].seq
	})

	return records
}
