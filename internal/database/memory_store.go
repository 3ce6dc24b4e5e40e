package database

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps the most recent session records in a size- and
// TTL-bounded LRU.
type MemoryStore struct {
	sessions *expirable.LRU[string, *SessionRecord] // record id -> record
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: expirable.NewLRU[string, *SessionRecord](size, nil, ttl),
	}
}

func (ms *MemoryStore) GetSession(recordID string) (*SessionRecord, error) {
	if recordID == "" {
		return nil, RecordIdEmptyError
	}
	record, ok := ms.sessions.Get(recordID)
	if !ok {
		return nil, fmt.Errorf("session record %s: %w", recordID, ErrSessionNotFound)
	}
	return record.clone(), nil
}

func (ms *MemoryStore) SaveSession(record *SessionRecord) error {
	if record.RecordID == "" {
		return RecordIdEmptyError
	}
	ms.sessions.Add(record.RecordID, record.clone())
	return nil
}

func (ms *MemoryStore) ListSessions(limit int) ([]*SessionRecord, error) {
	values := ms.sessions.Values()
	result := make([]*SessionRecord, 0, len(values))
	for _, v := range values {
		result = append(result, v.clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.After(result[j].ConnectedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
