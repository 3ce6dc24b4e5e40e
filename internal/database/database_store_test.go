package database

import (
	"errors"
	"testing"
	"time"
)

// The id checks run before any database access, so a store without a
// client is enough to exercise them.
func TestDBStoreRejectsEmptyID(t *testing.T) {
	ds := newDBStore(nil, nil, time.Second)

	if _, err := ds.GetSession(""); !errors.Is(err, RecordIdEmptyError) {
		t.Errorf("GetSession: expected RecordIdEmptyError, got %v", err)
	}
	if err := ds.SaveSession(&SessionRecord{SessionID: "127.0.0.1:5000"}); !errors.Is(err, RecordIdEmptyError) {
		t.Errorf("SaveSession: expected RecordIdEmptyError, got %v", err)
	}
}

func TestDBStoreServesCachedRecord(t *testing.T) {
	ds := newDBStore(nil, nil, time.Second)
	record := NewSessionRecord("a", "tcp")
	ds.cache.Add(record.RecordID, record)

	got, err := ds.GetSession(record.RecordID)
	if err != nil {
		t.Fatalf("expected cached record, got %v", err)
	}
	if got.SessionID != "a" {
		t.Errorf("expected session a, got %s", got.SessionID)
	}
}
