package database

import (
	"fmt"
	"sync/atomic"
	"time"
)

var recordSequence atomic.Uint64

func NewSessionRecord(sessionID, transport string) *SessionRecord {
	now := time.Now()
	return &SessionRecord{
		RecordID:    fmt.Sprintf("%s@%d.%d", sessionID, now.UnixNano(), recordSequence.Add(1)),
		SessionID:   sessionID,
		Transport:   transport,
		ConnectedAt: now,
		Topics:      []string{},
	}
}

// Closed reports whether the session has ended.
func (record *SessionRecord) Closed() bool {
	return !record.DisconnectedAt.IsZero()
}

// Finish stamps the disconnect time, cause and last known topics.
func (record *SessionRecord) Finish(cause CloseCause, topics []string) {
	record.DisconnectedAt = time.Now()
	record.Cause = cause
	record.Topics = append([]string{}, topics...)
}

func (record *SessionRecord) clone() *SessionRecord {
	c := *record
	c.Topics = append([]string{}, record.Topics...)
	return &c
}
