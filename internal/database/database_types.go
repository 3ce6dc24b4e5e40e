package database

import "time"

const (
	SessionCollectionName = "sessions"
)

// CloseCause records why a session ended.
type CloseCause string

const (
	CauseClientRequested  CloseCause = "client_requested"
	CausePeerDisconnected CloseCause = "peer_disconnected"
	CauseIOError          CloseCause = "io_error"
	CauseServerShutdown   CloseCause = "server_shutdown"
)

// SessionRecord is the audit entry kept for one connection. It holds no
// message content.
// RecordID is unique per connection; SessionID is the peer ip:port, which
// the operating system may hand out again to a later connection.
type SessionRecord struct {
	RecordID       string     `bson:"record_id"`
	SessionID      string     `bson:"session_id"`
	Transport      string     `bson:"transport"`
	ConnectedAt    time.Time  `bson:"connected_at"`
	DisconnectedAt time.Time  `bson:"disconnected_at,omitempty"`
	Cause          CloseCause `bson:"cause,omitempty"`
	Topics         []string   `bson:"topics"`
	Published      int64      `bson:"published"`
}

type SessionStore interface {
	GetSession(recordID string) (*SessionRecord, error)
	SaveSession(record *SessionRecord) error
	// ListSessions returns at most limit records, most recent connection first.
	ListSessions(limit int) ([]*SessionRecord, error)
}
