package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
)

var (
	RecordIdEmptyError  = errors.New("record_id is empty")
	ErrSessionNotFound  = errors.New("session not found")
)

// DBStore persists session records in MongoDB, with a short-lived read cache.
type DBStore struct {
	client           *mongo.Client
	sessions         *mongo.Collection
	cache            *expirable.LRU[string, *SessionRecord]
	operationTimeout time.Duration
}

func newDBStore(client *mongo.Client, sessions *mongo.Collection, operationTimeout time.Duration) *DBStore {
	return &DBStore{
		client:           client,
		sessions:         sessions,
		cache:            expirable.NewLRU[string, *SessionRecord](256, nil, time.Minute),
		operationTimeout: operationTimeout,
	}
}

func wrapErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("document does not exist: %w", ErrSessionNotFound)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ds *DBStore) GetSession(recordID string) (*SessionRecord, error) {
	if recordID == "" {
		return nil, RecordIdEmptyError
	}
	if record, ok := ds.cache.Get(recordID); ok {
		return record.clone(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ds.operationTimeout)
	defer cancel()

	filter := bson.D{{Key: "record_id", Value: recordID}}
	var record SessionRecord

	startTime := time.Now()
	err := ds.sessions.FindOne(ctx, filter).Decode(&record)
	logger.DebugF("session query cost: %v", time.Since(startTime))

	if err != nil {
		return nil, wrapErr(err)
	}
	ds.cache.Add(recordID, record.clone())
	return &record, nil
}

func (ds *DBStore) SaveSession(record *SessionRecord) error {
	if record.RecordID == "" {
		return RecordIdEmptyError
	}

	ctx, cancel := context.WithTimeout(context.Background(), ds.operationTimeout)
	defer cancel()

	filter := bson.D{{Key: "record_id", Value: record.RecordID}}
	opts := options.Replace().SetUpsert(true)

	result, err := ds.sessions.ReplaceOne(ctx, filter, record, opts)
	if err != nil {
		return wrapErr(err)
	}
	ds.cache.Remove(record.RecordID)

	logger.DebugF("Session saved: record_id=%s, matched=%d, modified=%d, upserted=%v",
		record.RecordID,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)
	return nil
}

func (ds *DBStore) ListSessions(limit int) ([]*SessionRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ds.operationTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "connected_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := ds.sessions.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer cursor.Close(ctx)

	var records []*SessionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, wrapErr(err)
	}
	return records, nil
}
