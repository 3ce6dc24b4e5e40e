package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	c "github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/utils"
)

type DBCloseCallback struct {
	store *DBStore
}

func (dc *DBCloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	ctx, cancel := context.WithTimeout(ctx, dc.store.operationTimeout)
	defer cancel()
	return dc.store.client.Disconnect(ctx)
}

// ConnectDatabase dials MongoDB and prepares the sessions collection.
func ConnectDatabase(config c.Database, appName string) (*DBStore, error) {
	logger.DebugF("Connecting to database...")

	operationTimeout := utils.ParseStringTimeOr(config.OperationTimeout, 5*time.Second)

	encodedUser := url.QueryEscape(config.Username)
	encodedPass := url.QueryEscape(config.Password)
	databaseUrl := fmt.Sprintf("mongodb://%s:%d/", config.Host, config.Port)
	if config.Username != "" {
		databaseUrl = fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
			encodedUser, encodedPass,
			config.Host,
			config.Port,
		)
	}

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(appName)
	if config.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(config.MinPoolSize)
	}
	if config.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(config.MaxPoolSize)
	}
	if d := utils.ParseStringTimeOr(config.ConnectIdleTimeout, 0); d > 0 {
		clientOptions.SetMaxConnIdleTime(d)
	}
	if d := utils.ParseStringTimeOr(config.ConnectTimeout, 0); d > 0 {
		clientOptions.SetConnectTimeout(d)
	}
	if d := utils.ParseStringTimeOr(config.SocketTimeout, 0); d > 0 {
		clientOptions.SetSocketTimeout(d)
	}
	if d := utils.ParseStringTimeOr(config.Heartbeat, 0); d > 0 {
		clientOptions.SetHeartbeatInterval(d)
	}
	if config.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %+v", evt)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %+v", evt)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	sessions := client.Database(config.Database).Collection(SessionCollectionName)

	_, err = sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "record_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("sessions_record_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetName("sessions_session_id"),
		},
		{
			Keys:    bson.D{{Key: "connected_at", Value: -1}},
			Options: options.Index().SetName("sessions_connected_at"),
		},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}

	return newDBStore(client, sessions, operationTimeout), nil
}

// CloseCallback returns the shutdown hook that disconnects the client.
func (ds *DBStore) CloseCallback() *DBCloseCallback {
	return &DBCloseCallback{store: ds}
}
