// Package mongo holds the MongoDB connection and the transcript store built
// on it. The server falls back to the in-memory store when no MONGODB_URI is
// configured, so everything here assumes a reachable deployment.
package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "sales_training"

	connectTimeout = 10 * time.Second
	selectTimeout  = 5 * time.Second
	maxIdleTime    = 30 * time.Minute
)

// Client wraps one connected MongoDB deployment and the training database.
type Client struct {
	inner    *mongo.Client
	database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects using MONGODB_URI and MONGODB_DATABASE, verifying the
// deployment with a ping before returning.
func NewClient(logger *zap.Logger) (*Client, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = defaultURI
	}
	dbName := os.Getenv("MONGODB_DATABASE")
	if dbName == "" {
		dbName = defaultDatabase
	}

	// Transcript writes happen once per session at teardown, so the pool
	// stays small.
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(maxIdleTime).
		SetServerSelectionTimeout(selectTimeout).
		SetConnectTimeout(connectTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", dbName))

	return &Client{
		inner:    client,
		database: client.Database(dbName),
		logger:   logger,
	}, nil
}

// Collection returns a handle within the training database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Close disconnects from the deployment.
func (c *Client) Close(ctx context.Context) error {
	if err := c.inner.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
