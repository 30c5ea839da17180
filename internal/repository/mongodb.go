// Package repository provides the SQLite query path and MongoDB sample storage.
package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/guttosm/rental-manager/internal/logger"
)

// MongoConfig holds MongoDB connection pool configuration.
type MongoConfig struct {
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize uint64
	// MinPoolSize is the minimum number of connections to keep in the pool.
	MinPoolSize uint64
	// MaxConnIdleTime is how long a connection can remain idle before being closed.
	MaxConnIdleTime time.Duration
	// ConnectTimeout is the timeout for establishing a connection.
	ConnectTimeout time.Duration
	// ServerSelectionTimeout is how long to wait for server selection.
	ServerSelectionTimeout time.Duration
	// SocketTimeout is the timeout for socket read/write operations.
	SocketTimeout time.Duration
	// EnableCompression enables wire protocol compression.
	EnableCompression bool
}

// DefaultMongoConfig returns MongoDB settings sized for a sample sink that
// sees one write per monitor interval.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		MaxPoolSize:            10,
		MinPoolSize:            1,
		MaxConnIdleTime:        10 * time.Minute,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 5 * time.Second,
		SocketTimeout:          30 * time.Second,
		EnableCompression:      true,
	}
}

// MongoDB provides MongoDB client and database access.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	Samples  *mongo.Collection
}

// NewMongoDB creates a new MongoDB connection with default configuration.
func NewMongoDB(uri, databaseName string) (*MongoDB, error) {
	return NewMongoDBWithConfig(uri, databaseName, DefaultMongoConfig())
}

// NewMongoDBWithConfig creates a new MongoDB connection with custom configuration.
func NewMongoDBWithConfig(uri, databaseName string, cfg MongoConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetSocketTimeout(cfg.SocketTimeout)

	if cfg.EnableCompression {
		clientOptions.SetCompressors([]string{"zstd", "snappy", "zlib"})
	}

	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(databaseName)
	mongoDB := &MongoDB{
		Client:   client,
		Database: db,
		Samples:  db.Collection("memory_samples"),
	}

	if err := mongoDB.createIndexes(ctx); err != nil {
		log := logger.Component("repository")
		log.Warn().Err(err).Msg("Failed to create samples index")
	}

	return mongoDB, nil
}

// cleanupIndexName is the name MongoDB derives for cleanupIndex.
const cleanupIndexName = "cleaned_1_timestamp_-1"

// cleanupIndex serves queries for samples that triggered cleanup, newest
// first. Key order matters, so the keys are a bson.D.
func cleanupIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "cleaned", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetUnique(false),
	}
}

// createIndexes creates the non-TTL indexes. The TTL index is owned by
// SetSamplesTTL. Creating an index that already exists succeeds.
func (m *MongoDB) createIndexes(ctx context.Context) error {
	_, err := m.Samples.Indexes().CreateOne(ctx, cleanupIndex())
	return err
}

// SetSamplesTTL replaces the TTL index that expires stored samples.
func (m *MongoDB) SetSamplesTTL(ctx context.Context, ttl time.Duration) error {
	_, _ = m.Samples.Indexes().DropOne(ctx, "timestamp_1")

	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl / time.Second)),
	}
	_, err := m.Samples.Indexes().CreateOne(ctx, ttlIndex)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// Close closes the MongoDB connection.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// HealthCheck verifies the MongoDB connection is healthy.
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return m.Client.Ping(ctx, nil)
}
