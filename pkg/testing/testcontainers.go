// Package testing starts disposable backing services for integration tests.
package testing

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoImage is a release that supports multi-document transactions
const MongoImage = "mongo:6"

// MongoDB is a single-node replica set plus a connected client
type MongoDB struct {
	container *mongodb.MongoDBContainer
	Client    *mongo.Client
	URI       string
}

// StartMongoDB runs a replica-set container and connects to it
func StartMongoDB(ctx context.Context) (*MongoDB, error) {
	container, err := mongodb.Run(ctx, MongoImage, mongodb.WithReplicaSet("rs0"))
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	m := &MongoDB{container: container}
	if err := m.connect(ctx); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) connect(ctx context.Context) error {
	uri, err := m.container.ConnectionString(ctx)
	if err != nil {
		return fmt.Errorf("failed to read connection string: %w", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetDirect(true))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}

	m.Client, m.URI = client, uri
	return nil
}

// FreshDatabase drops and returns the named database
func (m *MongoDB) FreshDatabase(ctx context.Context, name string) (*mongo.Database, error) {
	db := m.Client.Database(name)
	if err := db.Drop(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset database %s: %w", name, err)
	}
	return db, nil
}

// Close disconnects and terminates the container
func (m *MongoDB) Close(ctx context.Context) error {
	if m.Client != nil {
		_ = m.Client.Disconnect(ctx)
	}
	return m.container.Terminate(ctx)
}
