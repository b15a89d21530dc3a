package report

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo dials uri and pings it, mirroring the teacher's
// database.ConnectDB (database/mongodb.go): same 10s connect timeout,
// same ping-then-disconnect-on-failure shape. Returns the live client
// (caller disconnects) and the named database.
func ConnectMongo(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("report: mongo.Connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("report: mongo ping: %w", err)
	}
	return client, client.Database(dbName), nil
}
