package mongoutil

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	Uri      string `json:"uri"`
	Database string `json:"database"`
}

// Open connects to a mongodb deployment and pings it, so a bad uri
// fails at startup rather than on the first write. The returned
// cleanup disconnects the underlying client.
func Open(ctx context.Context, config Config) (*mongo.Database, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.Uri))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	cleanup := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Warn("failed to disconnect from mongodb", "err", err)
		}
	}
	return client.Database(config.Database), cleanup, nil
}
