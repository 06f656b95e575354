package state

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// InitMongo connects the DLQ archive. An empty uri disables it and returns a
// nil client without error.
func InitMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		log.Warn().Msg("MongoDB url is empty, DLQ archive disabled")
		return nil, nil
	}

	log.Info().Msg("Connecting to MongoDB")

	clientOpts := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("MongoDB connection established successfully")
	return client, nil
}
