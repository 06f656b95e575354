package state

import (
	"context"
	"time"

	"github.com/fisioflow/realtime/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

// AppState holds the process-wide clients. Mongo is nil when the DLQ archive
// is disabled.
type AppState struct {
	Ctx       context.Context
	Cancel    context.CancelFunc
	DB        *gorm.DB
	Redis     *redis.Client
	Mongo     *mongo.Client
	JwtSecret []byte
}

func InitAppState(ctx context.Context, cancel context.CancelFunc) (*AppState, error) {
	conf := config.Conf

	jwtSecret, err := InitSecret(conf.JWT.Secret)
	if err != nil {
		return nil, err
	}

	db, _, err := InitPostgres(conf.DATABASE.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	rdb, err := InitRedis(ctx, conf.DATABASE.Redis.Addr, conf.DATABASE.Redis.Password, conf.DATABASE.Redis.DB)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	mongoClient, err := InitMongo(ctx, conf.DATABASE.Mongo.Url)
	if err != nil {
		closeDB(db)
		_ = rdb.Close()
		return nil, err
	}

	return &AppState{
		Ctx:       ctx,
		Cancel:    cancel,
		DB:        db,
		Redis:     rdb,
		Mongo:     mongoClient,
		JwtSecret: jwtSecret,
	}, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *AppState) Close() {
	if a.DB != nil {
		log.Info().Msg("Closing PostgreSQL database connection...")
		closeDB(a.DB)
	}

	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		log.Info().Msg("Closing MongoDB client...")
		defer cancel()
		if err := a.Mongo.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect MongoDB client")
		}
	}

	if a.Redis != nil {
		log.Info().Msg("Closing Redis client...")
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis client")
		}
	}
}
