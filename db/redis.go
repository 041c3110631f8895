package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"LinkFM/config"
	"LinkFM/logger"
)

// RedisClient is the process-wide redis handle.
var RedisClient *redis.Client

// ConnectRedis initializes the redis connection and verifies it with a ping.
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis",
		logger.String("host", cfg.RedisHost),
		logger.Int("db", cfg.RedisDB))
	return nil
}

// CloseRedis closes the redis connection.
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}
