package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// InitRedis initializes the Redis client. Redis is optional: it backs the
// logout token blacklist and the outstanding-balance cache, and the server
// degrades gracefully without it.
func InitRedis() *redis.Client {
	addr := viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	log.Info().Str("addr", addr).Msg("redis connection established")
	return rdb
}
