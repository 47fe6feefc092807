package config

// Redis backs the registration rate limiter, the webhook event log and the
// product catalog cache.  All three treat it as an accelerator: a nil
// client means "run on the database alone".

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

// LoadRedisOptions reads the client parameters:
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand (REDIS_HOST/REDIS_PORT win when both are set)
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func LoadRedisOptions() *redis.Options {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		addr = net.JoinHostPort(host, port)
	}
	opts := &redis.Options{
		Addr:       addr,
		Password:   os.Getenv("REDIS_PASSWORD"),
		DB:         envInt("REDIS_DB", 0),
		ClientName: "circle-registration",
	}
	if envBool("REDIS_TLS", false) {
		serverName, _, err := net.SplitHostPort(addr)
		if err != nil {
			serverName = addr
		}
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: serverName}
	}
	return opts
}

// NewRedisClient connects with LoadRedisOptions.  It returns nil when the
// server does not answer a ping at startup.
func NewRedisClient() *redis.Client {
	client := redis.NewClient(LoadRedisOptions())
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
