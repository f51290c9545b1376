package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultApplicationName = "palmyra-tenancy"

// PoolConfig holds the pool knobs exposed through env and CLI flags. Zero values keep pgx defaults.
type PoolConfig struct {
	ConnString      string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ConnectAttempts bounds the initial ping loop; the database container may still be starting.
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// ConnInfo is the non-secret part of the pool target, copied into tenant store descriptors.
type ConnInfo struct {
	Host     string
	Port     uint16
	Database string
	User     string
}

// NewPool builds a pgxpool.Pool and waits until the database answers a ping.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.ConnString == "" {
		return nil, errors.New("conn string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	appName := cfg.ApplicationName
	if appName == "" {
		appName = defaultApplicationName
	}
	// Lets pg_stat_activity tell provisioning sessions apart from tenant traffic.
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pingWithRetry(ctx, pool.Ping, cfg.ConnectAttempts, cfg.ConnectBackoff); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return err
}

// PoolConnInfo reports host, port, database and user of the pool's target.
func PoolConnInfo(pool *pgxpool.Pool) ConnInfo {
	if pool == nil {
		return ConnInfo{}
	}
	cc := pool.Config().ConnConfig
	return ConnInfo{Host: cc.Host, Port: cc.Port, Database: cc.Database, User: cc.User}
}

// ClosePool shuts down the pool gracefully; safe to call with nil.
func ClosePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
