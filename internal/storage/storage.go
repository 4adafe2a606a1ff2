// Package storage aggregates the relational store, the cache/lock store and
// the message broker behind one manager.
package storage

import (
	"context"
	"fmt"
	"strings"

	"match-engine-go/internal/config"
	"match-engine-go/internal/logger"
)

// Storage bundles all storage backends.
type Storage struct {
	// Relational store for jobs, candidates, CVs and evaluations.
	MySQL *MySQL

	// Cache and distributed-lock store.
	Redis *Redis

	// Message broker for the CV upload pipeline.
	RabbitMQ *RabbitMQ
}

// NewStorage initializes every configured backend. A backend with empty
// configuration is skipped; partial initialization is tolerated so the API
// can come up degraded, but failing all backends is fatal.
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	storage := &Storage{}
	var err error
	var initErrors []string

	if cfg.MySQL.Host != "" {
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			logger.Warn().Err(err).Msg("MySQL initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		} else {
			logger.Info().Str("host", cfg.MySQL.Host).Msg("MySQL initialized")
		}
	}

	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		} else {
			logger.Info().Str("address", cfg.Redis.Address).Msg("Redis initialized")
		}
	} else {
		logger.Info().Msg("Redis not configured, skipping")
	}

	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn().Err(err).Msg("RabbitMQ initialization failed")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if storage.MySQL == nil && storage.Redis == nil && storage.RabbitMQ == nil {
		return nil, fmt.Errorf("all storage backends failed to initialize: %s", strings.Join(initErrors, "; "))
	}
	if len(initErrors) > 0 {
		logger.Warn().Str("failures", strings.Join(initErrors, "; ")).Msg("Some storage backends failed to initialize")
	}

	return storage, nil
}

// Close shuts down every backend that was initialized.
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close MySQL connection")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}
