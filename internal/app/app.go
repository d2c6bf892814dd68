// Package app wires the demo node: configuration, logging, redis, the demo
// services, and the API manager that serves them. It plays the role of the
// external caller registering endpoints.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/quorumlab/nodegate/internal/api"
	"github.com/quorumlab/nodegate/internal/config"
	"github.com/quorumlab/nodegate/internal/logger"
	"github.com/quorumlab/nodegate/internal/redis"
	"github.com/quorumlab/nodegate/internal/services/keystore"
	"github.com/quorumlab/nodegate/internal/services/status"
	"github.com/quorumlab/nodegate/internal/version"
)

type App struct {
	cfg         *config.Config
	log         logger.Logger
	manager     *api.Manager
	updates     chan api.UpdateEndpoints
	redisClient *goredis.Client
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Static part of the endpoint set: always served.
	aggregator := api.NewAggregator()
	aggregator.Insert(status.Name, status.New().API())

	managerCfg := api.NewManagerConfig(cfg.Servers, aggregator).
		WithRetries(cfg.RetryTimeout, cfg.MaxRetries)
	managerCfg.DisableSignals = cfg.DisableSignals

	manager, err := api.NewManager(managerCfg, log)
	if err != nil {
		return nil, err
	}

	// Dynamic part: the keystore joins through the first endpoint-set
	// update, the same path later service loads/unloads would take.
	var dynamic []api.ServiceAPI
	var redisClient *goredis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
		}, log)
		if err != nil {
			return nil, err
		}
		dynamic = append(dynamic, api.ServiceAPI{
			Name: keystore.Name,
			API:  keystore.New(redisClient).API(),
		})
	} else {
		log.Info("redis not configured, keystore service disabled")
	}

	updates := make(chan api.UpdateEndpoints, 1)
	updates <- api.NewUpdateEndpoints(dynamic)

	return &App{
		cfg:         cfg,
		log:         log,
		manager:     manager,
		updates:     updates,
		redisClient: redisClient,
	}, nil
}

func (a *App) Run() error {
	a.log.Infof("starting nodegate %s", version.Version)

	err := a.manager.Run(context.Background(), a.updates)

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.log.Warnf("failed to close redis: %v", cerr)
		}
	}
	defer func() { _ = a.log.Sync() }()

	if err != nil {
		return fmt.Errorf("api manager failed: %w", err)
	}
	a.log.Info("nodegate stopped cleanly")
	return nil
}
