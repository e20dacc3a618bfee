package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chainlens/internal/agent"
	"github.com/chainlens/internal/alert"
	"github.com/chainlens/internal/api"
	"github.com/chainlens/internal/cache"
	"github.com/chainlens/internal/config"
	"github.com/chainlens/internal/health"
	"github.com/chainlens/internal/kafka"
	"github.com/chainlens/internal/logging"
	"github.com/chainlens/internal/store"
	"github.com/chainlens/internal/triangle"
)

// app holds every wired component of a running service
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *store.Store
	redis     *cache.RedisCache
	cache     *cache.AnalysisCache
	publisher *kafka.Publisher
	engine    *triangle.Engine
	hub       *api.AlertHub
	alerts    *alert.Engine
	agents    *agent.Manager
	health    *health.HealthChecker
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, health: health.NewHealthChecker()}

	st, err := store.Open(store.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.store = st
	if cfg.Database.AutoMigrate {
		if err := st.AutoMigrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	a.health.Register(health.DatabaseCheck(st.Ping))

	if cfg.Redis.Enabled {
		a.redis = cache.NewRedisCache(cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		a.health.Register(health.RedisCheck(a.redis.Ping))
	}
	a.cache = cache.NewAnalysisCache(a.redis, cfg.Redis.TTL, logger.Named("cache"))

	producer := kafka.NewNoopProducer()
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Timeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		topics := kafka.NewTopicManager(cfg.Kafka.Brokers, logger.Named("kafka"))
		if err := topics.CreateTopics(); err != nil {
			logger.Warn("failed to create kafka topics", zap.Error(err))
		}
		a.health.Register(health.KafkaCheck(func(ctx context.Context) error { return topics.Ping() }))
	}
	a.publisher = kafka.NewPublisher(producer)

	a.engine = triangle.NewEngine(cfg.Triangle, st, st,
		triangle.WithCache(a.cache),
		triangle.WithPublisher(a.publisher),
		triangle.WithLogger(logger.Named("triangle")))

	a.hub = api.NewAlertHub(logger.Named("websocket"))

	a.alerts = alert.NewEngine(cfg.Alerts, st, a.engine,
		alert.WithPublisher(a.publisher),
		alert.WithBroadcaster(a.hub),
		alert.WithLogger(logger.Named("alert")))

	a.agents = agent.NewManager(cfg.Agents, agent.NewRegistry(), st,
		agent.WithRunPublisher(a.publisher),
		agent.WithManagerLogger(logger.Named("agent")))

	var completer agent.Completer
	if cfg.OpenAI.APIKey != "" {
		completer = agent.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	} else {
		logger.Info("no OpenAI key configured, insights will return the plain summary")
	}
	a.agents.Register(agent.NewInsightsTask(a.engine, completer, cfg.OpenAI.Model, cfg.Agents))

	return a, nil
}

func (a *app) gateway() *api.Gateway {
	return api.NewGateway(a.cfg.API, api.Dependencies{
		Triangle:  a.engine,
		History:   a.store,
		Data:      a.store,
		Cache:     a.cache,
		Alerts:    a.store,
		Evaluator: a.alerts,
		Agents:    a.agents,
		Health:    a.health,
		Hub:       a.hub,
		Logger:    a.logger.Named("api"),
	})
}

// Close waits for background score writes and releases connections
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
