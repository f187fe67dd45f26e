package main

import (
	"context"
	"errors"
	"fmt"

	"rollcall/internal/config"
	"rollcall/internal/lock"
	"rollcall/internal/metrics"
	"rollcall/internal/network"
	"rollcall/internal/remote"
	"rollcall/internal/repository"
	"rollcall/internal/service"
	"rollcall/internal/sink"
	"rollcall/internal/store"
	"rollcall/pkg/logger"

	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// agent holds the long-lived components shared by serve and sync.
type agent struct {
	cfg *config.Config

	db       *gorm.DB
	rdb      *redis.Client
	etcd     *clientv3.Client
	locker   *lock.EtcdLocker
	kafka    *sink.KafkaReporter
	observer metrics.SyncObserver

	queue        *repository.QueueRepository
	failed       *service.FailedSet
	signal       *network.Signal
	remote       *remote.Client
	projections  *service.ProjectionCache
	gateway      *service.Gateway
	pending      *service.PendingService
	orchestrator *service.Orchestrator
}

func buildAgent(ctx context.Context, cfg *config.Config, observer metrics.SyncObserver) (a *agent, err error) {
	a = &agent{cfg: cfg, observer: observer}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 1. Local store
	a.db, err = store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	// 2. Optional shared infrastructure
	if cfg.Redis.Addr != "" {
		a.rdb, err = initRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		a.etcd, err = lock.NewEtcdClient(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}
		a.locker = lock.NewEtcdLocker(a.etcd, cfg.Etcd.LockKey)
	}

	// 3. Repositories
	a.queue = repository.NewQueueRepository(a.db)
	var settings repository.KV = repository.NewSQLKV(a.db)
	if cfg.FailedSet.Backend == "redis" {
		if a.rdb == nil {
			return nil, errors.New("failed_set.backend is redis but redis.addr is empty")
		}
		settings = repository.NewRedisKV(a.rdb, "rollcall:")
	}

	a.failed = service.NewFailedSet(settings, cfg.FailedSet.Key)
	if err = a.failed.Load(ctx); err != nil {
		return nil, err
	}

	// 4. Connectivity and remote
	a.remote = remote.NewClient(cfg.Remote)
	a.signal = network.NewSignal(network.CheckConnectivity(ctx, nil, probeURL(cfg), cfg.Remote.ProbeTimeout))
	logger.Info("initial connectivity", zap.Bool("online", a.signal.Status()))

	// 5. Services
	a.projections = service.NewProjectionCache(repository.NewProjectionRepository(a.db), a.remote, a.signal)
	a.gateway = service.NewGateway(a.queue, a.remote, a.signal, a.projections, observer)
	a.pending = service.NewPendingService(a.queue, a.failed)

	deps := service.OrchestratorDeps{
		Queue:       a.queue,
		Failed:      a.failed,
		Settings:    settings,
		Remote:      a.remote,
		Feed:        a.remote,
		Signal:      a.signal,
		Invalidator: a.projections,
		Observer:    observer,
	}
	if a.locker != nil {
		deps.Locker = a.locker
	}
	if a.rdb != nil {
		deps.Deduper = service.NewRedisDeduper(a.rdb)
	}
	switch cfg.Reporting.Sink {
	case "kafka":
		if len(cfg.Reporting.KafkaBrokers) == 0 {
			return nil, errors.New("reporting.sink is kafka but no brokers configured")
		}
		a.kafka = sink.NewKafkaReporter(cfg.Reporting.KafkaBrokers, cfg.Reporting.KafkaTopic)
		deps.Reporter = a.kafka
	case "none":
		deps.Reporter = sink.Nop{}
	default:
		deps.Reporter = a.remote
	}
	a.orchestrator = service.NewOrchestrator(deps, cfg.Sync)

	return a, nil
}

func probeURL(cfg *config.Config) string {
	if cfg.Remote.ProbeURL != "" {
		return cfg.Remote.ProbeURL
	}
	return cfg.Remote.BaseURL
}

// Close waits for pending error reports, then releases infrastructure.
func (a *agent) Close() {
	if a.orchestrator != nil {
		a.orchestrator.Flush()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if a.locker != nil {
		a.locker.Close()
	}
	if a.etcd != nil {
		a.etcd.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		if err := store.Close(a.db); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
