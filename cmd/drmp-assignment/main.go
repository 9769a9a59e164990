package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drmp-assignment/common/database"
	"drmp-assignment/common/logger"
	commonmqtt "drmp-assignment/common/mqtt"
	commonredis "drmp-assignment/common/redis"
	"drmp-assignment/internal/client"
	"drmp-assignment/internal/config"
	"drmp-assignment/internal/eligibility"
	"drmp-assignment/internal/events"
	httpapi "drmp-assignment/internal/http"
	"drmp-assignment/internal/metrics"
	"drmp-assignment/internal/repository"
	"drmp-assignment/internal/service"
	"drmp-assignment/internal/store"
	"drmp-assignment/internal/strategy"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const serviceName = "drmp-assignment"

type repositories struct {
	packages repository.PackagesRepository
	orgs     repository.OrganizationsRepository
	rules    repository.RulesRepository
	flow     repository.FlowEventsRepository
}

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 存储
	var db *sql.DB
	if cfg.Storage.Backend == "postgres" {
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer database.Close(db)
	}
	repos := buildRepositories(cfg, db, log)

	// 4. Redis（机构缓存、分布式锁、事件流）
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = commonredis.NewRedisClient(&cfg.Redis)
		if err := commonredis.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		}
		defer commonredis.Close(redisClient)
	}

	orgs := repos.orgs
	if redisClient != nil && cfg.OrgSource.CacheTTL > 0 {
		orgs = store.NewOrganizationCache(orgs, store.NewRedisKV(redisClient), cfg.OrgSource.CacheTTL, log)
	}

	var locker store.Locker = store.NewMemoryLocker()
	if cfg.Lock.Backend == "redis" {
		locker = store.NewRedisLocker(redisClient, "drmp:lock:", cfg.Lock.TTL)
	}

	// 5. 事件输出
	var sinks []events.Sink
	if cfg.Events.Postgres {
		sinks = append(sinks, events.NewRepositorySink(repos.flow))
	}
	if redisClient != nil && cfg.Events.Stream != "" {
		sinks = append(sinks, events.NewStreamSink(redisClient, cfg.Events.Stream, cfg.Events.StreamMaxLen))
	}
	if cfg.MQTT.Enabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Warn("MQTT unavailable, flow events will not be published", zap.Error(err))
		} else {
			defer mqttClient.Disconnect()
			sinks = append(sinks, events.NewMQTTSink(mqttClient, cfg.Events.MQTTTopic, cfg.MQTT.QoS))
		}
	}
	sink := events.NewMultiSink(log, sinks...)

	// 6. 指标
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "")

	// 7. 服务
	strategies := strategy.NewManager(strategy.ManagerConfig{
		LargeAmountThreshold: cfg.Assignment.LargeAmountThreshold,
		HighRecoveryRate:     cfg.Assignment.HighRecoveryRate,
	})
	filter := eligibility.NewFilter(cfg.Assignment.LoadCeiling)

	assignSvc := service.NewAssignmentService(service.AssignmentDeps{
		Packages:      repos.packages,
		Organizations: orgs,
		Rules:         repos.rules,
		Strategies:    strategies,
		Eligibility:   filter,
		Locker:        locker,
		Sink:          sink,
		Metrics:       m,
		Logger:        log,
	}, service.AssignmentConfig{
		BatchWorkers: cfg.Assignment.BatchWorkers,
		MaxBatchSize: cfg.Assignment.MaxBatchSize,
		DefaultLimit: cfg.Assignment.DefaultLimit,
		MaxLimit:     cfg.Assignment.MaxLimit,
	})
	ruleSvc := service.NewRuleService(repos.rules, repos.packages, orgs, strategies, filter, log)
	statusSvc := service.NewPackageStatusService(repos.packages, orgs, repos.flow, locker, sink, m, log)

	// 8. 路由
	router := httpapi.NewRouter(log)
	router.RegisterHealthRoutes()
	router.RegisterAssignmentRoutes(httpapi.NewAssignmentHandler(assignSvc, log))
	router.RegisterRuleRoutes(httpapi.NewRuleHandler(ruleSvc, log))
	router.RegisterPackageRoutes(httpapi.NewPackageHandler(statusSvc, log))
	router.HandleHandler("GET /metrics", metrics.Handler(reg))

	srv := service.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	log.Info("Assignment service started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("org_source", cfg.OrgSource.Mode),
		zap.Int("event_sinks", sink.Len()),
	)

	// 9. 等待信号（优雅关闭）
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("Server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", zap.Error(err))
	}
	log.Info("Assignment service stopped")
}

// buildRepositories 按 STORAGE_BACKEND / ORG_SOURCE 组装仓储
func buildRepositories(cfg *config.Config, db *sql.DB, log *zap.Logger) repositories {
	var repos repositories
	if db != nil {
		repos = repositories{
			packages: repository.NewPostgresPackagesRepository(db, log),
			orgs:     repository.NewPostgresOrganizationsRepository(db, log),
			rules:    repository.NewPostgresRulesRepository(db, log),
			flow:     repository.NewPostgresFlowEventsRepository(db, log),
		}
	} else {
		repos = repositories{
			packages: repository.NewMemoryPackagesRepo(),
			orgs:     repository.NewMemoryOrganizationsRepo(),
			rules:    repository.NewMemoryRulesRepo(),
			flow:     repository.NewMemoryFlowEventsRepo(),
		}
	}

	switch cfg.OrgSource.Mode {
	case "http":
		repos.orgs = client.NewOrganizationClient(cfg.OrgSource.BaseURL, cfg.OrgSource.Timeout, log)
	case "memory":
		repos.orgs = repository.NewMemoryOrganizationsRepo()
	}
	return repos
}
