package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"lunexops/config"
	mqcontracts "lunexops/contracts/mq"
	"lunexops/internal/blob"
	"lunexops/internal/handler"
	"lunexops/internal/httpserver"
	"lunexops/internal/mqhandler"
	"lunexops/internal/notify"
	"lunexops/internal/portfolio"
	"lunexops/internal/repository"
	"lunexops/internal/service/auth"
	"lunexops/internal/service/pipeline"
	"lunexops/migrations"
	"lunexops/pkg/circuitbreaker"
	"lunexops/pkg/db"
	"lunexops/pkg/logger"
	"lunexops/pkg/mq"
	"lunexops/pkg/otel"
	"lunexops/pkg/outbox"
	pkgredis "lunexops/pkg/redis"
	"lunexops/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)
	defer log.Sync()

	log.Info("Starting lunexops...",
		zap.String("env", os.Getenv("CONFIG_ENV")),
		zap.String("db_host", cfg.DB.Host),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
	)

	shutdownOtel, err := otel.Init(cfg.OTel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	if err := db.ApplyMigrations(ctx, dbConn, migrations.FS, log); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Redis
	rdb := pkgredis.NewRedisClient(cfg.Redis, log)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, cfg.Pipeline.IntakeDedupTTL, log).
		WithScopeTTL(pipeline.OverdueScope, cfg.Pipeline.OverdueDedupTTL)

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	stores := pipeline.Stores{
		Leads:          repository.NewLeadRepository(dbConn, outboxRepo, log),
		Communications: repository.NewCommunicationRepository(dbConn, outboxRepo),
		Projects:       repository.NewProjectRepository(dbConn, outboxRepo, log),
		Milestones:     repository.NewMilestoneRepository(dbConn, outboxRepo, log),
		Notifications:  repository.NewNotificationRepository(dbConn, outboxRepo),
		Revenue:        repository.NewRevenueRepository(dbConn),
		Portfolio:      repository.NewPortfolioRepository(dbConn),
	}
	files, err := blob.NewLocalStore(cfg.Files.Root, cfg.Files.MaxSize, log)
	if err != nil {
		log.Fatal("Failed to init file store", zap.Error(err))
	}
	stores.Files = files

	// Notices: 内存 feed 给轮询的前端，MQ 给其他实例
	feed := notify.NewFeed(100)
	notifiers := notify.Fanout{feed}

	var publisher *mq.Publisher
	if cfg.MQ.Enabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		notifiers = append(notifiers, notify.NewMQNotifier(publisher, log))
	}

	breaker := circuitbreaker.New("portfolio", cfg.CircuitBreaker, log)
	svc := pipeline.New(stores, deduper, breaker, notifiers, pipeline.Config{
		QueueLimit: cfg.Pipeline.QueueLimit,
		Location:   cfg.Location(),
		Mapper:     portfolio.NewMapper(cfg.Pipeline.DepositFraction),
	}, log)

	if err := svc.LoadAll(ctx); err != nil {
		log.Fatal("Initial load failed", zap.Error(err))
	}
	log.Info("Snapshot loaded",
		zap.Int("leads", len(svc.Leads())),
		zap.Int("projects", len(svc.Projects())),
	)

	go svc.RunPeriodic(ctx, cfg.Pipeline.RefreshInterval, cfg.Pipeline.OverdueScanInterval)

	checks := map[string]httpserver.ReadinessCheck{
		"db":    dbConn.Ping,
		"redis": func(ctx context.Context) error { return pkgredis.Ping(ctx, rdb) },
	}

	if cfg.MQ.Enabled {
		// Outbox Dispatcher
		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithMaxRetries(cfg.Outbox.MaxRetries).
			WithInterval(cfg.Outbox.Interval).
			WithBatchSize(cfg.Outbox.BatchSize)
		go dispatcher.Start(ctx)

		// 变更事件：每个实例一个独占队列，收到后重新加载快照
		changes := mqhandler.NewChangeHandler(svc, log)
		retries := util.NewRetryCounter(rdb, cfg.Consumer.RetryTTL)
		bindings := map[string]mq.MessageHandler{
			mqcontracts.RoutingLeadChanged:          changes.HandleLeadChanged,
			mqcontracts.RoutingCommunicationCreated: changes.HandleCommunicationCreated,
			mqcontracts.RoutingProjectChanged:       changes.HandleProjectChanged,
			mqcontracts.RoutingNotificationCreated:  changes.HandleNotificationCreated,
		}
		for routingKey, h := range bindings {
			consumer, err := mq.NewConsumer(cfg.MQ.URL, "", []string{routingKey}, log)
			if err != nil {
				log.Fatal("Failed to init consumer", zap.String("routing_key", routingKey), zap.Error(err))
			}
			defer consumer.Close()
			consumer.WithRetryCounter(retries, cfg.Consumer.MaxRetries).SetHandler(h)

			go func(key string, c *mq.Consumer) {
				if err := c.StartConsuming(ctx); err != nil {
					log.Error("Consumer stopped", zap.String("routing_key", key), zap.Error(err))
				}
			}(routingKey, consumer)

			checks["mq_"+routingKey] = func(context.Context) error {
				if !consumer.IsConnected() {
					return errors.New("consumer disconnected")
				}
				return nil
			}
		}
		checks["mq_publisher"] = func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		}
	} else {
		log.Warn("MQ disabled, outbox events stay pending and only polling refreshes the snapshot")
	}

	// HTTP
	authService := auth.NewService(cfg.Auth.Accounts, auth.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.TTL,
	}, log)
	handlers := httpserver.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Leads:         handler.NewLeadHandler(svc, log),
		Projects:      handler.NewProjectHandler(svc, log),
		Schedule:      handler.NewScheduleHandler(svc, log),
		Finance:       handler.NewFinanceHandler(svc, log),
		Notifications: handler.NewNotificationHandler(svc, feed, log),
		Files:         handler.NewFileHandler(files, log),
		Admin:         handler.NewAdminHandler(outbox.NewReplayService(outboxRepo, log), log),
	}
	router := httpserver.NewRouter(handlers, authService, checks, log)
	srv := router.Server(cfg.Server.Port)

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down lunexops...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("lunexops stopped")
}
