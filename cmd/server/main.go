package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/api"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/authz"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/config"
	"github.com/lalith-99/echochat/internal/db"
	"github.com/lalith-99/echochat/internal/eventlog"
	"github.com/lalith-99/echochat/internal/observ"
	"github.com/lalith-99/echochat/internal/presence"
	"github.com/lalith-99/echochat/internal/realtime"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/lalith-99/echochat/internal/repository/memory"
	"github.com/lalith-99/echochat/internal/repository/postgres"
	"github.com/lalith-99/echochat/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observ.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tracker, closeTracker, err := openPresence(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeTracker()

	var sink eventlog.Sink = eventlog.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		sink = eventlog.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("event mirror enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("event sink close failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := broadcast.NewMetrics(reg)

	// One registry per key space: chat groups and per-user inboxes.
	chats := broadcast.New[int64](broadcast.Options{
		Name:            "chats",
		DeliveryTimeout: cfg.DeliveryTimeout,
		Logger:          logger,
		Metrics:         metrics,
	})
	inboxes := broadcast.New[uuid.UUID](broadcast.Options{
		Name:            "inboxes",
		DeliveryTimeout: cfg.DeliveryTimeout,
		Logger:          logger,
		Metrics:         metrics,
	})

	guard := authz.NewGuard(store)
	resolver := auth.NewResolver(cfg.JWTSecret)
	// The gateway subscribes under the same per-chat sequence the services
	// publish under.
	seq := broadcast.NewSequencer()
	notifier := service.NewNotifier(chats, inboxes, seq, sink, logger)

	chatSvc := service.NewChatService(store, guard, notifier, tracker, logger)
	msgSvc := service.NewMessageService(store, guard, notifier, logger)
	memSvc := service.NewMembershipService(store, guard, notifier, logger)

	gateway := realtime.NewGateway(resolver, guard, seq, chats, inboxes, tracker, realtime.Options{
		SendBuffer: cfg.SendBuffer,
		Registerer: reg,
	}, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Auth:        api.NewAuthHandler(store, cfg.JWTSecret, cfg.TokenTTL, logger),
		Users:       api.NewUserHandler(store, logger),
		Chats:       api.NewChatHandler(chatSvc, logger),
		Memberships: api.NewMembershipHandler(memSvc, logger),
		Messages:    api.NewMessageHandler(msgSvc, logger),
		Realtime:    gateway,
		Health:      health,
		Resolver:    resolver,
		Registry:    reg,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "echochat"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting echochat",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreDriver),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openStore picks the backend named by STORE_DRIVER. The returned health
// check is what /v1/health reports.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New().Store(), nil, func() {}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return repository.Store{}, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return repository.Store{}, nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return postgres.NewStore(database.Pool()), database.Health, database.Close, nil
}

// openPresence connects to Redis when REDIS_URL is set. Without it presence
// is disabled and /online always answers an empty list.
func openPresence(ctx context.Context, cfg *config.Config, logger *zap.Logger) (presence.Tracker, func(), error) {
	if cfg.RedisURL == "" {
		return presence.Nop{}, func() {}, nil
	}

	rdb, err := presence.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("presence tracking enabled")
	return presence.NewRedisTracker(rdb, presence.DefaultTTL), func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}, nil
}
