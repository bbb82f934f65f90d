package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-onboarding/internal/accounts"
	"lv-onboarding/internal/artifacts"
	"lv-onboarding/internal/auth"
	"lv-onboarding/internal/config"
	"lv-onboarding/internal/credentials"
	"lv-onboarding/internal/db"
	"lv-onboarding/internal/health"
	"lv-onboarding/internal/httpserver"
	"lv-onboarding/internal/identity"
	"lv-onboarding/internal/logging"
	"lv-onboarding/internal/metrics"
	"lv-onboarding/internal/notify"
	"lv-onboarding/internal/onboarding"
	"lv-onboarding/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.AppMode)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	healthHandler := health.NewHandler(startedAt, cfg.HTTPAddr, cfg.StorageDriver)

	var backend storage.Backend
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Fatal("apply schema", zap.Error(err))
		}
		backend = storage.NewPostgresStore(pool)
		healthHandler.WithPool(pool)
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		backend = storage.NewMemoryStore()
	}

	var steps onboarding.StepStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("parse REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		steps = onboarding.NewRedisStepStore(rdb, cfg.SignupStateTTL)
		healthHandler.WithCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		logger.Warn("REDIS_URL not set; signup progress is kept in memory")
		steps = onboarding.NewMemoryStepStore()
	}

	files, err := artifacts.NewDiskStore(cfg.ArtifactDir)
	if err != nil {
		logger.Fatal("artifact storage", zap.Error(err))
	}

	var sender notify.Sender
	if cfg.SMTP.Enabled() {
		sender = notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		sender = notify.NewLogSender(logger)
	}
	notifier := notify.NewNotifier(sender, logger)

	provisioner, err := accounts.NewProvisioner(accounts.Defaults{
		StartingBalance: cfg.Account.StartingBalance,
		Leverage:        cfg.Account.Leverage,
		Currency:        cfg.Account.Currency,
	})
	if err != nil {
		logger.Fatal("account defaults", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	authSvc := auth.NewService(cfg.AttemptIssuer, []byte(cfg.AttemptSecret), cfg.AttemptTTL)
	issuer := credentials.NewIssuer(credentials.RandomGenerator{}, m, logger)
	seq := onboarding.NewSequencer(steps, backend, files, notifier, m, logger)
	completer := onboarding.NewCompleter(steps, backend, issuer, provisioner, notifier, m, logger, cfg.CredentialTries)

	limiter := httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		SignupHandler:   onboarding.NewHandler(seq, completer, authSvc, logger, cfg.AppMode == "production"),
		IdentityHandler: identity.NewHandler(backend),
		AccountsHandler: accounts.NewHandler(backend),
		HealthHandler:   healthHandler,
		AuthService:     authSvc,
		RateLimiter:     limiter,
		Gatherer:        prometheus.DefaultGatherer,
		Logger:          logger,
		InternalToken:   cfg.InternalToken,
		CORSOrigins:     cfg.CORSOrigins,
	})
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.HTTPAddr), zap.Error(err))
	}

	logger.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("storage", cfg.StorageDriver),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("smtp", cfg.SMTP.Enabled()),
	)
	if err := serve(ctx, srv, ln, 10*time.Second, notifier.Wait); err != nil {
		logger.Error("http server", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
