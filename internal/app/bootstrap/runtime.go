package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/yallacatch/claim-engine/internal/adapters/cache"
	eventadapter "github.com/yallacatch/claim-engine/internal/adapters/events"
	grpcadapter "github.com/yallacatch/claim-engine/internal/adapters/grpc"
	httpadapter "github.com/yallacatch/claim-engine/internal/adapters/http"
	"github.com/yallacatch/claim-engine/internal/adapters/memory"
	"github.com/yallacatch/claim-engine/internal/adapters/postgres"
	"github.com/yallacatch/claim-engine/internal/adapters/security"
	"github.com/yallacatch/claim-engine/internal/application"
	"github.com/yallacatch/claim-engine/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	worker     *eventadapter.Worker
	Consumer   *eventadapter.MemoryConsumer
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	var (
		claims       ports.ClaimRepository
		players      ports.PlayerRepository
		prizes       ports.PrizeRepository
		stock        ports.StockRepository
		reservations ports.ReservationRepository
		audit        ports.AuditLogRepository
		idempotency  ports.IdempotencyRepository
		eventDedup   ports.EventDedupRepository
		outbox       ports.OutboxRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return nil, err
		}
		repos := postgres.NewRepositories(db)
		claims = repos.Claims
		players = repos.Players
		prizes = repos.Prizes
		stock = repos.Stock
		reservations = repos.Reservations
		audit = repos.Audit
		idempotency = repos.Idempotency
		eventDedup = repos.EventDedup
		outbox = repos.Outbox
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory repositories")
		repos := memory.NewRepositories()
		claims = repos.Claims
		players = repos.Players
		prizes = repos.Prizes
		stock = repos.Stock
		reservations = repos.Reservations
		audit = repos.Audit
		idempotency = repos.Idempotency
		eventDedup = repos.EventDedup
		outbox = repos.Outbox
	}
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		idempotency = cache.NewRedisIdempotencyStore(redisClient)
		eventDedup = cache.NewRedisEventDedupStore(redisClient)
	}

	domainPublisher := eventadapter.NewMemoryDomainPublisher()
	analyticsPublisher := eventadapter.NewMemoryAnalyticsPublisher()
	dlqPublisher := eventadapter.NewLoggingDLQPublisher(logger)

	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:                  cfg.ServiceID,
			IdempotencyTTL:               cfg.IdempotencyTTL,
			EventDedupTTL:                cfg.EventDedupTTL,
			ReservationTTL:               cfg.ReservationTTL,
			EnableDomainEventConsumption: cfg.EnableDomainEventConsumption,
		},
		Claims:       claims,
		Players:      players,
		Prizes:       prizes,
		Stock:        stock,
		Reservations: reservations,
		Audit:        audit,
		Idempotency:  idempotency,
		EventDedup:   eventDedup,
		Outbox:       outbox,
		Settings:     grpcadapter.NewSettingsClient(cfg.SettingsGRPCURL),
		Directory:    grpcadapter.NewDirectoryClient(cfg.DirectoryGRPCURL),
		DomainEvents: domainPublisher,
		Analytics:    analyticsPublisher,
		DLQ:          dlqPublisher,
	})

	var verifier httpadapter.TokenVerifier
	if cfg.JWTPublicKeyPEM != "" {
		jwtVerifier, err := security.NewJWTVerifier(cfg.JWTPublicKeyPEM)
		if err != nil {
			return nil, err
		}
		verifier = jwtVerifier
	} else {
		logger.WarnContext(ctx, "JWT_PUBLIC_KEY_PEM not set, trusting bearer subjects directly")
		verifier = security.StaticVerifier{}
	}

	handler := httpadapter.NewHandler(service)
	router := httpadapter.NewRouter(handler, verifier)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	grpcadapter.Register(grpcServer, grpcadapter.NewClaimInternalServer(service))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return nil, err
	}

	consumer := eventadapter.NewMemoryConsumer()
	worker := eventadapter.NewWorker(logger, consumer, dlqPublisher, service, cfg.ConsumerPollInterval)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		worker:     worker,
		Consumer:   consumer,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		if err := r.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
