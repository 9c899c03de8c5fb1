package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/artifacts"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/authn"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/db"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/httpx"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/observability"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/attempts"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/config"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/idempotency"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/lifecycle"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/sigcapture"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/store"
)

// backend is what both storage drivers provide.
type backend interface {
	lifecycle.Store
	idempotency.Store
	store.Seeder
	Migrate(ctx context.Context) error
}

var (
	_ backend = (*store.Postgres)(nil)
	_ backend = (*store.SQLite)(nil)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		ServiceName:    "esign",
		ServiceVersion: strings.TrimSpace(os.Getenv("SERVICE_VERSION")),
		Environment:    strings.TrimSpace(os.Getenv("DEPLOY_ENV")),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	st, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cfg.FixturesPath != "" {
		f, err := store.LoadFixturesFile(cfg.FixturesPath)
		if err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
		if err := store.ApplyFixtures(ctx, st, f); err != nil {
			return err
		}
		logger.Info("fixtures applied", "path", cfg.FixturesPath, "employees", len(f.Employees), "templates", len(f.Templates))
	}

	arts, err := artifacts.NewStore(ctx, artifacts.Config{
		Type:    artifacts.StoreType(cfg.Artifacts.Type),
		DataDir: cfg.Artifacts.DataDir,
		S3: artifacts.S3Config{
			Bucket:   cfg.Artifacts.S3Bucket,
			Region:   cfg.Artifacts.S3Region,
			Endpoint: cfg.Artifacts.S3Endpoint,
			Prefix:   cfg.Artifacts.S3Prefix,
		},
	})
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	var publisher webhooks.Publisher = webhooks.NopPublisher{}
	var codes lifecycle.CodeSender = lifecycle.LogCodeSender{Logger: logger}
	if cfg.WebhookURL != "" {
		publisher = webhooks.NewHTTPPublisher(cfg.WebhookURL, cfg.WebhookSecret, 5*time.Second)
		codes = lifecycle.PublisherCodeSender{Publisher: publisher}
	}

	var limiter attempts.Limiter
	fixed := attempts.NewFixedWindow(cfg.VerifyMaxAttempts, cfg.VerifyWindow())
	if cfg.Redis.Addr != "" {
		client := attempts.NewRedisClient(attempts.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		limiter = attempts.NewRedis(client, cfg.VerifyMaxAttempts, cfg.VerifyWindow())
	} else {
		limiter = fixed
	}

	signatures, err := sigcapture.New(cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	svc, err := lifecycle.New(lifecycle.Config{
		MaxExpirationDays:  cfg.MaxExpirationDays,
		VerificationTTL:    cfg.VerificationTTL(),
		CodeTTL:            cfg.CodeTTL(),
		RequireCode:        cfg.RequireCode,
		ExposeCode:         cfg.DevExposeCode,
		VerificationSecret: cfg.VerificationSecret,
		PublicBaseURL:      cfg.PublicBaseURL,
		LegalBasis:         cfg.LegalBasis,
		Location:           cfg.Location(),
	}, st, signatures,
		lifecycle.WithLogger(logger),
		lifecycle.WithAttemptLimiter(limiter),
		lifecycle.WithArtifacts(arts),
		lifecycle.WithPublisher(publisher),
		lifecycle.WithCodeSender(codes),
	)
	if err != nil {
		return err
	}

	srv := &server{
		svc:          svc,
		idem:         st,
		operators:    authn.NewOperatorAuthenticator(cfg.OperatorJWTSecret, cfg.OperatorJWTIssuer),
		publicRate:   httpx.NewIPRateLimiter(cfg.PublicRateLimitPerSecond, cfg.PublicRateBurst),
		maxBody:      cfg.MaxBodyBytes,
		secureCookie: strings.HasPrefix(cfg.PublicBaseURL, "https://"),
		logger:       logger.With("component", "http"),
	}

	go svc.RunExpirySweeper(ctx, cfg.ExpirySweepInterval())
	go janitor(ctx, srv.publicRate, fixed)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("esign listening", "port", cfg.Port, "storage", cfg.StorageDriver)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(sctx)
}

func openBackend(ctx context.Context, cfg config.Config) (backend, func(), error) {
	switch cfg.StorageDriver {
	case "sqlite":
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store.NewSQLite(conn), func() { _ = conn.Close() }, nil
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewPostgres(pool), pool.Close, nil
	}
}

// janitor drops idle per-IP buckets and finished attempt windows.
func janitor(ctx context.Context, ips *httpx.IPRateLimiter, windows *attempts.FixedWindow) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			ips.Prune()
			windows.Sweep(now.UTC())
		}
	}
}
