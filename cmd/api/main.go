package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	_ "github.com/lib/pq" // postgres driver
	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nyashahama/smartsendr-backend/internal/ai"
	"github.com/nyashahama/smartsendr-backend/internal/api"
	"github.com/nyashahama/smartsendr-backend/internal/auth"
	"github.com/nyashahama/smartsendr-backend/internal/config"
	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/draft"
	"github.com/nyashahama/smartsendr-backend/internal/email"
	"github.com/nyashahama/smartsendr-backend/internal/gmail"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
	"github.com/nyashahama/smartsendr-backend/internal/ratelimit"
	"github.com/nyashahama/smartsendr-backend/internal/resume"
	"github.com/nyashahama/smartsendr-backend/internal/send"
	"github.com/nyashahama/smartsendr-backend/internal/store"
	stripeinternal "github.com/nyashahama/smartsendr-backend/internal/stripe"
	"github.com/nyashahama/smartsendr-backend/internal/token"
	"github.com/nyashahama/smartsendr-backend/internal/worker"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	// JSON in production, pretty text in development.
	var logger *slog.Logger
	if os.Getenv("ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Env, "port", cfg.Port, "version", cfg.Version)

	// Root context cancelled by OS signal. Worker and servers all respect it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, queries, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	// ── Store (atomic multi-step writes) ──────────────────────────────────────
	st := store.New(pool, queries)

	// ── Usage quota ───────────────────────────────────────────────────────────
	tracker := quota.NewTracker(queries, st, logger)

	// ── Gmail ─────────────────────────────────────────────────────────────────
	tokens := token.NewManager(queries, token.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
	}.OAuthConfig(), logger)
	gmailClient := gmail.NewClient()

	// ── AI ────────────────────────────────────────────────────────────────────
	// Gemini is primary. Anthropic is the fallback when ANTHROPIC_API_KEY is
	// also set.
	var llm ai.Completer
	switch {
	case cfg.GeminiAPIKey != "" && cfg.AnthropicAPIKey != "":
		primary := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		secondary := ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		llm = ai.NewFallbackCompleter(primary, secondary, logger)
		logger.Info("ai: using Gemini with Anthropic fallback")
	case cfg.GeminiAPIKey != "":
		llm = ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
		logger.Info("ai: using Gemini only")
	default:
		llm = ai.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		logger.Info("ai: using Anthropic only")
	}

	// ── Résumé storage (S3) ───────────────────────────────────────────────────
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
	if err != nil {
		return fmt.Errorf("aws session: %w", err)
	}
	resumes := resume.NewFromSession(sess, cfg.S3Bucket)

	// ── Email (Resend) ────────────────────────────────────────────────────────
	mailer := email.NewNoop()
	if cfg.ResendAPIKey != "" {
		mailer = email.NewResendClient(cfg.ResendAPIKey, cfg.EmailFromAddr, cfg.EmailFromName, cfg.FrontendURL)
	} else {
		logger.Info("email: RESEND_API_KEY not set, notifications disabled")
	}

	// ── Drafting and sending ──────────────────────────────────────────────────
	orchestrator := draft.NewOrchestrator(queries, draft.NewGenerator(llm), resumes, cfg.PreviewConcurrency, logger)
	executor := send.NewExecutor(send.Options{
		Querier:     queries,
		Quota:       tracker,
		Tokens:      tokens,
		Sender:      gmailClient,
		Drafter:     orchestrator.Generator(),
		Resumes:     orchestrator,
		Notifier:    email.Notifier{Sender: mailer},
		Concurrency: cfg.SendConcurrency,
		Logger:      logger,
	})

	// ── Rate limiting (Redis, optional) ───────────────────────────────────────
	var limiter api.RateLimiter
	rdb, err := ratelimit.Open(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		limiter = ratelimit.New(rdb, cfg.RateLimitPerMinute)
		logger.Info("ratelimit: enabled", "per_minute", cfg.RateLimitPerMinute)
	}

	// ── Worker (monthly usage reset) ──────────────────────────────────────────
	rc := worker.DefaultRunnerConfig()
	rc.PollInterval = cfg.ResetPollInterval
	rc.MaxRetries = cfg.ResetMaxRetries
	runner := worker.NewRunner(worker.NewResetJob(tracker, logger), rc, logger)

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.NewServer(api.Deps{
		Querier: queries,
		Auth:    auth.NewVerifier(cfg.SupabaseJWTSecret),
		Quota:   tracker,
		Tokens:  tokens,
		Drafts:  orchestrator,
		Sender:  executor,
		Resumes: resumes,
		Billing: st,
		Stripe:  stripeinternal.NewClient(cfg.StripeSecretKey),
		Mailer:  mailer,
		Limiter: limiter,
	}, api.Config{
		Env:                 cfg.Env,
		Version:             cfg.Version,
		FrontendURL:         cfg.FrontendURL,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		StripePriceID:       cfg.StripePriceID,
		SoftLaunch:          cfg.SoftLaunch,
		UsageResetToken:     cfg.UsageResetToken,
	}, logger)

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // batch sends draft and deliver sequentially
		IdleTimeout:  120 * time.Second,
	}

	// ── gRPC health (same port) ───────────────────────────────────────────────
	healthSrv := health.NewServer()
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	mux := cmux.New(lis)
	grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := mux.Match(cmux.Any())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := grpcSrv.Serve(grpcL); err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, cmux.ErrListenerClosed) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(httpL); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("server listening", "addr", lis.Addr().String())
		if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("cmux: %w", err)
		}
		return nil
	})

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		healthSrv.Shutdown()

		// Give in-flight HTTP requests up to 20 seconds to finish.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		mux.Close()
		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// openDB opens the connection pool and verifies it is reachable.
func openDB(dsn string) (*sql.DB, *db.Queries, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}

	// Tune the connection pool.
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)
	pool.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	return pool, db.New(pool), nil
}
