// Package api implements the HTTP layer for SmartSendr.
// Handlers are methods on *Server. Each handler file is responsible for one
// resource group and only imports the dependencies it actually uses.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nyashahama/smartsendr-backend/internal/auth"
	"github.com/nyashahama/smartsendr-backend/internal/db"
	"github.com/nyashahama/smartsendr-backend/internal/draft"
	"github.com/nyashahama/smartsendr-backend/internal/email"
	"github.com/nyashahama/smartsendr-backend/internal/quota"
	"github.com/nyashahama/smartsendr-backend/internal/resume"
	"github.com/nyashahama/smartsendr-backend/internal/send"
	"github.com/nyashahama/smartsendr-backend/internal/store"
	stripeinternal "github.com/nyashahama/smartsendr-backend/internal/stripe"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env     string
	Version string

	// FrontendURL is the browser origin; used for CORS and redirects.
	FrontendURL string

	// StripeWebhookSecret is the signing secret from the Stripe dashboard.
	StripeWebhookSecret string
	StripePriceID       string
	// SoftLaunch disables checkout.
	SoftLaunch bool

	// UsageResetToken authorizes the manual usage reset.
	UsageResetToken string

	// RequestTimeout bounds every request. Default: 2 minutes.
	RequestTimeout time.Duration
}

// ─── DEPENDENCY INTERFACES ────────────────────────────────────────────────────

// QuotaService is the subset of *quota.Tracker the handlers use.
type QuotaService interface {
	UsageStats(ctx context.Context, userID uuid.UUID) quota.Stats
	CheckEmailLimit(ctx context.Context, userID uuid.UUID, n int) (quota.Check, error)
	IsPremium(ctx context.Context, userID uuid.UUID) (bool, error)
	ResetMonthlyUsage(ctx context.Context) (int64, error)
	ResetIfDue(ctx context.Context) (int64, bool, error)
}

// TokenService is the subset of *token.Manager the handlers use.
type TokenService interface {
	Refresh(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error)
	AuthCodeURL(state string) string
	Connect(ctx context.Context, userID uuid.UUID, code string) (*oauth2.Token, error)
}

// Previewer is the subset of *draft.Orchestrator the handlers use.
type Previewer interface {
	Preview(ctx context.Context, userID, contactID uuid.UUID) (draft.Draft, bool, error)
	PreviewBatch(ctx context.Context, userID uuid.UUID, contactIDs []uuid.UUID) (*draft.BatchSession, error)
}

// BatchSender is the subset of *send.Executor the handlers use.
type BatchSender interface {
	SendBatch(ctx context.Context, req send.Request) (send.Outcome, error)
}

// ResumeStore is the subset of *resume.Store the handlers use.
type ResumeStore interface {
	List(ctx context.Context, userID uuid.UUID) ([]resume.File, error)
	Upload(ctx context.Context, userID uuid.UUID, name string, body io.Reader) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, userID uuid.UUID, name string) (string, error)
}

// BillingStore is the subset of *store.Store the billing handlers use.
type BillingStore interface {
	LinkCustomer(ctx context.Context, userID uuid.UUID, create func(ctx context.Context) (string, error)) (string, error)
	SyncSubscription(ctx context.Context, p store.SyncSubscriptionParams) (db.Subscription, error)
}

// RateLimiter is satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, scope, key string) (bool, error)
}

// Deps holds every collaborator of the Server.
type Deps struct {
	Querier db.Querier
	Auth    *auth.Verifier
	Quota   QuotaService
	Tokens  TokenService
	Drafts  Previewer
	Sender  BatchSender
	Resumes ResumeStore
	Billing BillingStore
	Stripe  stripeinternal.Client
	Mailer  email.Sender
	Limiter RateLimiter // may be nil
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	// q handles all single-query reads. Injected directly; no repo wrapper.
	q db.Querier

	auth    *auth.Verifier
	quota   QuotaService
	tokens  TokenService
	drafts  Previewer
	sender  BatchSender
	resumes ResumeStore
	billing BillingStore
	stripe  stripeinternal.Client
	mailer  email.Sender
	limiter RateLimiter

	cfg     Config
	logger  *slog.Logger
	started time.Time
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.Serve.
func NewServer(d Deps, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if d.Mailer == nil {
		d.Mailer = email.NewNoop()
	}
	s := &Server{
		q:       d.Querier,
		auth:    d.Auth,
		quota:   d.Quota,
		tokens:  d.Tokens,
		drafts:  d.Drafts,
		sender:  d.Sender,
		resumes: d.Resumes,
		billing: d.Billing,
		stripe:  d.Stripe,
		mailer:  d.Mailer,
		limiter: d.Limiter,
		cfg:     cfg,
		logger:  logger,
		started: time.Now(),
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Cron and operator reset; bearer secret checked inside the handler.
		r.Get("/reset-usage", s.handleResetUsage)
		r.Post("/reset-usage", s.handleResetUsage)

		// Stripe webhook; signature verification inside the handler.
		r.Post("/webhooks/stripe", s.handleStripeWebhook)

		// Google redirects here; the signed state identifies the user.
		r.Get("/auth/google/callback", s.handleGoogleCallback)

		// Authenticated routes.
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/usage", s.handleUsage)

			r.With(s.rateLimit("preview")).Post("/generate-preview", s.handleGeneratePreview)
			r.With(s.rateLimit("preview")).Post("/preview-batch", s.handlePreviewBatch)
			r.With(s.rateLimit("send")).Post("/send-emails", s.handleSendEmails)

			r.Post("/refresh-gmail-token", s.handleRefreshGmailToken)
			r.Get("/auth/google/start", s.handleGoogleStart)

			r.Get("/resumes", s.handleListResumes)
			r.Post("/resumes", s.handleUploadResume)
			r.Put("/resumes/active", s.handleSelectResume)
			r.Delete("/resumes/{name}", s.handleDeleteResume)

			r.Get("/contacts", s.handleListContacts)
			r.Post("/contacts/import", s.handleImportContacts)

			r.Post("/billing/checkout", s.handleCreateCheckout)
		})
	})

	return r
}
