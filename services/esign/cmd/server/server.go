package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/authn"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/httpx"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/idempotency"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/lifecycle"
)

const (
	grantHeader = "X-Verification-Grant"
	grantCookie = "esign_grant"
)

type server struct {
	svc          *lifecycle.Service
	idem         idempotency.Store
	operators    *authn.OperatorAuthenticator
	publicRate   *httpx.IPRateLimiter
	maxBody      int64
	secureCookie bool
	logger       *slog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/esign/v1", func(api chi.Router) {
		api.Use(s.operators.Middleware)

		api.Post("/models/{model_id}/preview", s.handlePreview)
		api.Post("/documents", s.handleGenerate)
		api.Get("/documents", s.handleListDocuments)
		api.Get("/documents/{document_id}", s.handleGetDocument)
		api.Post("/documents/{document_id}:send", s.handleSend)
		api.Post("/documents/{document_id}:request-signature", s.handleRequestSignature)
		api.Post("/documents/{document_id}:cancel", s.handleCancel)
		api.Get("/documents/{document_id}/events", s.handleEvents)
		api.Get("/documents/{document_id}/certificate", s.handleDocumentCertificate)
	})

	r.Route("/public/v1", func(pub chi.Router) {
		pub.Use(s.publicRate.Middleware)

		pub.Get("/sign/{token}", s.handleSigningPage)
		pub.Post("/sign/{token}/code", s.handleIssueCode)
		pub.Post("/sign/{token}/verify", s.handleVerify)
		pub.Post("/sign/{token}/sign", s.handleSign)
		pub.Get("/certificates/{digest}", s.handleCertificateByDigest)
	})
	return r
}

func operatorID(r *http.Request) string {
	if op, ok := authn.OperatorFromContext(r.Context()); ok {
		return op.ID
	}
	return ""
}

// idempotent replays a stored response for a repeated Idempotency-Key and
// records the response of a first successful run.
func (s *server) idempotent(w http.ResponseWriter, r *http.Request, endpoint string, request any, run func() (int, any, error)) {
	actor := idempotency.ActorContext{
		OperatorID:     operatorID(r),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}
	rec, found, err := idempotency.Replay(r.Context(), s.idem, actor, endpoint, request)
	if errors.Is(err, idempotency.ErrKeyReused) {
		httpx.WriteError(w, http.StatusConflict, "IDEMPOTENCY_KEY_REUSED", err.Error(), nil)
		return
	}
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	if found {
		w.Header().Set("content-type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
		return
	}

	status, resp, err := run()
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	if err := idempotency.Save(r.Context(), s.idem, actor, endpoint, request, status, resp); err != nil {
		s.logger.WarnContext(r.Context(), "idempotency record not saved", "endpoint", endpoint, "err", err)
	}
	httpx.WriteJSON(w, status, resp)
}

func origin(r *http.Request) lifecycle.Origin {
	return lifecycle.Origin{IP: httpx.ClientIP(r), UserAgent: r.UserAgent()}
}

// readOptionalJSON accepts an empty body.
func (s *server) readOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return httpx.ReadJSONWithLimit(w, r, s.maxBody, dst)
}
