// Package lifecycle owns the generated-document state machine: generation,
// operator transitions, token access, identity gating and signing.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/artifacts"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/observability"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/attempts"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/certificate"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/resolver"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/sigcapture"
)

// Store is the persistence the lifecycle needs. Conditional updates report
// whether a row matched so callers can tell a lost race from a failure.
type Store interface {
	GetTemplate(ctx context.Context, templateID string) (domain.DocumentTemplate, error)
	GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error)
	GetCompany(ctx context.Context) (domain.Company, error)

	CreateDocument(ctx context.Context, doc domain.GeneratedDocument) error
	GetDocument(ctx context.Context, documentID string) (domain.GeneratedDocument, error)
	GetDocumentByToken(ctx context.Context, token string) (domain.GeneratedDocument, error)
	GetDocumentByCertificateHash(ctx context.Context, hash string) (domain.GeneratedDocument, error)
	ListDocumentsByEmployee(ctx context.Context, employeeID string) ([]domain.GeneratedDocument, error)

	UpdateStatus(ctx context.Context, documentID string, from []domain.DocumentStatus, to domain.DocumentStatus, at time.Time) (bool, error)
	ExpireIfDue(ctx context.Context, documentID string, now time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
	CompleteSigning(ctx context.Context, documentID string, ev domain.SigningEvidence) (bool, error)

	CreateCode(ctx context.Context, code domain.OneTimeCode) error
	GetLatestCode(ctx context.Context, documentID string) (*domain.OneTimeCode, error)
	ConsumeCode(ctx context.Context, codeID string, now time.Time) (bool, error)

	AddEvent(ctx context.Context, ev domain.Event) error
	ListEvents(ctx context.Context, documentID string) ([]domain.Event, error)
}

type Config struct {
	MaxExpirationDays  int
	VerificationTTL    time.Duration
	CodeTTL            time.Duration
	RequireCode        bool
	ExposeCode         bool
	VerificationSecret string
	PublicBaseURL      string
	LegalBasis         string
	Location           *time.Location
}

func (c Config) withDefaults() Config {
	if c.MaxExpirationDays <= 0 {
		c.MaxExpirationDays = 30
	}
	if c.VerificationTTL <= 0 {
		c.VerificationTTL = 15 * time.Minute
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = 10 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return c
}

type Service struct {
	cfg        Config
	store      Store
	resolver   *resolver.Resolver
	signatures *sigcapture.Normalizer
	certs      certificate.Generator
	attempts   attempts.Limiter
	artifacts  artifacts.Store
	publisher  webhooks.Publisher
	codes      CodeSender
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "lifecycle") }
}

func WithAttemptLimiter(l attempts.Limiter) Option { return func(s *Service) { s.attempts = l } }

func WithArtifacts(a artifacts.Store) Option { return func(s *Service) { s.artifacts = a } }

func WithPublisher(p webhooks.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithCodeSender(c CodeSender) Option { return func(s *Service) { s.codes = c } }

func New(cfg Config, st Store, signatures *sigcapture.Normalizer, opts ...Option) (*Service, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.VerificationSecret) == "" {
		return nil, fmt.Errorf("verification secret is required")
	}
	if st == nil || signatures == nil {
		return nil, fmt.Errorf("store and signature normalizer are required")
	}
	s := &Service{
		cfg:        cfg,
		store:      st,
		signatures: signatures,
		certs:      certificate.Generator{LegalBasis: cfg.LegalBasis, PublicBaseURL: cfg.PublicBaseURL},
		attempts:   attempts.NewFixedWindow(5, 15*time.Minute),
		publisher:  webhooks.NopPublisher{},
		logger:     slog.Default().With("component", "lifecycle"),
		tracer:     observability.Tracer("esign/lifecycle"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		s.codes = LogCodeSender{Logger: s.logger}
	}
	s.resolver = resolver.New(st, cfg.Location, s.now)
	return s, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "esign."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !domain.IsExpected(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func (s *Service) addEvent(ctx context.Context, documentID string, typ domain.EventType, actorID string, payload map[string]any) {
	ev := domain.Event{
		EventID:    "evt_" + uuid.NewString(),
		DocumentID: documentID,
		Type:       typ,
		ActorID:    actorID,
		Payload:    payload,
		CreatedAt:  s.clock(),
	}
	if err := s.store.AddEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit event not recorded", "document_id", documentID, "type", typ, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]any) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pctx, webhooks.NewEvent(eventType, s.clock(), data)); err != nil {
		s.logger.WarnContext(ctx, "webhook not delivered", "type", eventType, "err", err)
	}
}

// SignURL is the public signing page for a token.
func (s *Service) SignURL(token string) string {
	return s.cfg.PublicBaseURL + "/sign/" + token
}
