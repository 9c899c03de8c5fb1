package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/render"
)

type GenerateInput struct {
	TemplateID     string
	EmployeeID     string
	ExpirationDays int
	ActorID        string
}

type Generated struct {
	Document domain.GeneratedDocument
	Token    string
	SignURL  string
}

// Preview renders a template for an employee without persisting anything.
func (s *Service) Preview(ctx context.Context, templateID, employeeID string) (string, error) {
	tpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}
	vars, err := s.resolver.Resolve(ctx, employeeID)
	if err != nil {
		return "", err
	}
	return render.Render(tpl.Content, vars), nil
}

func (s *Service) Generate(ctx context.Context, in GenerateInput) (out Generated, err error) {
	ctx, span := s.startSpan(ctx, "Generate", attribute.String("template.id", in.TemplateID))
	defer func() { endSpan(span, err) }()

	if in.ExpirationDays < 1 || in.ExpirationDays > s.cfg.MaxExpirationDays {
		return Generated{}, fmt.Errorf("%w: expiration_days must be between 1 and %d", domain.ErrInvalidArgument, s.cfg.MaxExpirationDays)
	}
	tpl, err := s.store.GetTemplate(ctx, in.TemplateID)
	if err != nil {
		return Generated{}, err
	}
	if !tpl.Active {
		return Generated{}, fmt.Errorf("%w: template %s is inactive", domain.ErrTemplateNotFound, tpl.ID)
	}
	vars, err := s.resolver.Resolve(ctx, in.EmployeeID)
	if err != nil {
		return Generated{}, err
	}
	if unknown := render.UnknownPlaceholders(tpl.Content); len(unknown) > 0 {
		s.logger.WarnContext(ctx, "template has unknown placeholders", "template_id", tpl.ID, "placeholders", unknown)
	}
	token, err := NewAccessToken()
	if err != nil {
		return Generated{}, err
	}

	now := s.clock()
	doc := domain.GeneratedDocument{
		ID:               "doc_" + uuid.NewString(),
		TemplateID:       tpl.ID,
		EmployeeID:       in.EmployeeID,
		GeneratedContent: render.Render(tpl.Content, vars),
		Status:           domain.StatusDraft,
		Token:            token,
		ExpiresAt:        now.Add(time.Duration(in.ExpirationDays) * 24 * time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return Generated{}, fmt.Errorf("create document: %w", err)
	}
	span.SetAttributes(attribute.String("document.id", doc.ID))
	s.addEvent(ctx, doc.ID, domain.EventGenerated, in.ActorID, map[string]any{
		"template_id":     tpl.ID,
		"employee_id":     in.EmployeeID,
		"expiration_days": in.ExpirationDays,
		"content_sha256":  render.HashRendered(doc.GeneratedContent),
		"render_version":  render.DeterminismVersion,
	})
	s.logger.InfoContext(ctx, "document generated", "document_id", doc.ID, "template_id", tpl.ID, "expires_at", doc.ExpiresAt)
	return Generated{Document: doc, Token: token, SignURL: s.SignURL(token)}, nil
}

func (s *Service) Get(ctx context.Context, documentID string) (domain.GeneratedDocument, error) {
	return s.store.GetDocument(ctx, documentID)
}

func (s *Service) ListByEmployee(ctx context.Context, employeeID string) ([]domain.GeneratedDocument, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, fmt.Errorf("%w: employee_id is required", domain.ErrInvalidArgument)
	}
	return s.store.ListDocumentsByEmployee(ctx, employeeID)
}

func (s *Service) Events(ctx context.Context, documentID string) ([]domain.Event, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, documentID)
}

// Send releases the document to the employee. Re-sending a sent document is allowed.
func (s *Service) Send(ctx context.Context, documentID, actorID string) (doc domain.GeneratedDocument, err error) {
	ctx, span := s.startSpan(ctx, "Send", attribute.String("document.id", documentID))
	defer func() { endSpan(span, err) }()

	before, err := s.transition(ctx, documentID, actorID,
		[]domain.DocumentStatus{domain.StatusDraft, domain.StatusPendingSignature, domain.StatusSent}, domain.StatusSent)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	evType := domain.EventSent
	if before.Status == domain.StatusSent {
		evType = domain.EventResent
	}
	doc, err = s.store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	s.addEvent(ctx, doc.ID, evType, actorID, map[string]any{"from": string(before.Status)})
	s.publish(ctx, webhooks.EventDocumentSent, map[string]any{
		"document_id": doc.ID,
		"employee_id": doc.EmployeeID,
		"sign_url":    s.SignURL(doc.Token),
		"expires_at":  doc.ExpiresAt,
		"resend":      evType == domain.EventResent,
	})
	return doc, nil
}

// RequestSignature marks a draft as awaiting signature without notifying anyone.
func (s *Service) RequestSignature(ctx context.Context, documentID, actorID string) (domain.GeneratedDocument, error) {
	cur, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	if cur.Status == domain.StatusPendingSignature && !s.clock().After(cur.ExpiresAt) {
		return cur, nil
	}
	if _, err := s.transition(ctx, documentID, actorID, []domain.DocumentStatus{domain.StatusDraft}, domain.StatusPendingSignature); err != nil {
		return domain.GeneratedDocument{}, err
	}
	s.addEvent(ctx, documentID, domain.EventSignatureRequested, actorID, nil)
	return s.store.GetDocument(ctx, documentID)
}

func (s *Service) Cancel(ctx context.Context, documentID, actorID, reason string) (doc domain.GeneratedDocument, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", attribute.String("document.id", documentID))
	defer func() { endSpan(span, err) }()

	if _, err := s.transition(ctx, documentID, actorID, domain.NonTerminalStatuses(), domain.StatusCancelled); err != nil {
		return domain.GeneratedDocument{}, err
	}
	s.addEvent(ctx, documentID, domain.EventCancelled, actorID, map[string]any{"reason": strings.TrimSpace(reason)})
	s.publish(ctx, webhooks.EventDocumentCancelled, map[string]any{"document_id": documentID})
	return s.store.GetDocument(ctx, documentID)
}

// transition applies an operator status change as a conditional update and
// returns the document as it was before the change.
func (s *Service) transition(ctx context.Context, documentID, actorID string, from []domain.DocumentStatus, to domain.DocumentStatus) (domain.GeneratedDocument, error) {
	cur, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	now := s.clock()
	if !cur.Status.IsTerminal() && now.After(cur.ExpiresAt) {
		s.expire(ctx, cur, now)
		return domain.GeneratedDocument{}, fmt.Errorf("%w: document %s expired at %s", domain.ErrInvalidStateTransition, documentID, cur.ExpiresAt.Format(time.RFC3339))
	}
	if !domain.CanTransition(cur.Status, to) || !containsStatus(from, cur.Status) {
		return domain.GeneratedDocument{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, cur.Status, to)
	}
	ok, err := s.store.UpdateStatus(ctx, documentID, from, to, now)
	if err != nil {
		return domain.GeneratedDocument{}, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		latest, err := s.store.GetDocument(ctx, documentID)
		if err != nil {
			return domain.GeneratedDocument{}, err
		}
		return domain.GeneratedDocument{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, latest.Status, to)
	}
	s.logger.InfoContext(ctx, "document status changed", "document_id", documentID, "from", cur.Status, "to", to, "actor_id", actorID)
	return cur, nil
}

// SweepExpired marks every overdue non-terminal document as expired.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.store.ExpireDue(ctx, s.clock())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.addEvent(ctx, id, domain.EventExpired, domain.ActorSystem, map[string]any{"via": "sweep"})
		s.publish(ctx, webhooks.EventDocumentExpired, map[string]any{"document_id": id})
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "expired overdue documents", "count", len(ids))
	}
	return len(ids), nil
}

// RunExpirySweeper sweeps on every tick until ctx is done.
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "err", err)
			}
		}
	}
}

func containsStatus(xs []domain.DocumentStatus, v domain.DocumentStatus) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
