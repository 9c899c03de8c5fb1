package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/authn"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
)

const tokenBytes = 32

// NewAccessToken returns an unguessable URL-safe token with 256 bits of entropy.
func NewAccessToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Resolve maps a public token to a document that may still be signed.
// An overdue document is moved to expired here, before any other check.
func (s *Service) Resolve(ctx context.Context, token string) (doc domain.GeneratedDocument, err error) {
	ctx, span := s.startSpan(ctx, "Resolve")
	defer func() { endSpan(span, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.GeneratedDocument{}, domain.ErrTokenNotFound
	}
	doc, err = s.store.GetDocumentByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.GeneratedDocument{}, domain.ErrTokenNotFound
		}
		return domain.GeneratedDocument{}, err
	}
	now := s.clock()
	if !doc.Status.IsTerminal() && now.After(doc.ExpiresAt) {
		s.expire(ctx, doc, now)
		return domain.GeneratedDocument{}, domain.ErrExpiredToken
	}
	switch doc.Status {
	case domain.StatusExpired:
		return domain.GeneratedDocument{}, domain.ErrExpiredToken
	case domain.StatusSigned, domain.StatusCancelled:
		return domain.GeneratedDocument{}, domain.ErrAlreadyFinalized
	case domain.StatusDraft:
		s.logger.InfoContext(ctx, "token used before send", "document_id", doc.ID, "reason", "not_sent", "token_sha256", authn.HashToken(token))
		return domain.GeneratedDocument{}, domain.ErrTokenNotFound
	}
	return doc, nil
}

// expire flips an overdue document to expired. Only the caller that wins the
// conditional update records the event.
func (s *Service) expire(ctx context.Context, doc domain.GeneratedDocument, now time.Time) {
	ok, err := s.store.ExpireIfDue(ctx, doc.ID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "expire document", "document_id", doc.ID, "err", err)
		return
	}
	if !ok {
		return
	}
	s.addEvent(ctx, doc.ID, domain.EventExpired, domain.ActorSystem, map[string]any{
		"via":        "access",
		"expires_at": doc.ExpiresAt,
	})
	s.publish(ctx, webhooks.EventDocumentExpired, map[string]any{"document_id": doc.ID})
	s.logger.InfoContext(ctx, "document expired", "document_id", doc.ID, "expires_at", doc.ExpiresAt)
}

// SigningView is what the public signing page may show.
type SigningView struct {
	DocumentID   string                `json:"document_id"`
	TemplateName string                `json:"template_name"`
	EmployeeName string                `json:"employee_name"`
	Status       domain.DocumentStatus `json:"status"`
	ExpiresAt    time.Time             `json:"expires_at"`
	Verified     bool                  `json:"verified"`
	Content      string                `json:"content,omitempty"`
	CodeRequired bool                  `json:"code_required"`
}

// ViewByToken returns the signing page. Document content is only included
// once the caller presents a valid identity grant.
func (s *Service) ViewByToken(ctx context.Context, token, grant string) (SigningView, error) {
	doc, err := s.Resolve(ctx, token)
	if err != nil {
		return SigningView{}, err
	}
	emp, err := s.store.GetEmployee(ctx, doc.EmployeeID)
	if err != nil {
		return SigningView{}, err
	}
	view := SigningView{
		DocumentID:   doc.ID,
		EmployeeName: emp.Name,
		Status:       doc.Status,
		ExpiresAt:    doc.ExpiresAt,
		CodeRequired: s.cfg.RequireCode,
	}
	if tpl, err := s.store.GetTemplate(ctx, doc.TemplateID); err == nil {
		view.TemplateName = tpl.Name
	}
	if strings.TrimSpace(grant) != "" && s.verifyGrant(grant, doc.ID, token) == nil {
		view.Verified = true
		view.Content = doc.GeneratedContent
	}
	return view, nil
}
