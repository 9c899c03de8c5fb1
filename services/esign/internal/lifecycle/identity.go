package lifecycle

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/authn"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

const (
	grantAudience = "esign.sign"
	grantIssuer   = "esign"
)

type Origin struct {
	IP        string
	UserAgent string
}

type VerifyInput struct {
	Token     string
	CPF       string
	BirthDate string
	Code      string
	Origin    Origin
}

// Verification is the short-lived proof that the signer passed the identity gate.
type Verification struct {
	DocumentID string
	Grant      string
	ExpiresAt  time.Time
}

type grantClaims struct {
	jwt.RegisteredClaims
	TokenHash string `json:"tkh"`
}

// VerifyIdentity checks the signer's CPF and birth date (and the one-time
// code when one is outstanding) against the employee record.
func (s *Service) VerifyIdentity(ctx context.Context, in VerifyInput) (out Verification, err error) {
	ctx, span := s.startSpan(ctx, "VerifyIdentity")
	defer func() { endSpan(span, err) }()

	tokenHash := authn.HashToken(strings.TrimSpace(in.Token))
	allowed, err := s.attempts.Allow(ctx, "verify:"+tokenHash)
	if err != nil {
		return Verification{}, fmt.Errorf("attempt limiter: %w", err)
	}
	if !allowed {
		s.logger.WarnContext(ctx, "identity verification rate limited", "token_sha256", tokenHash, "ip", in.Origin.IP)
		return Verification{}, domain.ErrRateLimited
	}

	doc, err := s.Resolve(ctx, in.Token)
	if err != nil {
		return Verification{}, err
	}
	span.SetAttributes(attribute.String("document.id", doc.ID))
	emp, err := s.store.GetEmployee(ctx, doc.EmployeeID)
	if err != nil {
		return Verification{}, err
	}

	now := s.clock()
	if !identityMatches(emp, in.CPF, in.BirthDate) {
		return Verification{}, s.reject(ctx, doc.ID, "identity_mismatch", in.Origin)
	}

	code, err := s.store.GetLatestCode(ctx, doc.ID)
	if err != nil {
		return Verification{}, fmt.Errorf("load verification code: %w", err)
	}
	active := code != nil && code.ConsumedAt == nil && !now.After(code.ExpiresAt)
	if s.cfg.RequireCode || active {
		if strings.TrimSpace(in.Code) == "" {
			return Verification{}, s.reject(ctx, doc.ID, "code_required", in.Origin)
		}
		if !active || subtle.ConstantTimeCompare([]byte(code.CodeHash), []byte(codeHash(doc.ID, in.Code))) != 1 {
			return Verification{}, s.reject(ctx, doc.ID, "code_invalid", in.Origin)
		}
		consumed, err := s.store.ConsumeCode(ctx, code.CodeID, now)
		if err != nil {
			return Verification{}, fmt.Errorf("consume verification code: %w", err)
		}
		if !consumed {
			return Verification{}, s.reject(ctx, doc.ID, "code_reused", in.Origin)
		}
	}

	expiresAt := now.Add(s.cfg.VerificationTTL)
	if expiresAt.After(doc.ExpiresAt) {
		expiresAt = doc.ExpiresAt
	}
	grant, err := s.issueGrant(doc.ID, tokenHash, now, expiresAt)
	if err != nil {
		return Verification{}, err
	}
	s.addEvent(ctx, doc.ID, domain.EventIdentityVerified, domain.ActorSigner, map[string]any{
		"ip":         in.Origin.IP,
		"user_agent": in.Origin.UserAgent,
		"with_code":  s.cfg.RequireCode || active,
	})
	return Verification{DocumentID: doc.ID, Grant: grant, ExpiresAt: expiresAt}, nil
}

func (s *Service) reject(ctx context.Context, documentID, reason string, origin Origin) error {
	s.addEvent(ctx, documentID, domain.EventIdentityRejected, domain.ActorSigner, map[string]any{
		"reason":     reason,
		"ip":         origin.IP,
		"user_agent": origin.UserAgent,
	})
	s.logger.WarnContext(ctx, "identity rejected", "document_id", documentID, "reason", reason, "ip", origin.IP)
	return domain.ErrIdentityRejected
}

func identityMatches(emp domain.Employee, cpf, birthDate string) bool {
	want := domain.DigitsOnly(emp.CPF)
	got := domain.DigitsOnly(cpf)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return false
	}
	wantDate, err := domain.NormalizeBirthDate(emp.BirthDate)
	if err != nil {
		return false
	}
	gotDate, err := domain.NormalizeBirthDate(birthDate)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(wantDate), []byte(gotDate)) == 1
}

func (s *Service) issueGrant(documentID, tokenHash string, now, expiresAt time.Time) (string, error) {
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   documentID,
			Issuer:    grantIssuer,
			Audience:  jwt.ClaimStrings{grantAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenHash: tokenHash,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.VerificationSecret))
	if err != nil {
		return "", fmt.Errorf("sign verification grant: %w", err)
	}
	return signed, nil
}

// verifyGrant checks that grant was issued for this document through this token.
func (s *Service) verifyGrant(grant, documentID, token string) error {
	var claims grantClaims
	tok, err := jwt.ParseWithClaims(strings.TrimSpace(grant), &claims,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.VerificationSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(grantAudience),
		jwt.WithIssuer(grantIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return domain.ErrIdentityNotVerified
	}
	if claims.Subject != documentID {
		return domain.ErrIdentityNotVerified
	}
	want := authn.HashToken(strings.TrimSpace(token))
	if subtle.ConstantTimeCompare([]byte(claims.TokenHash), []byte(want)) != 1 {
		return domain.ErrIdentityNotVerified
	}
	return nil
}

// Challenge describes where a one-time code was sent.
type Challenge struct {
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
}

// IssueCode creates a fresh one-time code for the document behind token and
// delivers it to the employee's contact on file. Earlier codes stop counting.
func (s *Service) IssueCode(ctx context.Context, token string, origin Origin) (ch Challenge, err error) {
	ctx, span := s.startSpan(ctx, "IssueCode")
	defer func() { endSpan(span, err) }()

	tokenHash := authn.HashToken(strings.TrimSpace(token))
	allowed, err := s.attempts.Allow(ctx, "code:"+tokenHash)
	if err != nil {
		return Challenge{}, fmt.Errorf("attempt limiter: %w", err)
	}
	if !allowed {
		return Challenge{}, domain.ErrRateLimited
	}
	doc, err := s.Resolve(ctx, token)
	if err != nil {
		return Challenge{}, err
	}
	emp, err := s.store.GetEmployee(ctx, doc.EmployeeID)
	if err != nil {
		return Challenge{}, err
	}
	channel, recipient := contactFor(emp)
	if channel == "" {
		return Challenge{}, fmt.Errorf("%w: employee has no email or phone on file", domain.ErrInvalidArgument)
	}
	code, err := randomVerificationCode()
	if err != nil {
		return Challenge{}, err
	}
	now := s.clock()
	otp := domain.OneTimeCode{
		CodeID:     "otp_" + uuid.NewString(),
		DocumentID: doc.ID,
		CodeHash:   codeHash(doc.ID, code),
		ExpiresAt:  now.Add(s.cfg.CodeTTL),
		CreatedAt:  now,
	}
	if err := s.store.CreateCode(ctx, otp); err != nil {
		return Challenge{}, fmt.Errorf("store verification code: %w", err)
	}
	if err := s.codes.SendCode(ctx, CodeDelivery{
		DocumentID: doc.ID,
		Channel:    channel,
		Recipient:  recipient,
		Code:       code,
		ExpiresAt:  otp.ExpiresAt,
	}); err != nil {
		// An undelivered code must not gate verification.
		if _, cerr := s.store.ConsumeCode(ctx, otp.CodeID, now); cerr != nil {
			s.logger.ErrorContext(ctx, "invalidate undelivered code", "document_id", doc.ID, "err", cerr)
		}
		return Challenge{}, fmt.Errorf("deliver verification code: %w", err)
	}
	masked := maskRecipient(channel, recipient)
	s.addEvent(ctx, doc.ID, domain.EventCodeIssued, domain.ActorSigner, map[string]any{
		"channel":   channel,
		"recipient": masked,
		"ip":        origin.IP,
	})
	ch = Challenge{Channel: channel, Recipient: masked, ExpiresAt: otp.ExpiresAt}
	if s.cfg.ExposeCode {
		ch.Code = code
	}
	return ch, nil
}

