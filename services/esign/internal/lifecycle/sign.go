package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/evidencehash"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/certificate"
)

type SignInput struct {
	Token            string
	Grant            string
	SignedName       string
	SignedCPF        string
	SignedBirthDate  string
	SignatureType    domain.SignatureType
	SignaturePayload string
	Origin           Origin
}

type Signed struct {
	DocumentID  string
	Certificate certificate.Certificate
}

// Sign finalizes a document. The transition to signed and the evidence are
// written by one conditional update, so concurrent attempts have exactly one
// winner and the losers observe the terminal state.
func (s *Service) Sign(ctx context.Context, in SignInput) (out Signed, err error) {
	ctx, span := s.startSpan(ctx, "Sign")
	defer func() { endSpan(span, err) }()

	doc, err := s.Resolve(ctx, in.Token)
	if err != nil {
		return Signed{}, err
	}
	span.SetAttributes(attribute.String("document.id", doc.ID))
	if !doc.Status.AcceptsSignature() {
		return Signed{}, domain.ErrAlreadyFinalized
	}
	if err := s.verifyGrant(in.Grant, doc.ID, in.Token); err != nil {
		return Signed{}, err
	}
	name := strings.Join(strings.Fields(in.SignedName), " ")
	if name == "" {
		return Signed{}, fmt.Errorf("%w: signed_name is required", domain.ErrInvalidArgument)
	}
	if !in.SignatureType.Valid() {
		return Signed{}, fmt.Errorf("%w: unknown signature type %q", domain.ErrInvalidSignature, in.SignatureType)
	}
	emp, err := s.store.GetEmployee(ctx, doc.EmployeeID)
	if err != nil {
		return Signed{}, err
	}
	if !identityMatches(emp, in.SignedCPF, in.SignedBirthDate) {
		return Signed{}, s.reject(ctx, doc.ID, "signing_identity_mismatch", in.Origin)
	}
	birthDate, _ := domain.NormalizeBirthDate(in.SignedBirthDate)

	image, err := s.signatures.Normalize(in.SignatureType, in.SignaturePayload)
	if err != nil {
		return Signed{}, err
	}

	ev := domain.SigningEvidence{
		SignedName:      name,
		SignedCPF:       domain.DigitsOnly(in.SignedCPF),
		SignedBirthDate: birthDate,
		SignatureImage:  image,
		SignatureType:   in.SignatureType,
		SignedAt:        s.clock(),
		SignedIP:        in.Origin.IP,
		SignedUserAgent: in.Origin.UserAgent,
	}
	cert, err := s.certs.Certify(doc, ev)
	if err != nil {
		return Signed{}, err
	}
	ev.CertificateHash = cert.Digest
	ev.CertificateURL = cert.CertificateURL

	won, err := s.store.CompleteSigning(ctx, doc.ID, ev)
	if err != nil {
		return Signed{}, fmt.Errorf("complete signing: %w", err)
	}
	if !won {
		return Signed{}, s.lostSigningRace(ctx, doc.ID)
	}

	doc.Status = domain.StatusSigned
	doc.Signing = &ev
	s.archive(ctx, doc, cert)
	s.addEvent(ctx, doc.ID, domain.EventSigned, domain.ActorSigner, map[string]any{
		"certificate_hash": cert.Digest,
		"signature_type":   string(ev.SignatureType),
		"ip":               ev.SignedIP,
		"user_agent":       ev.SignedUserAgent,
	})
	s.publish(ctx, webhooks.EventDocumentSigned, map[string]any{
		"document_id":      doc.ID,
		"employee_id":      doc.EmployeeID,
		"certificate_hash": cert.Digest,
		"certificate_url":  cert.CertificateURL,
		"signed_at":        ev.SignedAt,
	})
	s.logger.InfoContext(ctx, "document signed", "document_id", doc.ID, "certificate_hash", cert.Digest)
	return Signed{DocumentID: doc.ID, Certificate: cert}, nil
}

func (s *Service) lostSigningRace(ctx context.Context, documentID string) error {
	latest, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	switch {
	case latest.Status == domain.StatusExpired:
		return domain.ErrExpiredToken
	case latest.Status.IsTerminal():
		return domain.ErrAlreadyFinalized
	case s.clock().After(latest.ExpiresAt):
		s.expire(ctx, latest, s.clock())
		return domain.ErrExpiredToken
	default:
		return domain.ErrAlreadyFinalized
	}
}

// archive copies the certificate and signature image into the artifact store.
// Failures are logged only; the database row is authoritative.
func (s *Service) archive(ctx context.Context, doc domain.GeneratedDocument, cert certificate.Certificate) {
	if s.artifacts == nil {
		return
	}
	bundle := certificate.Bundle{Certificate: cert, Content: doc.GeneratedContent, SignatureImage: doc.Signing.SignatureImage}
	raw, err := json.Marshal(bundle)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal certificate bundle", "document_id", doc.ID, "err", err)
		return
	}
	for _, blob := range [][]byte{raw, doc.Signing.SignatureImage} {
		if _, err := s.artifacts.Put(ctx, blob); err != nil {
			s.logger.WarnContext(ctx, "archive artifact", "document_id", doc.ID, "err", err)
		}
	}
}

// CertificateForDocument rebuilds the certificate bundle of a signed document
// and reports whether the recomputed digest still matches the stored one.
func (s *Service) CertificateForDocument(ctx context.Context, documentID string) (certificate.Bundle, bool, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return certificate.Bundle{}, false, err
	}
	return s.certs.Bundle(doc)
}

// LookupCertificate finds a signed document by its certificate digest.
func (s *Service) LookupCertificate(ctx context.Context, digest string) (certificate.Bundle, bool, error) {
	raw, ok := evidencehash.ParseDigest(digest)
	if !ok {
		return certificate.Bundle{}, false, fmt.Errorf("%w: malformed certificate digest", domain.ErrInvalidArgument)
	}
	doc, err := s.store.GetDocumentByCertificateHash(ctx, "sha256:"+raw)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return certificate.Bundle{}, false, domain.ErrDocumentNotFound
		}
		return certificate.Bundle{}, false, err
	}
	return s.certs.Bundle(doc)
}
