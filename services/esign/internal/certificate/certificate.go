package certificate

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/evidencehash"
)

const DefaultLegalBasis = "Assinatura eletrônica simples nos termos do art. 4º, I, da Lei nº 14.063/2020 e da MP nº 2.200-2/2001, art. 10, § 2º."

type Signer struct {
	Name      string `json:"name"`
	CPF       string `json:"cpf"`
	BirthDate string `json:"birth_date"`
}

type Origin struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// Metadata is the signing metadata folded into the digest, serialized with RFC 8785.
type Metadata struct {
	DocumentID      string `json:"document_id"`
	SignerName      string `json:"signer_name"`
	SignerCPF       string `json:"signer_cpf"`
	SignerBirthDate string `json:"signer_birth_date"`
	SignedAt        string `json:"signed_at"`
	SignatureType   string `json:"signature_type"`
}

type Certificate struct {
	Version            string               `json:"version"`
	Digest             string               `json:"digest"`
	DocumentID         string               `json:"document_id"`
	TemplateID         string               `json:"template_id"`
	EmployeeID         string               `json:"employee_id"`
	ContentHash        string               `json:"content_sha256"`
	SignatureImageHash string               `json:"signature_image_sha256"`
	MetadataHash       string               `json:"metadata_sha256"`
	Signer             Signer               `json:"signer"`
	SignatureType      domain.SignatureType `json:"signature_type"`
	SignedAt           time.Time            `json:"signed_at"`
	Origin             Origin               `json:"origin"`
	LegalBasis         string               `json:"legal_basis"`
	CertificateURL     string               `json:"certificate_url"`
}

// MetadataFor builds the digest metadata from stored evidence.
func MetadataFor(documentID string, ev domain.SigningEvidence) Metadata {
	return Metadata{
		DocumentID:      documentID,
		SignerName:      ev.SignedName,
		SignerCPF:       domain.DigitsOnly(ev.SignedCPF),
		SignerBirthDate: ev.SignedBirthDate,
		SignedAt:        ev.SignedAt.UTC().Format(time.RFC3339Nano),
		SignatureType:   string(ev.SignatureType),
	}
}

type Hashes struct {
	Content  string
	Image    string
	Metadata string
	Digest   string
}

// ComputeHashes recomputes every hash the certificate carries.
func ComputeHashes(content string, image []byte, meta Metadata) (Hashes, error) {
	metaHash, _, err := evidencehash.CanonicalSHA256(meta)
	if err != nil {
		return Hashes{}, fmt.Errorf("canonicalize signing metadata: %w", err)
	}
	h := Hashes{
		Content:  evidencehash.HashStringSHA256Hex(content),
		Image:    evidencehash.SHA256Hex(image),
		Metadata: metaHash,
	}
	h.Digest = evidencehash.ComputeCertificateDigest(evidencehash.CertificateVersion, h.Content, h.Image, h.Metadata)
	return h, nil
}

type Generator struct {
	LegalBasis    string
	PublicBaseURL string
}

func (g Generator) URLFor(digest string) string {
	raw, _ := evidencehash.ParseDigest(digest)
	return strings.TrimRight(g.PublicBaseURL, "/") + "/public/v1/certificates/" + raw
}

// Certify computes the certificate for a document about to be signed with ev.
func (g Generator) Certify(doc domain.GeneratedDocument, ev domain.SigningEvidence) (Certificate, error) {
	h, err := ComputeHashes(doc.GeneratedContent, ev.SignatureImage, MetadataFor(doc.ID, ev))
	if err != nil {
		return Certificate{}, err
	}
	legal := g.LegalBasis
	if strings.TrimSpace(legal) == "" {
		legal = DefaultLegalBasis
	}
	return Certificate{
		Version:            evidencehash.CertificateVersion,
		Digest:             h.Digest,
		DocumentID:         doc.ID,
		TemplateID:         doc.TemplateID,
		EmployeeID:         doc.EmployeeID,
		ContentHash:        h.Content,
		SignatureImageHash: h.Image,
		MetadataHash:       h.Metadata,
		Signer: Signer{
			Name:      ev.SignedName,
			CPF:       domain.FormatCPF(ev.SignedCPF),
			BirthDate: ev.SignedBirthDate,
		},
		SignatureType:  ev.SignatureType,
		SignedAt:       ev.SignedAt.UTC(),
		Origin:         Origin{IP: ev.SignedIP, UserAgent: ev.SignedUserAgent},
		LegalBasis:     legal,
		CertificateURL: g.URLFor(h.Digest),
	}, nil
}

// FromDocument rebuilds the certificate of a signed document and reports
// whether the recomputed digest equals the stored certificate hash.
func (g Generator) FromDocument(doc domain.GeneratedDocument) (Certificate, bool, error) {
	if doc.Status != domain.StatusSigned || doc.Signing == nil {
		return Certificate{}, false, fmt.Errorf("%w: document %s is not signed", domain.ErrInvalidStateTransition, doc.ID)
	}
	cert, err := g.Certify(doc, *doc.Signing)
	if err != nil {
		return Certificate{}, false, err
	}
	cert.CertificateURL = doc.Signing.CertificateURL
	return cert, DigestEqual(cert.Digest, doc.Signing.CertificateHash), nil
}

func DigestEqual(a, b string) bool {
	ra, okA := evidencehash.ParseDigest(a)
	rb, okB := evidencehash.ParseDigest(b)
	if !okA || !okB {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(ra), []byte(rb)) == 1
}
