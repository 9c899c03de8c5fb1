// Package store persists templates, employees, generated documents, one-time
// codes and the audit trail. Postgres is the production backend; SQLite
// backs local runs and tests.
package store

import (
	_ "embed"
	"encoding/json"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

//go:embed schema/postgres.sql
var postgresSchema string

//go:embed schema/sqlite.sql
var sqliteSchema string

const documentColumns = `document_id,template_id,employee_id,generated_content,status,token,expires_at,created_at,updated_at,sent_at,cancelled_at,
signed_name,signed_cpf,signed_birth_date,signature_image,signature_type,signed_at,signed_ip,signed_user_agent,certificate_hash,certificate_url`

const templateColumns = `template_id,name,category,content,requires_signature,requires_witness,witness_count,active`

const companyColumns = `name,trade_name,cnpj,address,city,state,legal_representative`

const openStatuses = `('draft','pending_signature','sent')`

type rowScanner interface {
	Scan(dest ...any) error
}

// documentRecord holds the nullable signing columns until the row is known to be signed.
type documentRecord struct {
	doc            domain.GeneratedDocument
	sentAt         *time.Time
	cancelledAt    *time.Time
	signedAt       *time.Time
	signatureImage []byte

	signedName      *string
	signedCPF       *string
	signedBirthDate *string
	signatureType   *string
	signedIP        *string
	signedUserAgent *string
	certificateHash *string
	certificateURL  *string
}

func (r *documentRecord) build() domain.GeneratedDocument {
	d := r.doc
	d.SentAt = utcPtr(r.sentAt)
	d.CancelledAt = utcPtr(r.cancelledAt)
	d.ExpiresAt = d.ExpiresAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	if d.Status == domain.StatusSigned && r.signedAt != nil {
		d.Signing = &domain.SigningEvidence{
			SignedName:      deref(r.signedName),
			SignedCPF:       deref(r.signedCPF),
			SignedBirthDate: deref(r.signedBirthDate),
			SignatureImage:  r.signatureImage,
			SignatureType:   domain.SignatureType(deref(r.signatureType)),
			SignedAt:        r.signedAt.UTC(),
			SignedIP:        deref(r.signedIP),
			SignedUserAgent: deref(r.signedUserAgent),
			CertificateHash: deref(r.certificateHash),
			CertificateURL:  deref(r.certificateURL),
		}
	}
	return d
}

func statusStrings(in []domain.DocumentStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func marshalPayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalPayload(b []byte) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}
