package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/idempotency"
)

type Postgres struct{ DB *pgxpool.Pool }

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{DB: db} }

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

func (s *Postgres) GetTemplate(ctx context.Context, templateID string) (domain.DocumentTemplate, error) {
	var t domain.DocumentTemplate
	var category string
	err := s.DB.QueryRow(ctx, `SELECT `+templateColumns+` FROM document_templates WHERE template_id=$1`, templateID).
		Scan(&t.ID, &t.Name, &category, &t.Content, &t.RequiresSignature, &t.RequiresWitness, &t.WitnessCount, &t.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DocumentTemplate{}, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, templateID)
		}
		return domain.DocumentTemplate{}, err
	}
	t.Category = domain.TemplateCategory(category)
	return t, nil
}

func (s *Postgres) UpsertTemplate(ctx context.Context, t domain.DocumentTemplate) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO document_templates(`+templateColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (template_id) DO UPDATE SET
  name=EXCLUDED.name,
  category=EXCLUDED.category,
  content=EXCLUDED.content,
  requires_signature=EXCLUDED.requires_signature,
  requires_witness=EXCLUDED.requires_witness,
  witness_count=EXCLUDED.witness_count,
  active=EXCLUDED.active
`, t.ID, t.Name, string(t.Category), t.Content, t.RequiresSignature, t.RequiresWitness, t.WitnessCount, t.Active)
	return err
}

func (s *Postgres) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	var e domain.Employee
	err := s.DB.QueryRow(ctx, `
SELECT employee_id,name,cpf,rg,birth_date,email,phone,position,department,salary::float8,admission_date,address,status
FROM employees WHERE employee_id=$1
`, employeeID).Scan(&e.ID, &e.Name, &e.CPF, &e.RG, &e.BirthDate, &e.Email, &e.Phone, &e.Position, &e.Department, &e.Salary, &e.AdmissionDate, &e.Address, &e.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Employee{}, fmt.Errorf("%w: %s", domain.ErrEmployeeNotFound, employeeID)
		}
		return domain.Employee{}, err
	}
	return e, nil
}

func (s *Postgres) UpsertEmployee(ctx context.Context, e domain.Employee) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO employees(employee_id,name,cpf,rg,birth_date,email,phone,position,department,salary,admission_date,address,status)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (employee_id) DO UPDATE SET
  name=EXCLUDED.name, cpf=EXCLUDED.cpf, rg=EXCLUDED.rg, birth_date=EXCLUDED.birth_date,
  email=EXCLUDED.email, phone=EXCLUDED.phone, position=EXCLUDED.position, department=EXCLUDED.department,
  salary=EXCLUDED.salary, admission_date=EXCLUDED.admission_date, address=EXCLUDED.address, status=EXCLUDED.status
`, e.ID, e.Name, e.CPF, e.RG, e.BirthDate, e.Email, e.Phone, e.Position, e.Department, e.Salary, e.AdmissionDate, e.Address, statusOrActive(e.Status))
	return err
}

// GetCompany returns the company settings, or zero values when none are configured.
func (s *Postgres) GetCompany(ctx context.Context) (domain.Company, error) {
	var c domain.Company
	err := s.DB.QueryRow(ctx, `SELECT `+companyColumns+` FROM company_settings WHERE company_id=1`).
		Scan(&c.Name, &c.TradeName, &c.CNPJ, &c.Address, &c.City, &c.State, &c.LegalRepresentative)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.Company{}, err
	}
	return c, nil
}

func (s *Postgres) UpsertCompany(ctx context.Context, c domain.Company) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO company_settings(company_id,`+companyColumns+`)
VALUES(1,$1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (company_id) DO UPDATE SET
  name=EXCLUDED.name, trade_name=EXCLUDED.trade_name, cnpj=EXCLUDED.cnpj, address=EXCLUDED.address,
  city=EXCLUDED.city, state=EXCLUDED.state, legal_representative=EXCLUDED.legal_representative
`, c.Name, c.TradeName, c.CNPJ, c.Address, c.City, c.State, c.LegalRepresentative)
	return err
}

func (s *Postgres) CreateDocument(ctx context.Context, d domain.GeneratedDocument) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO generated_documents(document_id,template_id,employee_id,generated_content,status,token,expires_at,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, d.ID, d.TemplateID, d.EmployeeID, d.GeneratedContent, string(d.Status), d.Token, d.ExpiresAt, d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *Postgres) scanDocument(row rowScanner) (domain.GeneratedDocument, error) {
	var r documentRecord
	var status string
	err := row.Scan(&r.doc.ID, &r.doc.TemplateID, &r.doc.EmployeeID, &r.doc.GeneratedContent, &status, &r.doc.Token,
		&r.doc.ExpiresAt, &r.doc.CreatedAt, &r.doc.UpdatedAt, &r.sentAt, &r.cancelledAt,
		&r.signedName, &r.signedCPF, &r.signedBirthDate, &r.signatureImage, &r.signatureType, &r.signedAt,
		&r.signedIP, &r.signedUserAgent, &r.certificateHash, &r.certificateURL)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	r.doc.Status = domain.DocumentStatus(status)
	return r.build(), nil
}

func (s *Postgres) getDocumentWhere(ctx context.Context, where string, arg any) (domain.GeneratedDocument, error) {
	d, err := s.scanDocument(s.DB.QueryRow(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GeneratedDocument{}, domain.ErrDocumentNotFound
		}
		return domain.GeneratedDocument{}, err
	}
	return d, nil
}

func (s *Postgres) GetDocument(ctx context.Context, documentID string) (domain.GeneratedDocument, error) {
	return s.getDocumentWhere(ctx, `document_id=$1`, documentID)
}

func (s *Postgres) GetDocumentByToken(ctx context.Context, token string) (domain.GeneratedDocument, error) {
	return s.getDocumentWhere(ctx, `token=$1`, token)
}

func (s *Postgres) GetDocumentByCertificateHash(ctx context.Context, hash string) (domain.GeneratedDocument, error) {
	return s.getDocumentWhere(ctx, `certificate_hash=$1`, hash)
}

func (s *Postgres) ListDocumentsByEmployee(ctx context.Context, employeeID string) ([]domain.GeneratedDocument, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE employee_id=$1 ORDER BY created_at DESC, document_id`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.GeneratedDocument{}
	for rows.Next() {
		d, err := s.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateStatus(ctx context.Context, documentID string, from []domain.DocumentStatus, to domain.DocumentStatus, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE generated_documents SET
  status=$2,
  updated_at=$3,
  sent_at=CASE WHEN $2='sent' THEN $3 ELSE sent_at END,
  cancelled_at=CASE WHEN $2='cancelled' THEN $3 ELSE cancelled_at END
WHERE document_id=$1 AND status = ANY($4) AND expires_at >= $3
`, documentID, string(to), at, statusStrings(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) ExpireIfDue(ctx context.Context, documentID string, now time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE generated_documents SET status='expired', updated_at=$2
WHERE document_id=$1 AND status IN `+openStatuses+` AND expires_at < $2
`, documentID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
UPDATE generated_documents SET status='expired', updated_at=$1
WHERE status IN `+openStatuses+` AND expires_at < $1
RETURNING document_id
`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CompleteSigning writes the evidence and flips the status in one statement.
func (s *Postgres) CompleteSigning(ctx context.Context, documentID string, ev domain.SigningEvidence) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
UPDATE generated_documents SET
  status='signed',
  updated_at=$2,
  signed_at=$2,
  signed_name=$3,
  signed_cpf=$4,
  signed_birth_date=$5,
  signature_image=$6,
  signature_type=$7,
  signed_ip=$8,
  signed_user_agent=$9,
  certificate_hash=$10,
  certificate_url=$11
WHERE document_id=$1 AND status IN ('pending_signature','sent') AND expires_at >= $2
`, documentID, ev.SignedAt, ev.SignedName, ev.SignedCPF, ev.SignedBirthDate, ev.SignatureImage, string(ev.SignatureType),
		ev.SignedIP, ev.SignedUserAgent, ev.CertificateHash, ev.CertificateURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) CreateCode(ctx context.Context, c domain.OneTimeCode) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO signing_codes(code_id,document_id,code_hash,expires_at,created_at)
VALUES($1,$2,$3,$4,$5)
`, c.CodeID, c.DocumentID, c.CodeHash, c.ExpiresAt, c.CreatedAt)
	return err
}

func (s *Postgres) GetLatestCode(ctx context.Context, documentID string) (*domain.OneTimeCode, error) {
	var c domain.OneTimeCode
	err := s.DB.QueryRow(ctx, `
SELECT code_id,document_id,code_hash,expires_at,created_at,consumed_at
FROM signing_codes WHERE document_id=$1
ORDER BY created_at DESC, code_id DESC LIMIT 1
`, documentID).Scan(&c.CodeID, &c.DocumentID, &c.CodeHash, &c.ExpiresAt, &c.CreatedAt, &c.ConsumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.ConsumedAt = utcPtr(c.ConsumedAt)
	return &c, nil
}

func (s *Postgres) ConsumeCode(ctx context.Context, codeID string, now time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `UPDATE signing_codes SET consumed_at=$2 WHERE code_id=$1 AND consumed_at IS NULL`, codeID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) AddEvent(ctx context.Context, ev domain.Event) error {
	payload, err := marshalPayload(ev.Payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `INSERT INTO document_events(event_id,document_id,type,actor_id,payload,created_at) VALUES($1,$2,$3,$4,$5::jsonb,$6)`,
		ev.EventID, ev.DocumentID, string(ev.Type), ev.ActorID, payload, ev.CreatedAt)
	return err
}

func (s *Postgres) ListEvents(ctx context.Context, documentID string) ([]domain.Event, error) {
	rows, err := s.DB.Query(ctx, `SELECT event_id,document_id,type,actor_id,payload,created_at FROM document_events WHERE document_id=$1 ORDER BY seq ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Event{}
	for rows.Next() {
		var ev domain.Event
		var typ string
		var payload []byte
		if err := rows.Scan(&ev.EventID, &ev.DocumentID, &typ, &ev.ActorID, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.Payload = unmarshalPayload(payload)
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Postgres) GetIdempotencyRecord(ctx context.Context, operatorID, key, endpoint string) (idempotency.Record, bool, error) {
	var rec idempotency.Record
	err := s.DB.QueryRow(ctx, `
SELECT response_status,response_body,request_hash
FROM esign_idempotency_records
WHERE operator_id=$1 AND idempotency_key=$2 AND endpoint=$3
`, operatorID, key, endpoint).Scan(&rec.Status, &rec.Body, &rec.RequestHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Postgres) SaveIdempotencyRecord(ctx context.Context, operatorID, key, endpoint string, rec idempotency.Record) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO esign_idempotency_records(operator_id,idempotency_key,endpoint,request_hash,response_status,response_body)
VALUES($1,$2,$3,$4,$5,$6::jsonb)
ON CONFLICT (operator_id,idempotency_key,endpoint) DO NOTHING
`, operatorID, key, endpoint, rec.RequestHash, rec.Status, string(rec.Body))
	return err
}

func statusOrActive(s string) string {
	if s == "" {
		return "active"
	}
	return s
}
