package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/idempotency"
)

// SQLite stores timestamps as Unix microseconds so range predicates compare integers.
type SQLite struct{ DB *sql.DB }

func NewSQLite(db *sql.DB) *SQLite { return &SQLite{DB: db} }

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullMicros(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func (s *SQLite) GetTemplate(ctx context.Context, templateID string) (domain.DocumentTemplate, error) {
	var t domain.DocumentTemplate
	var category string
	err := s.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM document_templates WHERE template_id=?`, templateID).
		Scan(&t.ID, &t.Name, &category, &t.Content, &t.RequiresSignature, &t.RequiresWitness, &t.WitnessCount, &t.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentTemplate{}, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, templateID)
		}
		return domain.DocumentTemplate{}, err
	}
	t.Category = domain.TemplateCategory(category)
	return t, nil
}

func (s *SQLite) UpsertTemplate(ctx context.Context, t domain.DocumentTemplate) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO document_templates(`+templateColumns+`)
VALUES(?,?,?,?,?,?,?,?)
ON CONFLICT (template_id) DO UPDATE SET
  name=excluded.name,
  category=excluded.category,
  content=excluded.content,
  requires_signature=excluded.requires_signature,
  requires_witness=excluded.requires_witness,
  witness_count=excluded.witness_count,
  active=excluded.active
`, t.ID, t.Name, string(t.Category), t.Content, t.RequiresSignature, t.RequiresWitness, t.WitnessCount, t.Active)
	return err
}

func (s *SQLite) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	var e domain.Employee
	err := s.DB.QueryRowContext(ctx, `
SELECT employee_id,name,cpf,rg,birth_date,email,phone,position,department,salary,admission_date,address,status
FROM employees WHERE employee_id=?
`, employeeID).Scan(&e.ID, &e.Name, &e.CPF, &e.RG, &e.BirthDate, &e.Email, &e.Phone, &e.Position, &e.Department, &e.Salary, &e.AdmissionDate, &e.Address, &e.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Employee{}, fmt.Errorf("%w: %s", domain.ErrEmployeeNotFound, employeeID)
		}
		return domain.Employee{}, err
	}
	return e, nil
}

func (s *SQLite) UpsertEmployee(ctx context.Context, e domain.Employee) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO employees(employee_id,name,cpf,rg,birth_date,email,phone,position,department,salary,admission_date,address,status)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (employee_id) DO UPDATE SET
  name=excluded.name, cpf=excluded.cpf, rg=excluded.rg, birth_date=excluded.birth_date,
  email=excluded.email, phone=excluded.phone, position=excluded.position, department=excluded.department,
  salary=excluded.salary, admission_date=excluded.admission_date, address=excluded.address, status=excluded.status
`, e.ID, e.Name, e.CPF, e.RG, e.BirthDate, e.Email, e.Phone, e.Position, e.Department, e.Salary, e.AdmissionDate, e.Address, statusOrActive(e.Status))
	return err
}

func (s *SQLite) GetCompany(ctx context.Context) (domain.Company, error) {
	var c domain.Company
	err := s.DB.QueryRowContext(ctx, `SELECT `+companyColumns+` FROM company_settings WHERE company_id=1`).
		Scan(&c.Name, &c.TradeName, &c.CNPJ, &c.Address, &c.City, &c.State, &c.LegalRepresentative)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.Company{}, err
	}
	return c, nil
}

func (s *SQLite) UpsertCompany(ctx context.Context, c domain.Company) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO company_settings(company_id,`+companyColumns+`)
VALUES(1,?,?,?,?,?,?,?)
ON CONFLICT (company_id) DO UPDATE SET
  name=excluded.name, trade_name=excluded.trade_name, cnpj=excluded.cnpj, address=excluded.address,
  city=excluded.city, state=excluded.state, legal_representative=excluded.legal_representative
`, c.Name, c.TradeName, c.CNPJ, c.Address, c.City, c.State, c.LegalRepresentative)
	return err
}

func (s *SQLite) CreateDocument(ctx context.Context, d domain.GeneratedDocument) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO generated_documents(document_id,template_id,employee_id,generated_content,status,token,expires_at,created_at,updated_at)
VALUES(?,?,?,?,?,?,?,?,?)
`, d.ID, d.TemplateID, d.EmployeeID, d.GeneratedContent, string(d.Status), d.Token, micros(d.ExpiresAt), micros(d.CreatedAt), micros(d.UpdatedAt))
	return err
}

func scanSQLiteDocument(row rowScanner) (domain.GeneratedDocument, error) {
	var r documentRecord
	var status string
	var expiresAt, createdAt, updatedAt int64
	var sentAt, cancelledAt, signedAt sql.NullInt64
	var signedName, signedCPF, signedBirthDate, signatureType, signedIP, signedUA, certHash, certURL sql.NullString
	err := row.Scan(&r.doc.ID, &r.doc.TemplateID, &r.doc.EmployeeID, &r.doc.GeneratedContent, &status, &r.doc.Token,
		&expiresAt, &createdAt, &updatedAt, &sentAt, &cancelledAt,
		&signedName, &signedCPF, &signedBirthDate, &r.signatureImage, &signatureType, &signedAt,
		&signedIP, &signedUA, &certHash, &certURL)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	r.doc.Status = domain.DocumentStatus(status)
	r.doc.ExpiresAt = fromMicros(expiresAt)
	r.doc.CreatedAt = fromMicros(createdAt)
	r.doc.UpdatedAt = fromMicros(updatedAt)
	r.sentAt = nullMicros(sentAt)
	r.cancelledAt = nullMicros(cancelledAt)
	r.signedAt = nullMicros(signedAt)
	r.signedName = nullString(signedName)
	r.signedCPF = nullString(signedCPF)
	r.signedBirthDate = nullString(signedBirthDate)
	r.signatureType = nullString(signatureType)
	r.signedIP = nullString(signedIP)
	r.signedUserAgent = nullString(signedUA)
	r.certificateHash = nullString(certHash)
	r.certificateURL = nullString(certURL)
	return r.build(), nil
}

func (s *SQLite) getDocumentWhere(ctx context.Context, where string, arg any) (domain.GeneratedDocument, error) {
	d, err := scanSQLiteDocument(s.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GeneratedDocument{}, domain.ErrDocumentNotFound
		}
		return domain.GeneratedDocument{}, err
	}
	return d, nil
}

func (s *SQLite) GetDocument(ctx context.Context, documentID string) (domain.GeneratedDocument, error) {
	return s.getDocumentWhere(ctx, `document_id=?`, documentID)
}

func (s *SQLite) GetDocumentByToken(ctx context.Context, token string) (domain.GeneratedDocument, error) {
	return s.getDocumentWhere(ctx, `token=?`, token)
}

func (s *SQLite) GetDocumentByCertificateHash(ctx context.Context, hash string) (domain.GeneratedDocument, error) {
	return s.getDocumentWhere(ctx, `certificate_hash=?`, hash)
}

func (s *SQLite) ListDocumentsByEmployee(ctx context.Context, employeeID string) ([]domain.GeneratedDocument, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE employee_id=? ORDER BY created_at DESC, document_id`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.GeneratedDocument{}
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLite) UpdateStatus(ctx context.Context, documentID string, from []domain.DocumentStatus, to domain.DocumentStatus, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	ts := micros(at)
	args := []any{string(to), ts, string(to), ts, string(to), ts, documentID}
	for _, st := range statusStrings(from) {
		args = append(args, st)
	}
	args = append(args, ts)
	res, err := s.DB.ExecContext(ctx, `
UPDATE generated_documents SET
  status=?,
  updated_at=?,
  sent_at=CASE WHEN ?='sent' THEN ? ELSE sent_at END,
  cancelled_at=CASE WHEN ?='cancelled' THEN ? ELSE cancelled_at END
WHERE document_id=? AND status IN (`+placeholders(len(from))+`) AND expires_at >= ?
`, args...)
	return affectedOne(res, err)
}

func (s *SQLite) ExpireIfDue(ctx context.Context, documentID string, now time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE generated_documents SET status='expired', updated_at=?
WHERE document_id=? AND status IN `+openStatuses+` AND expires_at < ?
`, micros(now), documentID, micros(now))
	return affectedOne(res, err)
}

func (s *SQLite) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
UPDATE generated_documents SET status='expired', updated_at=?
WHERE status IN `+openStatuses+` AND expires_at < ?
RETURNING document_id
`, micros(now), micros(now))
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

func (s *SQLite) CompleteSigning(ctx context.Context, documentID string, ev domain.SigningEvidence) (bool, error) {
	at := micros(ev.SignedAt)
	res, err := s.DB.ExecContext(ctx, `
UPDATE generated_documents SET
  status='signed',
  updated_at=?,
  signed_at=?,
  signed_name=?,
  signed_cpf=?,
  signed_birth_date=?,
  signature_image=?,
  signature_type=?,
  signed_ip=?,
  signed_user_agent=?,
  certificate_hash=?,
  certificate_url=?
WHERE document_id=? AND status IN ('pending_signature','sent') AND expires_at >= ?
`, at, at, ev.SignedName, ev.SignedCPF, ev.SignedBirthDate, ev.SignatureImage, string(ev.SignatureType),
		ev.SignedIP, ev.SignedUserAgent, ev.CertificateHash, ev.CertificateURL, documentID, at)
	return affectedOne(res, err)
}

func (s *SQLite) CreateCode(ctx context.Context, c domain.OneTimeCode) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO signing_codes(code_id,document_id,code_hash,expires_at,created_at)
VALUES(?,?,?,?,?)
`, c.CodeID, c.DocumentID, c.CodeHash, micros(c.ExpiresAt), micros(c.CreatedAt))
	return err
}

func (s *SQLite) GetLatestCode(ctx context.Context, documentID string) (*domain.OneTimeCode, error) {
	var c domain.OneTimeCode
	var expiresAt, createdAt int64
	var consumedAt sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
SELECT code_id,document_id,code_hash,expires_at,created_at,consumed_at
FROM signing_codes WHERE document_id=?
ORDER BY created_at DESC, rowid DESC LIMIT 1
`, documentID).Scan(&c.CodeID, &c.DocumentID, &c.CodeHash, &expiresAt, &createdAt, &consumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.ExpiresAt = fromMicros(expiresAt)
	c.CreatedAt = fromMicros(createdAt)
	c.ConsumedAt = nullMicros(consumedAt)
	return &c, nil
}

func (s *SQLite) ConsumeCode(ctx context.Context, codeID string, now time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `UPDATE signing_codes SET consumed_at=? WHERE code_id=? AND consumed_at IS NULL`, micros(now), codeID)
	return affectedOne(res, err)
}

func (s *SQLite) AddEvent(ctx context.Context, ev domain.Event) error {
	payload, err := marshalPayload(ev.Payload)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO document_events(event_id,document_id,type,actor_id,payload,created_at) VALUES(?,?,?,?,?,?)`,
		ev.EventID, ev.DocumentID, string(ev.Type), ev.ActorID, payload, micros(ev.CreatedAt))
	return err
}

func (s *SQLite) ListEvents(ctx context.Context, documentID string) ([]domain.Event, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT event_id,document_id,type,actor_id,payload,created_at FROM document_events WHERE document_id=? ORDER BY seq ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Event{}
	for rows.Next() {
		var ev domain.Event
		var typ, payload string
		var createdAt int64
		if err := rows.Scan(&ev.EventID, &ev.DocumentID, &typ, &ev.ActorID, &payload, &createdAt); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.Payload = unmarshalPayload([]byte(payload))
		ev.CreatedAt = fromMicros(createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLite) GetIdempotencyRecord(ctx context.Context, operatorID, key, endpoint string) (idempotency.Record, bool, error) {
	var rec idempotency.Record
	var body string
	err := s.DB.QueryRowContext(ctx, `
SELECT response_status,response_body,request_hash
FROM esign_idempotency_records
WHERE operator_id=? AND idempotency_key=? AND endpoint=?
`, operatorID, key, endpoint).Scan(&rec.Status, &body, &rec.RequestHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	rec.Body = []byte(body)
	return rec, true, nil
}

func (s *SQLite) SaveIdempotencyRecord(ctx context.Context, operatorID, key, endpoint string, rec idempotency.Record) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO esign_idempotency_records(operator_id,idempotency_key,endpoint,request_hash,response_status,response_body)
VALUES(?,?,?,?,?,?)
ON CONFLICT (operator_id,idempotency_key,endpoint) DO NOTHING
`, operatorID, key, endpoint, rec.RequestHash, rec.Status, string(rec.Body))
	return err
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
