package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/db"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/attempts"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/certificate"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/sigcapture"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/store"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	anaCPF     = "529.982.247-25"
	anaBirth   = "12/04/1990"
)

var t0 = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

const fixtures = `
company:
  name: Acme Indústria Ltda
  cnpj: "11222333000181"
  city: Campinas
employees:
  - id: emp_1
    name: Ana Souza
    cpf: "52998224725"
    birth_date: "1990-04-12"
    email: ana.souza@example.com
    salary: 3500
  - id: emp_2
    name: Bruno Lima
    cpf: "11144477735"
    birth_date: "1985-01-30"
templates:
  - id: tpl_nda
    name: Termo de confidencialidade
    category: confidentiality
    content: "<p>Eu, {{employee.name}}, CPF {{employee.cpf}}, salário {{employee.salary}}. {{custom.field}}</p>"
    active: true
  - id: tpl_old
    name: Old
    content: "<p>old</p>"
    active: false
`

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []webhooks.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev webhooks.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingSender struct {
	mu   sync.Mutex
	sent []CodeDelivery
	fail error
}

func (s *recordingSender) SendCode(_ context.Context, d CodeDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, d)
	return nil
}

func (s *recordingSender) last() CodeDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type harness struct {
	svc   *Service
	store *store.SQLite
	clock *fakeClock
	pub   *recordingPublisher
	codes *recordingSender
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	st := store.NewSQLite(conn)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	f, err := store.ParseFixtures([]byte(fixtures))
	require.NoError(t, err)
	require.NoError(t, store.ApplyFixtures(ctx, st, f))

	sig, err := sigcapture.New(0)
	require.NoError(t, err)
	h := &harness{store: st, clock: &fakeClock{t: t0}, pub: &recordingPublisher{}, codes: &recordingSender{}}
	cfg := Config{VerificationSecret: testSecret, PublicBaseURL: "https://rh.example.com/"}
	for _, m := range mutate {
		m(&cfg)
	}
	h.svc, err = New(cfg, st, sig,
		WithClock(h.clock.Now),
		WithPublisher(h.pub),
		WithCodeSender(h.codes),
		WithAttemptLimiter(attempts.NewFixedWindow(5, 15*time.Minute)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return h
}

// sentDocument generates a document for emp_1 at t0 and sends it.
func (h *harness) sentDocument(t *testing.T, days int) Generated {
	t.Helper()
	ctx := context.Background()
	g, err := h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: days, ActorID: "op_1"})
	require.NoError(t, err)
	_, err = h.svc.Send(ctx, g.Document.ID, "op_1")
	require.NoError(t, err)
	return g
}

func (h *harness) verify(t *testing.T, token string) Verification {
	t.Helper()
	v, err := h.svc.VerifyIdentity(context.Background(), VerifyInput{Token: token, CPF: anaCPF, BirthDate: anaBirth})
	require.NoError(t, err)
	return v
}

func (h *harness) signInput(token, grant string) SignInput {
	return SignInput{
		Token:            token,
		Grant:            grant,
		SignedName:       "Ana Souza",
		SignedCPF:        anaCPF,
		SignedBirthDate:  anaBirth,
		SignatureType:    domain.SignatureTyped,
		SignaturePayload: "Ana Souza",
		Origin:           Origin{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"},
	}
}

func eventTypes(t *testing.T, h *harness, documentID string) []domain.EventType {
	t.Helper()
	evs, err := h.svc.Events(context.Background(), documentID)
	require.NoError(t, err)
	var out []domain.EventType
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestGenerateRendersAndStartsAsDraft(t *testing.T) {
	h := newHarness(t)
	g, err := h.svc.Generate(context.Background(), GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: 7, ActorID: "op_1"})
	require.NoError(t, err)

	doc := g.Document
	assert.Equal(t, domain.StatusDraft, doc.Status)
	assert.Equal(t, t0.Add(7*24*time.Hour), doc.ExpiresAt)
	assert.Equal(t, "<p>Eu, Ana Souza, CPF 529.982.247-25, salário R$ 3.500,00. {{custom.field}}</p>", doc.GeneratedContent)
	assert.Len(t, g.Token, 43)
	assert.Equal(t, "https://rh.example.com/sign/"+g.Token, g.SignURL)

	stored, err := h.svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.GeneratedContent, stored.GeneratedContent)
	assert.Equal(t, []domain.EventType{domain.EventGenerated}, eventTypes(t, h, doc.ID))
}

func TestGenerateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: 31})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_missing", EmployeeID: "emp_1", ExpirationDays: 7})
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
	_, err = h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_old", EmployeeID: "emp_1", ExpirationDays: 7})
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
	_, err = h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_404", ExpirationDays: 7})
	assert.ErrorIs(t, err, domain.ErrEmployeeNotFound)

	docs, err := h.svc.ListByEmployee(ctx, "emp_1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTokensAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		tok, err := NewAccessToken()
		require.NoError(t, err)
		require.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestDraftTokenIsNotResolvable(t *testing.T) {
	h := newHarness(t)
	g, err := h.svc.Generate(context.Background(), GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: 7})
	require.NoError(t, err)

	_, err = h.svc.Resolve(context.Background(), g.Token)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	_, err = h.svc.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	_, err = h.svc.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestSendAndResend(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	doc, err := h.svc.Send(ctx, g.Document.ID, "op_2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, doc.Status)
	require.NotNil(t, doc.SentAt)
	assert.Equal(t, []domain.EventType{domain.EventGenerated, domain.EventSent, domain.EventResent}, eventTypes(t, h, doc.ID))
	assert.Equal(t, []string{webhooks.EventDocumentSent, webhooks.EventDocumentSent}, h.pub.types())
	assert.Equal(t, "https://rh.example.com/sign/"+g.Token, h.pub.events[0].Data["sign_url"])

	_, err = h.svc.RequestSignature(ctx, doc.ID, "op_1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestRequestSignatureIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g, err := h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: 7})
	require.NoError(t, err)

	doc, err := h.svc.RequestSignature(ctx, g.Document.ID, "op_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingSignature, doc.Status)
	doc, err = h.svc.RequestSignature(ctx, g.Document.ID, "op_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingSignature, doc.Status)

	_, err = h.svc.Resolve(ctx, g.Token)
	require.NoError(t, err)
}

func TestLazyExpiryOnAccess(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	h.clock.Set(t0.Add(7 * 24 * time.Hour))
	_, err := h.svc.Resolve(ctx, g.Token)
	require.NoError(t, err, "expiry is exclusive of the deadline instant")

	h.clock.Set(t0.Add(8 * 24 * time.Hour))
	_, err = h.svc.Resolve(ctx, g.Token)
	assert.ErrorIs(t, err, domain.ErrExpiredToken)

	doc, err := h.svc.Get(ctx, g.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, doc.Status)

	_, err = h.svc.Resolve(ctx, g.Token)
	assert.ErrorIs(t, err, domain.ErrExpiredToken)
	assert.Equal(t, []domain.EventType{domain.EventGenerated, domain.EventSent, domain.EventExpired}, eventTypes(t, h, doc.ID))
	assert.Contains(t, h.pub.types(), webhooks.EventDocumentExpired)

	_, err = h.svc.Send(ctx, doc.ID, "op_1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestOperatorTransitionOnOverdueDocumentExpiresIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g, err := h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_1", ExpirationDays: 1})
	require.NoError(t, err)

	h.clock.Set(t0.Add(48 * time.Hour))
	_, err = h.svc.Cancel(ctx, g.Document.ID, "op_1", "late")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	doc, err := h.svc.Get(ctx, g.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, doc.Status)
}

func TestSweepExpired(t *testing.T) {
	h := newHarness(t)
	h.sentDocument(t, 1)
	h.sentDocument(t, 10)

	h.clock.Set(t0.Add(3 * 24 * time.Hour))
	n, err := h.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = h.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIdentityGate(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	_, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: "111.444.777-35", BirthDate: anaBirth})
	assert.ErrorIs(t, err, domain.ErrIdentityRejected)
	_, err = h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: "1990-04-13"})
	assert.ErrorIs(t, err, domain.ErrIdentityRejected)

	view, err := h.svc.ViewByToken(ctx, g.Token, "")
	require.NoError(t, err)
	assert.False(t, view.Verified)
	assert.Empty(t, view.Content)
	assert.Equal(t, "Ana Souza", view.EmployeeName)

	v, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: "52998224725", BirthDate: "1990-04-12"})
	require.NoError(t, err)
	assert.Equal(t, t0.Add(15*time.Minute), v.ExpiresAt)

	view, err = h.svc.ViewByToken(ctx, g.Token, v.Grant)
	require.NoError(t, err)
	assert.True(t, view.Verified)
	assert.Contains(t, view.Content, "Ana Souza")

	types := eventTypes(t, h, g.Document.ID)
	assert.Equal(t, domain.EventIdentityRejected, types[2])
	assert.Equal(t, domain.EventIdentityVerified, types[len(types)-1])
}

func TestSignRequiresGrantForTheSameDocument(t *testing.T) {
	h := newHarness(t)
	a := h.sentDocument(t, 7)
	b := h.sentDocument(t, 7)
	ctx := context.Background()

	_, err := h.svc.Sign(ctx, h.signInput(a.Token, ""))
	assert.ErrorIs(t, err, domain.ErrIdentityNotVerified)

	grantB := h.verify(t, b.Token).Grant
	_, err = h.svc.Sign(ctx, h.signInput(a.Token, grantB))
	assert.ErrorIs(t, err, domain.ErrIdentityNotVerified)

	grantA := h.verify(t, a.Token).Grant
	h.clock.Set(t0.Add(16 * time.Minute))
	_, err = h.svc.Sign(ctx, h.signInput(a.Token, grantA))
	assert.ErrorIs(t, err, domain.ErrIdentityNotVerified, "grant outlived its TTL")
}

func TestSignMismatchedSignerIsRejected(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	grant := h.verify(t, g.Token).Grant

	in := h.signInput(g.Token, grant)
	in.SignedCPF = "111.444.777-35"
	_, err := h.svc.Sign(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrIdentityRejected)

	in = h.signInput(g.Token, grant)
	in.SignedName = "   "
	_, err = h.svc.Sign(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	in = h.signInput(g.Token, grant)
	in.SignaturePayload = " "
	_, err = h.svc.Sign(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrEmptySignature)

	doc, err := h.svc.Get(context.Background(), g.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, doc.Status)
	assert.Nil(t, doc.Signing)
}

func TestSignProducesRecomputableCertificate(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	grant := h.verify(t, g.Token).Grant
	ctx := context.Background()

	h.clock.Set(t0.Add(time.Hour + 123456789*time.Nanosecond))
	out, err := h.svc.Sign(ctx, h.signInput(g.Token, grant))
	require.NoError(t, err)
	assert.Equal(t, g.Document.ID, out.DocumentID)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, out.Certificate.Digest)

	doc, err := h.svc.Get(ctx, g.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSigned, doc.Status)
	require.True(t, doc.Signing.Complete())
	assert.Equal(t, out.Certificate.Digest, doc.Signing.CertificateHash)
	assert.Equal(t, "52998224725", doc.Signing.SignedCPF)
	assert.Equal(t, "1990-04-12", doc.Signing.SignedBirthDate)
	assert.Equal(t, t0.Add(time.Hour+123456*time.Microsecond), doc.Signing.SignedAt)

	bundle, ok, err := h.svc.CertificateForDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	report, err := certificate.VerifyBundle(bundle)
	require.NoError(t, err)
	assert.True(t, report.OK())

	byDigest, ok, err := h.svc.LookupCertificate(ctx, out.Certificate.Digest[len("sha256:"):])
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc.ID, byDigest.Certificate.DocumentID)

	_, _, err = h.svc.LookupCertificate(ctx, "zz")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Contains(t, h.pub.types(), webhooks.EventDocumentSigned)
}

func TestSignedDocumentIsLockedOut(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	grant := h.verify(t, g.Token).Grant
	ctx := context.Background()
	_, err := h.svc.Sign(ctx, h.signInput(g.Token, grant))
	require.NoError(t, err)

	_, err = h.svc.Sign(ctx, h.signInput(g.Token, grant))
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	_, err = h.svc.Resolve(ctx, g.Token)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	_, err = h.svc.Cancel(ctx, g.Document.ID, "op_1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = h.svc.Send(ctx, g.Document.ID, "op_1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	h.clock.Set(t0.Add(30 * 24 * time.Hour))
	_, err = h.svc.Resolve(ctx, g.Token)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized, "signed documents never expire")
}

func TestCancelledDocumentIsLockedOut(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	doc, err := h.svc.Cancel(ctx, g.Document.ID, "op_1", "wrong template")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, doc.Status)
	require.NotNil(t, doc.CancelledAt)

	_, err = h.svc.Resolve(ctx, g.Token)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	_, err = h.svc.Cancel(ctx, g.Document.ID, "op_1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestConcurrentSignsHaveOneWinner(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	grant := h.verify(t, g.Token).Grant

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Sign(context.Background(), h.signInput(g.Token, grant))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	}
	assert.Equal(t, 1, wins)

	signed := 0
	for _, typ := range eventTypes(t, h, g.Document.ID) {
		if typ == domain.EventSigned {
			signed++
		}
	}
	assert.Equal(t, 1, signed)
}

func TestSignRacingExpiryLoses(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 1)
	grant := h.verify(t, g.Token).Grant

	h.clock.Set(t0.Add(25 * time.Hour))
	_, err := h.svc.Sign(context.Background(), h.signInput(g.Token, grant))
	assert.ErrorIs(t, err, domain.ErrExpiredToken)
}

func TestVerificationIsRateLimitedPerToken(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	other := h.sentDocument(t, 7)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: "000", BirthDate: anaBirth})
		require.ErrorIs(t, err, domain.ErrIdentityRejected)
	}
	_, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth})
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	h.verify(t, other.Token)
}

func TestOneTimeCodeFlow(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RequireCode = true; c.ExposeCode = true })
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	_, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth})
	assert.ErrorIs(t, err, domain.ErrIdentityRejected, "code required before any was issued")

	ch, err := h.svc.IssueCode(ctx, g.Token, Origin{IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Equal(t, "email", ch.Channel)
	assert.Equal(t, "an***@example.com", ch.Recipient)
	assert.Len(t, ch.Code, 6)
	assert.Equal(t, ch.Code, h.codes.last().Code)

	wrong := "000000"
	if ch.Code == wrong {
		wrong = "111111"
	}
	_, err = h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth, Code: wrong})
	assert.ErrorIs(t, err, domain.ErrIdentityRejected)

	v, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth, Code: ch.Code})
	require.NoError(t, err)
	assert.NotEmpty(t, v.Grant)

	_, err = h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth, Code: ch.Code})
	assert.ErrorIs(t, err, domain.ErrIdentityRejected, "codes are single use")
}

func TestLapsedCodeFallsBackToIdentity(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ExposeCode = true })
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	ch, err := h.svc.IssueCode(ctx, g.Token, Origin{})
	require.NoError(t, err)
	_, err = h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth})
	assert.ErrorIs(t, err, domain.ErrIdentityRejected, "an outstanding code must be presented")

	h.clock.Set(t0.Add(11 * time.Minute))
	_, err = h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth, Code: ch.Code})
	require.NoError(t, err, "once the code lapses the gate falls back to CPF and birth date")
}

func TestUndeliveredCodeDoesNotBlockVerification(t *testing.T) {
	h := newHarness(t)
	g := h.sentDocument(t, 7)
	ctx := context.Background()

	h.codes.fail = errors.New("smtp down")
	_, err := h.svc.IssueCode(ctx, g.Token, Origin{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")

	v, err := h.svc.VerifyIdentity(ctx, VerifyInput{Token: g.Token, CPF: anaCPF, BirthDate: anaBirth})
	require.NoError(t, err)
	assert.NotEmpty(t, v.Grant)
}

func TestIssueCodeWithoutContact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g, err := h.svc.Generate(ctx, GenerateInput{TemplateID: "tpl_nda", EmployeeID: "emp_2", ExpirationDays: 7})
	require.NoError(t, err)
	_, err = h.svc.Send(ctx, g.Document.ID, "op_1")
	require.NoError(t, err)

	_, err = h.svc.IssueCode(ctx, g.Token, Origin{})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "ab***@x.com", maskEmail("ABC@x.com"))
	assert.Equal(t, "a***@x.com", maskEmail("a@x.com"))
	assert.Equal(t, "***", maskEmail("broken"))
	assert.Equal(t, "***4321", maskPhone("+55 (11) 98765-4321"))
	assert.Equal(t, "***", maskPhone("12"))
}
