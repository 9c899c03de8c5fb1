package certificate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

func signedDoc(t *testing.T, g Generator) domain.GeneratedDocument {
	t.Helper()
	doc := domain.GeneratedDocument{
		ID: "doc_1", TemplateID: "tpl_1", EmployeeID: "emp_1",
		GeneratedContent: "<p>Ana Silva - Acme Ltda</p>",
		Status:           domain.StatusSent,
	}
	ev := domain.SigningEvidence{
		SignedName: "Ana Silva", SignedCPF: "529.982.247-25", SignedBirthDate: "1990-05-17",
		SignatureImage: []byte("png-bytes"), SignatureType: domain.SignatureTyped,
		SignedAt: time.Date(2026, 10, 18, 12, 30, 0, 123456000, time.UTC),
		SignedIP: "203.0.113.7", SignedUserAgent: "Mozilla/5.0",
	}
	cert, err := g.Certify(doc, ev)
	require.NoError(t, err)
	ev.CertificateHash = cert.Digest
	ev.CertificateURL = cert.CertificateURL
	doc.Status = domain.StatusSigned
	doc.Signing = &ev
	return doc
}

func TestCertifyIsRecomputable(t *testing.T) {
	g := Generator{PublicBaseURL: "https://rh.example.com/"}
	doc := signedDoc(t, g)

	cert, ok, err := g.FromDocument(doc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc.Signing.CertificateHash, cert.Digest)
	assert.True(t, strings.HasPrefix(cert.Digest, "sha256:"))
	assert.True(t, strings.HasPrefix(cert.CertificateURL, "https://rh.example.com/public/v1/certificates/"))
	assert.Equal(t, DefaultLegalBasis, cert.LegalBasis)
	assert.Equal(t, "529.982.247-25", cert.Signer.CPF)
	assert.Equal(t, "203.0.113.7", cert.Origin.IP)
}

func TestTamperingBreaksVerification(t *testing.T) {
	g := Generator{PublicBaseURL: "https://rh.example.com"}

	content := signedDoc(t, g)
	content.GeneratedContent += " "
	_, ok, err := g.FromDocument(content)
	require.NoError(t, err)
	assert.False(t, ok)

	image := signedDoc(t, g)
	image.Signing.SignatureImage = []byte("other")
	_, ok, _ = g.FromDocument(image)
	assert.False(t, ok)

	signer := signedDoc(t, g)
	signer.Signing.SignedName = "Ana S."
	_, ok, _ = g.FromDocument(signer)
	assert.False(t, ok)

	when := signedDoc(t, g)
	when.Signing.SignedAt = when.Signing.SignedAt.Add(time.Microsecond)
	_, ok, _ = g.FromDocument(when)
	assert.False(t, ok)
}

func TestOriginAndLegalBasisAreNotPartOfDigest(t *testing.T) {
	g := Generator{PublicBaseURL: "https://rh.example.com"}
	doc := signedDoc(t, g)
	doc.Signing.SignedIP = "198.51.100.1"
	_, ok, err := Generator{LegalBasis: "other", PublicBaseURL: "x"}.FromDocument(doc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFromDocumentRequiresSigned(t *testing.T) {
	_, _, err := Generator{}.FromDocument(domain.GeneratedDocument{ID: "doc_1", Status: domain.StatusSent})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestBundleRoundTripVerifiesOffline(t *testing.T) {
	g := Generator{PublicBaseURL: "https://rh.example.com"}
	doc := signedDoc(t, g)
	b, ok, err := g.Bundle(doc)
	require.NoError(t, err)
	require.True(t, ok)

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	var decoded Bundle
	require.NoError(t, json.Unmarshal(raw, &decoded))

	rep, err := VerifyBundle(decoded)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "%+v", rep)

	decoded.Content = "<p>forged</p>"
	rep, err = VerifyBundle(decoded)
	require.NoError(t, err)
	assert.False(t, rep.ContentMatches)
	assert.False(t, rep.DigestMatches)
	assert.True(t, rep.ImageMatches)
}

func TestDigestEqual(t *testing.T) {
	g := Generator{}
	doc := signedDoc(t, g)
	d := doc.Signing.CertificateHash
	assert.True(t, DigestEqual(d, strings.TrimPrefix(d, "sha256:")))
	assert.False(t, DigestEqual(d, "sha256:00"))
}
