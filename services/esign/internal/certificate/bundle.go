package certificate

import (
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
)

// Bundle is everything an auditor needs to recompute a certificate offline.
type Bundle struct {
	Certificate    Certificate `json:"certificate"`
	Content        string      `json:"content"`
	SignatureImage []byte      `json:"signature_image"`
}

type Report struct {
	ContentMatches  bool `json:"content_matches"`
	ImageMatches    bool `json:"image_matches"`
	MetadataMatches bool `json:"metadata_matches"`
	DigestMatches   bool `json:"digest_matches"`
}

func (r Report) OK() bool {
	return r.ContentMatches && r.ImageMatches && r.MetadataMatches && r.DigestMatches
}

func (g Generator) Bundle(doc domain.GeneratedDocument) (Bundle, bool, error) {
	cert, ok, err := g.FromDocument(doc)
	if err != nil {
		return Bundle{}, false, err
	}
	return Bundle{Certificate: cert, Content: doc.GeneratedContent, SignatureImage: doc.Signing.SignatureImage}, ok, nil
}

// VerifyBundle recomputes every hash from the bundle contents.
func VerifyBundle(b Bundle) (Report, error) {
	c := b.Certificate
	meta := Metadata{
		DocumentID:      c.DocumentID,
		SignerName:      c.Signer.Name,
		SignerCPF:       domain.DigitsOnly(c.Signer.CPF),
		SignerBirthDate: c.Signer.BirthDate,
		SignedAt:        c.SignedAt.UTC().Format(time.RFC3339Nano),
		SignatureType:   string(c.SignatureType),
	}
	h, err := ComputeHashes(b.Content, b.SignatureImage, meta)
	if err != nil {
		return Report{}, err
	}
	return Report{
		ContentMatches:  h.Content == c.ContentHash,
		ImageMatches:    h.Image == c.SignatureImageHash,
		MetadataMatches: h.Metadata == c.MetadataHash,
		DigestMatches:   DigestEqual(h.Digest, c.Digest),
	}, nil
}
