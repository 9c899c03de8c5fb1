package evidencehash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/canonhash"
)

const CertificateVersion = "esign-certificate-v1"

// CanonicalSHA256 hashes the RFC 8785 encoding of v.
func CanonicalSHA256(v any) (hexHash string, bytes []byte, err error) {
	b, err := canonhash.Canonicalize(v)
	if err != nil {
		return "", nil, err
	}
	return SHA256Hex(b), b, nil
}

// ComputeCertificateDigest hashes the newline-joined manifest
// version, content hash, signature image hash and metadata hash.
func ComputeCertificateDigest(version, contentHash, imageHash, metadataHash string) string {
	var b strings.Builder
	b.WriteString(version)
	b.WriteString("\n")
	b.WriteString(contentHash)
	b.WriteString("\n")
	b.WriteString(imageHash)
	b.WriteString("\n")
	b.WriteString(metadataHash)
	b.WriteString("\n")
	return "sha256:" + HashStringSHA256Hex(b.String())
}

func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func HashStringSHA256Hex(s string) string {
	return SHA256Hex([]byte(s))
}

// ParseDigest accepts "sha256:<hex>" or bare hex and returns the lowercase hex part.
func ParseDigest(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "sha256:")
	if len(s) != sha256.Size*2 {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return s, true
}
