package evidencehash

import (
	"strings"
	"testing"
)

func TestComputeCertificateDigestManifest(t *testing.T) {
	got := ComputeCertificateDigest(CertificateVersion, "aa", "bb", "cc")
	want := "sha256:" + HashStringSHA256Hex(CertificateVersion+"\naa\nbb\ncc\n")
	if got != want {
		t.Fatalf("digest mismatch got=%s want=%s", got, want)
	}
	if ComputeCertificateDigest(CertificateVersion, "aa", "bb", "cd") == got {
		t.Fatalf("metadata change must change the digest")
	}
}

func TestCanonicalSHA256IgnoresKeyOrder(t *testing.T) {
	a, _, err := CanonicalSHA256(map[string]any{"b": 1, "a": "x"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, _, err := CanonicalSHA256(map[string]any{"a": "x", "b": 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal hashes")
	}
}

func TestParseDigest(t *testing.T) {
	h := HashStringSHA256Hex("x")
	for _, in := range []string{h, "sha256:" + h, "SHA256:" + strings.ToUpper(h)} {
		got, ok := ParseDigest(in)
		if !ok || got != h {
			t.Fatalf("%q: got %q ok=%v", in, got, ok)
		}
	}
	if _, ok := ParseDigest("sha256:zz"); ok {
		t.Fatalf("expected rejection")
	}
}
