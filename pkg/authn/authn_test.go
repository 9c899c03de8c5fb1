package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseBearer(t *testing.T) {
	tok, ok := ParseBearer("Bearer abc123")
	if !ok || tok != "abc123" {
		t.Fatalf("expected parsed bearer token, got ok=%v token=%q", ok, tok)
	}

	_, ok = ParseBearer("abc123")
	if ok {
		t.Fatal("expected parse failure without Bearer prefix")
	}
}

func TestIssueThenAuthenticate(t *testing.T) {
	a := NewOperatorAuthenticator("s3cret", "hr-portal")
	tok, err := a.Issue(Operator{ID: "op_1", Roles: []string{"hr"}}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	op, err := a.Authenticate("Bearer " + tok)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if op.ID != "op_1" || len(op.Roles) != 1 || op.Roles[0] != "hr" {
		t.Fatalf("unexpected operator %+v", op)
	}
}

func TestAuthenticateRejectsWrongSecretIssuerAndExpiry(t *testing.T) {
	a := NewOperatorAuthenticator("s3cret", "hr-portal")
	tok, _ := a.Issue(Operator{ID: "op_1"}, time.Minute)

	if _, err := NewOperatorAuthenticator("other", "hr-portal").Authenticate("Bearer " + tok); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized for wrong secret, got %v", err)
	}
	if _, err := NewOperatorAuthenticator("s3cret", "someone-else").Authenticate("Bearer " + tok); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized for wrong issuer, got %v", err)
	}
	late := NewOperatorAuthenticator("s3cret", "hr-portal")
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := late.Authenticate("Bearer " + tok); err != ErrUnauthorized {
		t.Fatalf("expected unauthorized for expired token, got %v", err)
	}
}

func TestMiddlewareSetsOperator(t *testing.T) {
	a := NewOperatorAuthenticator("s3cret", "")
	tok, _ := a.Issue(Operator{ID: "op_9"}, time.Hour)
	var seen string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := OperatorFromContext(r.Context())
		if ok {
			seen = op.ID
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || seen != "op_9" {
		t.Fatalf("expected operator op_9, got code=%d seen=%q", rr.Code, seen)
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Fatalf("hash must be stable and distinct")
	}
}
