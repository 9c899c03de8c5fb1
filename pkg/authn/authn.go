package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/httpx"
)

var ErrUnauthorized = errors.New("unauthorized")

const operatorAudience = "esign.operator"

type Operator struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

type OperatorClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// OperatorAuthenticator validates HS256 bearer tokens minted by the staff login service.
type OperatorAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewOperatorAuthenticator(secret, issuer string) *OperatorAuthenticator {
	return &OperatorAuthenticator{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}
}

func (a *OperatorAuthenticator) Issue(op Operator, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("operator secret is empty")
	}
	now := a.now().UTC()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.ID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{operatorAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: op.Roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *OperatorAuthenticator) Authenticate(authorization string) (*Operator, error) {
	raw, ok := ParseBearer(authorization)
	if !ok || len(a.secret) == 0 {
		return nil, ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(operatorAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	var claims OperatorClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return a.secret, nil }, opts...)
	if err != nil || !tok.Valid {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrUnauthorized
	}
	return &Operator{ID: claims.Subject, Roles: claims.Roles}, nil
}

// Middleware rejects requests without a valid operator token and stores the operator in the context.
func (a *OperatorAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "operator authentication required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
	})
}

type operatorKey struct{}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(*Operator)
	return op, ok && op != nil
}

func ParseBearer(header string) (string, bool) {
	const prefix = "Bearer "
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
