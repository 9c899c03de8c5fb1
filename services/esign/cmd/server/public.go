package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/httpx"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/lifecycle"
)

func grantFrom(r *http.Request) string {
	if g := strings.TrimSpace(r.Header.Get(grantHeader)); g != "" {
		return g
	}
	if c, err := r.Cookie(grantCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func (s *server) setGrantCookie(w http.ResponseWriter, token, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     grantCookie,
		Value:    value,
		Path:     "/public/v1/sign/" + token,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		c.MaxAge = -1
	} else {
		c.Expires = expires
	}
	http.SetCookie(w, c)
}

func (s *server) handleSigningPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	view, err := s.svc.ViewByToken(r.Context(), chi.URLParam(r, "token"), grantFrom(r))
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	doc := map[string]any{
		"id":         view.DocumentID,
		"status":     view.Status,
		"expires_at": view.ExpiresAt,
		"verified":   view.Verified,
	}
	if view.Verified {
		doc["content"] = view.Content
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":    httpx.NewRequestID(),
		"document":      doc,
		"employee":      map[string]any{"name": view.EmployeeName},
		"model":         map[string]any{"name": view.TemplateName},
		"code_required": view.CodeRequired,
	})
}

func (s *server) handleIssueCode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	ch, err := s.svc.IssueCode(r.Context(), chi.URLParam(r, "token"), origin(r))
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "challenge": ch})
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	var req struct {
		CPF       string `json:"cpf"`
		BirthDate string `json:"birth_date"`
		Code      string `json:"code"`
	}
	if !httpx.ReadJSONWithLimit(w, r, s.maxBody, &req) {
		return
	}
	token := chi.URLParam(r, "token")
	v, err := s.svc.VerifyIdentity(r.Context(), lifecycle.VerifyInput{
		Token:     token,
		CPF:       req.CPF,
		BirthDate: req.BirthDate,
		Code:      req.Code,
		Origin:    origin(r),
	})
	if err != nil {
		status, body := s.publicFailure(w, r, err)
		httpx.WriteJSON(w, status, map[string]any{"request_id": httpx.NewRequestID(), "success": false, "error": body})
		return
	}
	s.setGrantCookie(w, token, v.Grant, v.ExpiresAt)
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"grant":      v.Grant,
		"expires_at": v.ExpiresAt,
	})
}

func (s *server) handleSign(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	var req struct {
		SignedName      string               `json:"signed_name"`
		SignedCPF       string               `json:"signed_cpf"`
		SignedBirthDate string               `json:"signed_birth_date"`
		SignatureImage  string               `json:"signature_image"`
		SignatureType   domain.SignatureType `json:"signature_type"`
	}
	if !httpx.ReadJSONWithLimit(w, r, s.maxBody, &req) {
		return
	}
	token := chi.URLParam(r, "token")
	out, err := s.svc.Sign(r.Context(), lifecycle.SignInput{
		Token:            token,
		Grant:            grantFrom(r),
		SignedName:       req.SignedName,
		SignedCPF:        req.SignedCPF,
		SignedBirthDate:  req.SignedBirthDate,
		SignatureType:    req.SignatureType,
		SignaturePayload: req.SignatureImage,
		Origin:           origin(r),
	})
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	s.setGrantCookie(w, token, "", time.Time{})
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":       httpx.NewRequestID(),
		"certificate_url":  out.Certificate.CertificateURL,
		"certificate_hash": out.Certificate.Digest,
	})
}

func (s *server) handleCertificateByDigest(w http.ResponseWriter, r *http.Request) {
	bundle, verified, err := s.svc.LookupCertificate(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		s.publicError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":  httpx.NewRequestID(),
		"certificate": bundle.Certificate,
		"verified":    verified,
	})
}
