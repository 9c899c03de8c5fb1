package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/httpx"
	"github.com/SOCR-470/hr-docs-pro-sub000/services/esign/internal/lifecycle"
)

const defaultExpirationDays = 7

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmployeeID string `json:"employee_id"`
	}
	if !httpx.ReadJSONWithLimit(w, r, s.maxBody, &req) {
		return
	}
	if strings.TrimSpace(req.EmployeeID) == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "employee_id is required", nil)
		return
	}
	content, err := s.svc.Preview(r.Context(), chi.URLParam(r, "model_id"), req.EmployeeID)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "content": content})
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelID        string `json:"model_id"`
		EmployeeID     string `json:"employee_id"`
		ExpirationDays *int   `json:"expiration_days"`
	}
	if !httpx.ReadJSONWithLimit(w, r, s.maxBody, &req) {
		return
	}
	if strings.TrimSpace(req.ModelID) == "" || strings.TrimSpace(req.EmployeeID) == "" {
		httpx.WriteError(w, 400, "BAD_REQUEST", "model_id and employee_id are required", nil)
		return
	}
	days := defaultExpirationDays
	if req.ExpirationDays != nil {
		days = *req.ExpirationDays
	}
	in := lifecycle.GenerateInput{
		TemplateID:     strings.TrimSpace(req.ModelID),
		EmployeeID:     strings.TrimSpace(req.EmployeeID),
		ExpirationDays: days,
		ActorID:        operatorID(r),
	}
	fingerprint := map[string]any{"model_id": in.TemplateID, "employee_id": in.EmployeeID, "expiration_days": days}
	s.idempotent(w, r, "POST /esign/v1/documents", fingerprint, func() (int, any, error) {
		g, err := s.svc.Generate(r.Context(), in)
		if err != nil {
			return 0, nil, err
		}
		return 201, map[string]any{
			"request_id": httpx.NewRequestID(),
			"document":   g.Document,
			"token":      g.Token,
			"sign_url":   g.SignURL,
		}, nil
	})
}

func (s *server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.ListByEmployee(r.Context(), r.URL.Query().Get("employee_id"))
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "documents": docs})
}

func (s *server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Get(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id": httpx.NewRequestID(),
		"document":   doc,
		"sign_url":   s.svc.SignURL(doc.Token),
	})
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Send(r.Context(), chi.URLParam(r, "document_id"), operatorID(r))
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc, "sign_url": s.svc.SignURL(doc.Token)})
}

func (s *server) handleRequestSignature(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.RequestSignature(r.Context(), chi.URLParam(r, "document_id"), operatorID(r))
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !s.readOptionalJSON(w, r, &req) {
		return
	}
	doc, err := s.svc.Cancel(r.Context(), chi.URLParam(r, "document_id"), operatorID(r), req.Reason)
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "document": doc})
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Events(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "events": events})
}

func (s *server) handleDocumentCertificate(w http.ResponseWriter, r *http.Request) {
	bundle, verified, err := s.svc.CertificateForDocument(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		s.operatorError(w, r, err)
		return
	}
	httpx.WriteJSON(w, 200, map[string]any{
		"request_id":  httpx.NewRequestID(),
		"certificate": bundle.Certificate,
		"bundle":      bundle,
		"verified":    verified,
	})
}
