package domain

import "time"

type TemplateCategory string

const (
	CategoryAdmission       TemplateCategory = "admission"
	CategorySafety          TemplateCategory = "safety"
	CategoryBenefits        TemplateCategory = "benefits"
	CategoryConfidentiality TemplateCategory = "confidentiality"
	CategoryTermination     TemplateCategory = "termination"
	CategoryOther           TemplateCategory = "other"
)

func (c TemplateCategory) Valid() bool {
	switch c {
	case CategoryAdmission, CategorySafety, CategoryBenefits, CategoryConfidentiality, CategoryTermination, CategoryOther:
		return true
	default:
		return false
	}
}

type DocumentTemplate struct {
	ID                string           `json:"id" yaml:"id"`
	Name              string           `json:"name" yaml:"name"`
	Category          TemplateCategory `json:"category" yaml:"category"`
	Content           string           `json:"content" yaml:"content"`
	RequiresSignature bool             `json:"requires_signature" yaml:"requires_signature"`
	RequiresWitness   bool             `json:"requires_witness" yaml:"requires_witness"`
	WitnessCount      int              `json:"witness_count" yaml:"witness_count"`
	Active            bool             `json:"active" yaml:"active"`
}

type Employee struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	CPF           string  `json:"cpf" yaml:"cpf"`
	RG            string  `json:"rg" yaml:"rg"`
	BirthDate     string  `json:"birth_date" yaml:"birth_date"`
	Email         string  `json:"email" yaml:"email"`
	Phone         string  `json:"phone" yaml:"phone"`
	Position      string  `json:"position" yaml:"position"`
	Department    string  `json:"department" yaml:"department"`
	Salary        float64 `json:"salary" yaml:"salary"`
	AdmissionDate string  `json:"admission_date" yaml:"admission_date"`
	Address       string  `json:"address" yaml:"address"`
	Status        string  `json:"status" yaml:"status"`
}

type Company struct {
	Name                string `json:"name" yaml:"name"`
	TradeName           string `json:"trade_name" yaml:"trade_name"`
	CNPJ                string `json:"cnpj" yaml:"cnpj"`
	Address             string `json:"address" yaml:"address"`
	City                string `json:"city" yaml:"city"`
	State               string `json:"state" yaml:"state"`
	LegalRepresentative string `json:"legal_representative" yaml:"legal_representative"`
}

type DocumentStatus string

const (
	StatusDraft            DocumentStatus = "draft"
	StatusPendingSignature DocumentStatus = "pending_signature"
	StatusSent             DocumentStatus = "sent"
	StatusSigned           DocumentStatus = "signed"
	StatusExpired          DocumentStatus = "expired"
	StatusCancelled        DocumentStatus = "cancelled"
)

func (s DocumentStatus) IsTerminal() bool {
	return s == StatusSigned || s == StatusExpired || s == StatusCancelled
}

// AcceptsSignature reports whether a remote party may sign in this status.
func (s DocumentStatus) AcceptsSignature() bool {
	return s == StatusPendingSignature || s == StatusSent
}

// CanTransition is the lifecycle table. Terminal statuses never leave.
func CanTransition(from, to DocumentStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StatusPendingSignature:
		return from == StatusDraft || from == StatusPendingSignature
	case StatusSent:
		return true
	case StatusSigned:
		return from.AcceptsSignature()
	case StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// NonTerminalStatuses is the source set for expiry and cancellation.
func NonTerminalStatuses() []DocumentStatus {
	return []DocumentStatus{StatusDraft, StatusPendingSignature, StatusSent}
}

type SignatureType string

const (
	SignatureDrawn    SignatureType = "drawn"
	SignatureTyped    SignatureType = "typed"
	SignatureUploaded SignatureType = "uploaded"
)

func (t SignatureType) Valid() bool {
	return t == SignatureDrawn || t == SignatureTyped || t == SignatureUploaded
}

type GeneratedDocument struct {
	ID               string           `json:"id"`
	TemplateID       string           `json:"template_id"`
	EmployeeID       string           `json:"employee_id"`
	GeneratedContent string           `json:"generated_content,omitempty"`
	Status           DocumentStatus   `json:"status"`
	Token            string           `json:"-"`
	ExpiresAt        time.Time        `json:"expires_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	CancelledAt      *time.Time       `json:"cancelled_at,omitempty"`
	Signing          *SigningEvidence `json:"signing,omitempty"`
}

// SigningEvidence is written once, together with the transition to signed.
type SigningEvidence struct {
	SignedName      string        `json:"signed_name"`
	SignedCPF       string        `json:"signed_cpf"`
	SignedBirthDate string        `json:"signed_birth_date"`
	SignatureImage  []byte        `json:"-"`
	SignatureType   SignatureType `json:"signature_type"`
	SignedAt        time.Time     `json:"signed_at"`
	SignedIP        string        `json:"signed_ip"`
	SignedUserAgent string        `json:"signed_user_agent"`
	CertificateHash string        `json:"certificate_hash"`
	CertificateURL  string        `json:"certificate_url"`
}

// Complete reports whether every required evidence field is present.
func (e *SigningEvidence) Complete() bool {
	if e == nil {
		return false
	}
	return e.SignedName != "" && e.SignedCPF != "" && e.SignedBirthDate != "" &&
		len(e.SignatureImage) > 0 && e.SignatureType.Valid() && !e.SignedAt.IsZero() &&
		e.CertificateHash != "" && e.CertificateURL != ""
}

type OneTimeCode struct {
	CodeID     string
	DocumentID string
	CodeHash   string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

type EventType string

const (
	EventGenerated          EventType = "GENERATED"
	EventSignatureRequested EventType = "SIGNATURE_REQUESTED"
	EventSent               EventType = "SENT"
	EventResent             EventType = "RESENT"
	EventCancelled          EventType = "CANCELLED"
	EventExpired            EventType = "EXPIRED"
	EventCodeIssued         EventType = "CODE_ISSUED"
	EventIdentityVerified   EventType = "IDENTITY_VERIFIED"
	EventIdentityRejected   EventType = "IDENTITY_REJECTED"
	EventSigned             EventType = "SIGNED"
)

const (
	ActorSystem = "system"
	ActorSigner = "signer"
)

type Event struct {
	EventID    string         `json:"event_id"`
	DocumentID string         `json:"document_id"`
	Type       EventType      `json:"type"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
