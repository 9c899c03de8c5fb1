package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/authn"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/webhooks"
)

const EventCodeIssued = "signature.code_issued"

// CodeDelivery is a one-time code on its way to the employee.
type CodeDelivery struct {
	DocumentID string
	Channel    string
	Recipient  string
	Code       string
	ExpiresAt  time.Time
}

// CodeSender delivers one-time codes out of band.
type CodeSender interface {
	SendCode(ctx context.Context, d CodeDelivery) error
}

// LogCodeSender only records that a code went out. Used in development.
type LogCodeSender struct {
	Logger *slog.Logger
}

func (s LogCodeSender) SendCode(ctx context.Context, d CodeDelivery) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "verification code issued", "document_id", d.DocumentID, "channel", d.Channel, "recipient", maskRecipient(d.Channel, d.Recipient), "expires_at", d.ExpiresAt)
	return nil
}

// PublisherCodeSender hands the code to the notification webhook, which owns delivery.
type PublisherCodeSender struct {
	Publisher webhooks.Publisher
}

func (s PublisherCodeSender) SendCode(ctx context.Context, d CodeDelivery) error {
	return s.Publisher.Publish(ctx, webhooks.NewEvent(EventCodeIssued, time.Now(), map[string]any{
		"document_id": d.DocumentID,
		"channel":     d.Channel,
		"recipient":   d.Recipient,
		"code":        d.Code,
		"expires_at":  d.ExpiresAt,
	}))
}

// randomVerificationCode returns a 6-digit numeric code.
func randomVerificationCode() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%06d", binary.BigEndian.Uint64(b[:])%1000000), nil
}

func codeHash(documentID, code string) string {
	return authn.HashToken(documentID + ":" + strings.TrimSpace(code))
}

func contactFor(emp domain.Employee) (channel, recipient string) {
	if e := strings.TrimSpace(emp.Email); e != "" {
		return "email", e
	}
	if p := domain.DigitsOnly(emp.Phone); p != "" {
		return "sms", p
	}
	return "", ""
}

func maskRecipient(channel, recipient string) string {
	if channel == "sms" {
		return maskPhone(recipient)
	}
	return maskEmail(recipient)
}

func maskEmail(email string) string {
	e := strings.TrimSpace(strings.ToLower(email))
	parts := strings.Split(e, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "***"
	}
	local := parts[0]
	if len(local) <= 2 {
		return local[:1] + "***@" + parts[1]
	}
	return local[:2] + "***@" + parts[1]
}

func maskPhone(phone string) string {
	d := domain.DigitsOnly(phone)
	if len(d) < 4 {
		return "***"
	}
	return "***" + d[len(d)-4:]
}
