// Package mailer manda los mails transaccionales de cambio de estado.
// Desde el punto de vista del reconciliador es fire-and-forget: los
// fallos quedan en la colección failed_emails, nunca se propagan como
// fallo de la reconciliación.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"dissonant-backend/internal/model"
	"dissonant-backend/internal/retry"
)

// FailureLog es la auditoría de mails fallidos (repository la implementa).
type FailureLog interface {
	RecordFailedEmail(ctx context.Context, rec model.FailedEmail) error
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
	audit    FailureLog
}

func New(apiKey, from, endpoint string, audit FailureLog) *Mailer {
	return &Mailer{
		apiKey:   apiKey,
		from:     from,
		endpoint: endpoint,
		audit:    audit,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendTemplated manda un mail por la API HTTP del proveedor, con el
// presupuesto estándar de reintentos. Si se agota, queda la auditoría.
func (m *Mailer) SendTemplated(ctx context.Context, msg Message) error {
	err := retry.Do(ctx, 3, 2*time.Second, func() error {
		return m.send(ctx, msg)
	})
	if err != nil {
		rec := model.FailedEmail{
			To:        msg.To,
			Subject:   msg.Subject,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		}
		if auditErr := m.audit.RecordFailedEmail(ctx, rec); auditErr != nil {
			log.Printf("❌ [Mailer] no se pudo auditar el mail fallido a %s: %v", msg.To, auditErr)
		}
	}
	return err
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": m.from},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": msg.Text},
			{"type": "text/html", "value": msg.HTML},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("proveedor de mail devolvió %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendStatusUpdate arma el mail según el estado nuevo y lo manda.
// Implementa service.StatusMailer.
func (m *Mailer) SendStatusUpdate(ctx context.Context, to, name, status, trackingNumber, description string) error {
	msg := statusMessage(to, name, status, trackingNumber, description)
	return m.SendTemplated(ctx, msg)
}

func statusMessage(to, name, status, trackingNumber, description string) Message {
	if name == "" {
		name = "there"
	}

	var subject, text string
	switch status {
	case model.StatusSent:
		subject = "Your records are on the way!"
		text = fmt.Sprintf("Hi %s,\n\nYour order has shipped. Track it with number %s.\n\n%s", name, trackingNumber, description)
	case model.StatusDelivered:
		subject = "Your records have arrived"
		text = fmt.Sprintf("Hi %s,\n\nYour order was delivered. Happy listening!\n\n%s", name, description)
	default:
		subject = "Update on your order"
		text = fmt.Sprintf("Hi %s,\n\nThere's an update on your order (tracking %s): %s", name, trackingNumber, description)
	}

	return Message{
		To:      to,
		Subject: subject,
		Text:    text,
		HTML:    fmt.Sprintf("<p>%s</p>", text),
	}
}
