package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// WebhookSlackSender posts messages to a Slack incoming webhook.
type WebhookSlackSender struct {
	WebhookURL string
	Client     *http.Client
}

// NewWebhookSlackSender builds a sender with a bounded request timeout.
func NewWebhookSlackSender(webhookURL string) *WebhookSlackSender {
	return &WebhookSlackSender{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one message. Slack answers non-2xx with a short error body,
// which is surfaced in the returned error.
func (s *WebhookSlackSender) Send(ctx context.Context, channel, content string) error {
	if s == nil || s.WebhookURL == "" {
		return fmt.Errorf("slack webhook url is not configured")
	}
	body := map[string]string{"text": content}
	if channel != "" {
		body["channel"] = channel
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

var _ SlackSender = (*WebhookSlackSender)(nil)

// SMTPEmailSender delivers alert mail through a plain SMTP endpoint.
type SMTPEmailSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

// NewSMTPEmailSender builds a sender. username may be empty for
// unauthenticated relays.
func NewSMTPEmailSender(addr, from, username, password string) *SMTPEmailSender {
	s := &SMTPEmailSender{Addr: addr, From: from}
	if username != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			host = addr[:i]
		}
		s.Auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// Send delivers one plain-text message to every recipient.
func (s *SMTPEmailSender) Send(_ context.Context, subject, content string, to []string) error {
	if s == nil || s.Addr == "" || s.From == "" {
		return fmt.Errorf("smtp sender is not configured")
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(content)
	return smtp.SendMail(s.Addr, s.Auth, s.From, to, []byte(msg.String()))
}

var _ EmailSender = (*SMTPEmailSender)(nil)
