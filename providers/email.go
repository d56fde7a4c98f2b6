package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/config"
)

// EmailSender delivers through SendGrid when an API key is configured and
// through SMTP otherwise.
type EmailSender struct {
	SendGrid config.SendGridConfig
	SMTP     config.SMTPConfig
}

func NewEmailSender(sg config.SendGridConfig, smtp config.SMTPConfig) *EmailSender {
	return &EmailSender{SendGrid: sg, SMTP: smtp}
}

func recipients(ch db.Channel) []string {
	var out []string
	for _, addr := range strings.Split(configString(ch, "to"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (e *EmailSender) Send(ctx context.Context, ch db.Channel, msg Message) error {
	to := recipients(ch)
	if len(to) == 0 {
		return fmt.Errorf("email channel %s has no recipients", ch.Name)
	}
	if e.SendGrid.APIKey != "" {
		return e.sendGrid(ctx, to, msg)
	}
	return e.smtp(to, msg)
}

func (e *EmailSender) sendGrid(ctx context.Context, to []string, msg Message) error {
	client := sendgrid.NewSendClient(e.SendGrid.APIKey)
	from := mail.NewEmail("n8n console", e.SendGrid.FromEmail)
	for _, addr := range to {
		message := mail.NewSingleEmail(from, msg.Subject(), mail.NewEmail("", addr), msg.Text(), "")
		response, err := client.SendWithContext(ctx, message)
		if err != nil {
			return fmt.Errorf("sendgrid request failed: %w", err)
		}
		if response.StatusCode >= 300 {
			return fmt.Errorf("sendgrid returned %d: %s", response.StatusCode, response.Body)
		}
	}
	return nil
}

func (e *EmailSender) smtp(to []string, msg Message) error {
	if e.SMTP.Host == "" {
		return fmt.Errorf("no email transport configured, set sendgrid.api_key or smtp.host")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", e.SMTP.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", msg.Subject())
	m.SetBody("text/plain", msg.Text())

	dialer := gomail.NewDialer(e.SMTP.Host, e.SMTP.Port, e.SMTP.Username, e.SMTP.Password)
	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
