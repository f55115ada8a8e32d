package chathub

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendgridMailer emails the support inbox when a user message arrives with
// no admin console connected.
type SendgridMailer struct {
	APIKey       string
	SupportEmail string
	FromEmail    string
}

// NewSendgridMailer returns nil when not configured so the hub silently
// skips offline notifications.
func NewSendgridMailer(apiKey, supportEmail string) *SendgridMailer {
	if apiKey == "" || supportEmail == "" {
		return nil
	}
	return &SendgridMailer{
		APIKey:       apiKey,
		SupportEmail: supportEmail,
		FromEmail:    "no-reply@profitwave.io",
	}
}

// NotifyOfflineMessage sends a single plain notification email.
func (m *SendgridMailer) NotifyOfflineMessage(userID, message string) error {
	from := mail.NewEmail("ProfitWave Support Chat", m.FromEmail)
	to := mail.NewEmail("Support", m.SupportEmail)
	subject := fmt.Sprintf("New chat message from %s while support was offline", userID)
	body := fmt.Sprintf("User %s wrote:\n\n%s\n\nOpen the admin console to reply.", userID, message)
	msg := mail.NewSingleEmail(from, subject, to, body, "")

	client := sendgrid.NewSendClient(m.APIKey)
	response, err := client.Send(msg)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	return nil
}
