// Package mail builds and delivers account emails.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
)

// Message kinds, used for logging and queue payloads.
const (
	TypeInvitation    = "invitation"
	TypePasswordReset = "password_reset"
)

// DeliveryNoReply is the emailType the mail service expects for every account email; it picks
// the no-reply sender mailbox.
const DeliveryNoReply = "noreply"

type Message struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	EmailType string `json:"emailType"`
	HTML      string `json:"html"`
}

// Sender delivers a message. Implementations may queue it instead of sending inline.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender only records that a message would have been sent. The body is never logged since
// reset emails embed a token.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email not delivered, no mail service configured",
		"email_type", msg.EmailType,
		"subject", msg.Subject,
	)
	return nil
}

var buttonTemplate = template.Must(template.New("button").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>{{.Text}}</p>
  <p>
    <a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background: #2d6cdf; color: #fff; text-decoration: none; border-radius: 4px;">{{.Button}}</a>
  </p>
</body>
</html>`))

type buttonData struct {
	Text   string
	Link   string
	Button string
}

// renderButton leaves the link to html/template, which replaces anything but http(s) and mailto
// URLs with "#ZgotmplZ".
func renderButton(text, link, button string) (string, error) {
	var buf bytes.Buffer
	data := buttonData{Text: text, Link: link, Button: button}
	if err := buttonTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return buf.String(), nil
}

// Invitation is sent when an account is registered with an email address.
func Invitation(to, link string) (Message, error) {
	html, err := renderButton("An account has been created for you.", link, "Start working")
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:        to,
		Subject:   "Your account is ready",
		EmailType: TypeInvitation,
		HTML:      html,
	}, nil
}

// PasswordReset carries the link with the reset token.
func PasswordReset(to, link string) (Message, error) {
	html, err := renderButton("Use the button below to set a new password. The link expires soon.", link, "Reset password")
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:        to,
		Subject:   "Reset your password",
		EmailType: TypePasswordReset,
		HTML:      html,
	}, nil
}
