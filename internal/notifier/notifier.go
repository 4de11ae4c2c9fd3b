package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
)

// Mailer sends the verification and recovery emails over SMTP.
// BaseURL is the frontend the links point at
type Mailer struct {
	Addr     string // host:port of the SMTP server
	From     string
	BaseURL  string
	Auth     smtp.Auth // nil for unauthenticated relays
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(addr string, from string, baseURL string, auth smtp.Auth) *Mailer {
	return &Mailer{
		Addr:     addr,
		From:     from,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Auth:     auth,
		sendMail: smtp.SendMail,
	}
}

func (m *Mailer) SendVerification(ctx context.Context, email string, pair models.TokenPair) error {
	body := fmt.Sprintf(`<h1>Verify Account</h1>
<p>We received a request to verify the account associated with %s.</p>
<p>To verify your account, click the link below:</p>
<ol>
  <li><a href="%s/auth/verify-account?accessToken=%s">Verify Account</a></li>
  <li>If the link has expired, request a new one: <a href="%s/auth/refresh-token-to-verify-account?refreshToken=%s">New access</a></li>
</ol>
<p>If you didn't sign up, you can safely ignore this email.</p>`,
		email, m.BaseURL, pair.Access.Value, m.BaseURL, pair.Refresh.Value)

	return m.send(email, "Verify Account", body)
}

func (m *Mailer) SendRecovery(ctx context.Context, email string, token models.IssuedToken) error {
	body := fmt.Sprintf(`<h1>Change Password Request</h1>
<p>We received a request to reset the password for the account associated with %s.</p>
<p>To change your password, click the link below:</p>
<p><a href="%s/auth/change-password?accessToken=%s">Change Your Password</a></p>
<p>For security reasons the link expires in 10 minutes. If you didn't request
a password reset, you can safely ignore this email.</p>`,
		email, m.BaseURL, token.Value)

	return m.send(email, "Change Password Request", body)
}

func (m *Mailer) send(to string, subject string, htmlBody string) error {
	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	if err := m.sendMail(m.Addr, m.Auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("error while sending email. Err: %w", err)
	}
	return nil
}

// LogNotifier logs instead of sending, default for dev environments without
// an SMTP relay
type LogNotifier struct {
	Logger logger.Logger
}

func (n LogNotifier) SendVerification(ctx context.Context, email string, pair models.TokenPair) error {
	n.Logger.Info("verification email suppressed",
		"email", email,
		"access_token_id", pair.Access.TokenID,
		"refresh_token_id", pair.Refresh.TokenID,
	)
	return nil
}

func (n LogNotifier) SendRecovery(ctx context.Context, email string, token models.IssuedToken) error {
	n.Logger.Info("recovery email suppressed",
		"email", email,
		"access_token_id", token.TokenID,
	)
	return nil
}
