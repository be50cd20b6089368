// Package mail covers outbound notification dispatch and the address
// denylist. Delivery itself happens in a separate worker consuming the queue;
// this side only publishes envelopes.
package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer stands in when no broker is configured; envelopes are logged and
// dropped.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("mail not dispatched, no broker configured",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}

func VerificationSubject() string {
	return "Verify your email address"
}

func VerificationBody(name, secret string, expireMinutes int) string {
	return fmt.Sprintf(`Hello %s!

Use this code to finish creating your account:

    %s

The code expires in %d minutes.

If you didn't request this email, you can safely ignore it.`, name, secret, expireMinutes)
}

func PasswordResetSubject() string {
	return "Reset your password"
}

func PasswordResetBody(secret string, expireMinutes int) string {
	return fmt.Sprintf(`Hello!

Use this code to reset your password:

    %s

The code expires in %d minutes.

If you didn't request this email, you can safely ignore it.`, secret, expireMinutes)
}
