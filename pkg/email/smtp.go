package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// SMTPSender delivers mail over a plain SMTP relay. SMTP has no server-side
// delivery id, so the generated Message-ID header doubles as one.
type SMTPSender struct {
	addr string
	auth smtp.Auth
}

// NewSMTPSender builds a sender for the relay at addr (host:port). Username
// may be empty for unauthenticated relays.
func NewSMTPSender(addr, username, password string) *SMTPSender {
	s := &SMTPSender{addr: addr}
	if username != "" {
		host := addr
		if i := strings.IndexByte(addr, ':'); i > 0 {
			host = addr[:i]
		}
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	messageID := fmt.Sprintf("<%s@sharepairs>", uuid.NewString())

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.HTMLBody != "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.TextBody)
	}

	if err := smtp.SendMail(s.addr, s.auth, msg.From, msg.To, []byte(b.String())); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}
