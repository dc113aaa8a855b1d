// Package email defines the outbound notification boundary. The core only
// depends on Sender; delivery guarantees, retries, and provider quirks live
// behind it.
package email

import (
	"context"
	"strings"
	"unicode"
)

// Message is a single outbound email.
type Message struct {
	From     string
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

//go:generate mockgen -source=email.go -destination=mocks/email-mocks.go -package=mocks Sender

// Sender dispatches a message and returns the provider's delivery id.
type Sender interface {
	Send(ctx context.Context, msg Message) (deliveryID string, err error)
}

// DeriveNameFromEmail guesses a display name from the local part of an email
// address. Used as the fallback when a user record has no display name.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
