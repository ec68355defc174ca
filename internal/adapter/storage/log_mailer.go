package storage

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

// LogMailer writes password reset links to the server log instead of sending mail.
type LogMailer struct {
	publicBaseURL string
}

func NewLogMailer(publicBaseURL string) *LogMailer {
	return &LogMailer{publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, account domain.Account, token string) error {
	link := m.publicBaseURL + "/reset-password?token=" + url.QueryEscape(token)
	log.Printf("mailer: password reset for %s <%s>: %s", account.Username, account.Email, link)
	return nil
}
