package port

import (
	"context"
	"io"

	"github.com/rl1809/easy-inventory/internal/core/domain"
)

type ReportRenderer interface {
	Render(w io.Writer, report domain.Report) error
}

type Mailer interface {
	SendPasswordReset(ctx context.Context, account domain.Account, token string) error
}
