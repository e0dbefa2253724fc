package email

import (
	"context"
	"fmt"
	"strings"
)

// Sender delivers a single rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	TransportAuto = "auto"
	TransportSMTP = "smtp"
	TransportSES  = "ses"
	TransportNone = "none"
)

type Settings struct {
	Transport string
	SMTP      SMTPSettings
	SES       SESSettings
}

// ResolveTransport turns "auto" into a concrete transport: SES when SES keys
// are set, SMTP when an SMTP password is set, otherwise none.
func (s Settings) ResolveTransport() string {
	t := strings.ToLower(strings.TrimSpace(s.Transport))
	if t != "" && t != TransportAuto {
		return t
	}
	switch {
	case s.SES.AccessKey != "" && s.SES.SecretKey != "":
		return TransportSES
	case s.SMTP.Password != "":
		return TransportSMTP
	default:
		return TransportNone
	}
}

// NewSender returns nil when mail is not configured.
func NewSender(ctx context.Context, settings Settings) (Sender, error) {
	switch t := settings.ResolveTransport(); t {
	case TransportNone:
		return nil, nil
	case TransportSMTP:
		if settings.SMTP.Host == "" || settings.SMTP.Port == 0 {
			return nil, fmt.Errorf("smtp transport requires host and port")
		}
		return NewSMTPSender(settings.SMTP), nil
	case TransportSES:
		return NewSESSender(ctx, settings.SES)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", t)
	}
}
