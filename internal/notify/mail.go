package notify

import (
	"context"

	"github.com/ukydev/plant-maintenance/internal/config"
	"gopkg.in/mail.v2"
)

// mailSender is satisfied by *mail.Dialer.
type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// MailSink sends notifications over SMTP.
type MailSink struct {
	sender mailSender
	from   string
}

// NewMailSink creates a sink dialing the configured SMTP server per message.
func NewMailSink(cfg config.MailConfig) *MailSink {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return &MailSink{sender: d, from: cfg.From}
}

// Name implements Sink.
func (s *MailSink) Name() string { return "mail" }

// Send implements Sink. Messages without a recipient are skipped.
func (s *MailSink) Send(ctx context.Context, n Notification) error {
	if n.To == "" {
		return ErrSkipped
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetAddressHeader("From", s.from, "Plant Maintenance")
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", n.Subject)
	m.SetHeader("X-Maintenance-Event", string(n.Event))
	m.SetBody("text/html", n.Body)
	return s.sender.DialAndSend(m)
}
