package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS string
}

// MailNotifier sends notifications over SMTP with every attachment included.
type MailNotifier struct {
	cfg MailConfig
}

func NewMailNotifier(cfg MailConfig) (*MailNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail: host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("mail: from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &MailNotifier{cfg: cfg}, nil
}

// Message builds the MIME message for n without sending it.
func (m *MailNotifier) Message(n Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(m.cfg.To...); err != nil {
		return nil, fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(n.Title)
	msg.SetBodyString(mail.TypeTextPlain, n.Message)
	for _, path := range n.Attachments {
		msg.AttachFile(path)
	}
	return msg, nil
}

func (m *MailNotifier) Send(ctx context.Context, n Notification) error {
	msg, err := m.Message(n)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(m.cfg.TLS)),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail send: %w", err)
	}
	return nil
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch s {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}
