package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, e Email) error
}

type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"`
}

const defaultSendTimeout = 30 * time.Second

// SMTPNotifier delivers mail through one dialed connection per message.
// Timeout bounds the whole delivery, dial and SMTP exchange included.
type SMTPNotifier struct {
	from    string
	timeout time.Duration
	sender  func(ctx context.Context, m *gomail.Message) error
	logger  *slog.Logger
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	t := smtpTransport{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
	}
	return &SMTPNotifier{
		from:    from,
		timeout: timeout,
		sender: func(ctx context.Context, m *gomail.Message) error {
			return gomail.Send(gomail.SendFunc(func(from string, to []string, msg io.WriterTo) error {
				return t.send(ctx, from, to, msg)
			}), m)
		},
		logger: slog.With("component", "notify"),
	}
}

// WithSender replaces the transport, mostly for tests.
func (n *SMTPNotifier) WithSender(s gomail.Sender) *SMTPNotifier {
	n.sender = func(_ context.Context, m *gomail.Message) error { return gomail.Send(s, m) }
	return n
}

func (n *SMTPNotifier) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return errors.New("email has no recipient")
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", e.To)
	m.SetHeader("Subject", e.Subject)
	switch {
	case e.Text != "" && e.HTML != "":
		m.SetBody("text/plain", e.Text)
		m.AddAlternative("text/html", e.HTML)
	case e.HTML != "":
		m.SetBody("text/html", e.HTML)
	default:
		m.SetBody("text/plain", e.Text)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	// a custom sender may ignore ctx; stop waiting for it when ctx ends
	done := make(chan error, 1)
	go func() { done <- n.sender(ctx, m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", e.To, err)
		}
		n.logger.Info("mail sent", "to", e.To, "subject", e.Subject)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail to %s: %w", e.To, ctx.Err())
	}
}

// Noop logs instead of sending, for deployments without SMTP.
type Noop struct{}

func (Noop) Send(_ context.Context, e Email) error {
	slog.Info("mail delivery disabled, dropping message", "component", "notify", "to", e.To, "subject", e.Subject)
	return nil
}
