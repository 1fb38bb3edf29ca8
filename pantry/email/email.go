// pantry/email/email.go
// Package email sends notification emails via SMTP.
// It wraps github.com/wneessen/go-mail; one Send is one dial and one
// delivery attempt.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrNoRecipients and ErrEmptyBody are returned by Send before dialing.
var (
	ErrNoRecipients = errors.New("email: no recipients specified")
	ErrEmptyBody    = errors.New("email: message body is empty")
)

// Config holds SMTP server configuration.
type Config struct {
	// Host is the SMTP server hostname (e.g., "smtp.gmail.com")
	Host string

	// Port is the SMTP server port (typically 587 for STARTTLS, 465 for SSL)
	Port int

	// Username for SMTP authentication
	Username string

	// Password for SMTP authentication
	Password string

	// FromAddress is the sender email address
	FromAddress string

	// UseTLS enables STARTTLS (default: true, recommended for port 587)
	UseTLS bool

	// UseSSL enables implicit SSL/TLS (for port 465)
	UseSSL bool

	// Timeout for SMTP operations (default: 30 seconds)
	Timeout time.Duration
}

// Message represents an email message to be sent.
type Message struct {
	To       []string // Recipient email addresses
	FromName string   // Display name for the From header (optional)
	Subject  string
	TextBody string // Plain text body (optional if HTMLBody is set)
	HTMLBody string // HTML body (optional if TextBody is set)
	ReplyTo  string // Reply-To address (optional)
}

// Sender sends emails using the configured SMTP server.
type Sender struct {
	cfg Config
}

// NewSender creates a new email sender with the given configuration.
func NewSender(cfg Config) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	// Default to TLS unless SSL is explicitly enabled
	if !cfg.UseSSL && cfg.Port != 465 {
		cfg.UseTLS = true
	}
	if cfg.Port == 465 {
		cfg.UseSSL = true
	}
	return &Sender{cfg: cfg}
}

// Send delivers msg in a single attempt.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	m, err := s.buildMsg(msg)
	if err != nil {
		return err
	}

	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}
	return nil
}

// Ping dials and authenticates against the server without sending.
// It backs the health endpoint's email_service flag.
func (s *Sender) Ping(ctx context.Context) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("email: dial %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	_ = c.Close()
	return nil
}

func (s *Sender) buildMsg(msg Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if msg.TextBody == "" && msg.HTMLBody == "" {
		return nil, ErrEmptyBody
	}

	m := mail.NewMsg()

	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, s.cfg.FromAddress); err != nil {
			return nil, fmt.Errorf("email: invalid from address: %w", err)
		}
	} else if err := m.From(s.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("email: invalid from address: %w", err)
	}

	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("email: invalid to address: %w", err)
	}

	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("email: invalid reply-to address: %w", err)
		}
	}

	m.Subject(msg.Subject)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	}
	return m, nil
}

func (s *Sender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}

	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	if s.cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else if s.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: failed to create client: %w", err)
	}
	return c, nil
}

// LogSender logs messages instead of sending them. It stands in for the
// SMTP sender in development when no host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a LogSender writing to logger (nop when nil).
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the envelope at info. The text body carries submitter data and
// is only logged at debug.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if msg.TextBody == "" && msg.HTMLBody == "" {
		return ErrEmptyBody
	}
	s.logger.Info("email not sent (log sender)",
		zap.Strings("to", msg.To),
		zap.String("from_name", msg.FromName),
		zap.String("subject", msg.Subject),
		zap.String("reply_to", msg.ReplyTo),
	)
	s.logger.Debug("email body (log sender)",
		zap.String("subject", msg.Subject),
		zap.String("text", msg.TextBody),
	)
	return nil
}

// Ping always succeeds.
func (s *LogSender) Ping(context.Context) error { return nil }
