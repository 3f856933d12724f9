package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/bakkerme/posterdigest/internal/core"
	"github.com/bakkerme/posterdigest/internal/outputs/email"
)

// Config describes one SMTP relay. TLSMode is optional; when empty the port
// decides (implicit TLS on 465, STARTTLS otherwise).
type Config struct {
	Host               string
	Port               int
	Username           string
	Password           string
	TLSMode            string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// Validate checks the relay address and the TLS mode.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("smtp port %d out of range", c.Port)
	}
	_, err := parseTLSMode(c.TLSMode)
	return err
}

type Sender struct {
	config Config
}

func NewSender(config Config) *Sender {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Sender{config: config}
}

// TLSMode determines how the SMTP client should negotiate TLS.
type TLSMode string

const (
	TLSModeAuto     TLSMode = "auto"
	TLSModeDisabled TLSMode = "disabled"
	TLSModeStartTLS TLSMode = "starttls"
	// TLSModeImplicit is SMTPS, typically on port 465.
	TLSModeImplicit TLSMode = "implicit"
)

// Send delivers one message. A local sink that rejects AUTH is retried once
// without credentials.
func (s *Sender) Send(ctx context.Context, message email.Message) error {
	if message.From == "" {
		message.From = s.config.Username
	}
	m, err := buildMessage(message)
	if err != nil {
		return err
	}
	mode, err := s.resolveTLSMode()
	if err != nil {
		return err
	}

	useAuth := s.config.Username != ""
	err = s.dialAndSend(ctx, m, mode, useAuth)
	if err != nil && useAuth && isAuthUnsupported(err) && isLocalDevSMTPHost(s.config.Host) {
		core.LoggerFromContext(ctx).Warn("smtp sink does not support auth; retrying without credentials", "host", s.config.Host)
		if retryErr := s.dialAndSend(ctx, m, mode, false); retryErr == nil {
			return nil
		}
	}
	return err
}

func (s *Sender) dialAndSend(ctx context.Context, m *mail.Msg, mode TLSMode, auth bool) error {
	client, err := mail.NewClient(s.config.Host, s.clientOptions(mode, auth)...)
	if err != nil {
		return fmt.Errorf("smtp: create client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send via %s:%d: %w", s.config.Host, s.config.Port, err)
	}
	return nil
}

func (s *Sender) clientOptions(mode TLSMode, auth bool) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTimeout(s.config.Timeout),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         s.config.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.config.InsecureSkipVerify,
		}),
	}
	switch mode {
	case TLSModeDisabled:
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	case TLSModeImplicit:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if auth {
		opts = append(opts,
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}
	return opts
}

// buildMessage converts a message into a go-mail message: HTML body, optional
// plain-text alternative and inline files addressed by content id.
func buildMessage(message email.Message) (*mail.Msg, error) {
	if strings.TrimSpace(message.To) == "" {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	m := mail.NewMsg()
	if err := m.From(message.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", message.From, err)
	}
	if err := m.ToFromString(message.To); err != nil {
		return nil, fmt.Errorf("invalid to address(es) %q: %w", message.To, err)
	}
	m.Subject(message.Subject)
	// Clients render the last alternative they understand, so HTML goes last.
	if message.TextBody != "" {
		m.SetBodyString(mail.TypeTextPlain, message.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, message.Body)
	} else {
		m.SetBodyString(mail.TypeTextHTML, message.Body)
	}
	for _, inline := range message.Inline {
		if inline.ContentID == "" || len(inline.Data) == 0 {
			continue
		}
		name := inline.Filename
		if name == "" {
			name = inline.ContentID + ".jpg"
		}
		opts := []mail.FileOption{mail.WithFileContentID("<" + inline.ContentID + ">")}
		if inline.ContentType != "" {
			opts = append(opts, mail.WithFileContentType(mail.ContentType(inline.ContentType)))
		}
		if err := m.EmbedReader(name, bytes.NewReader(inline.Data), opts...); err != nil {
			return nil, fmt.Errorf("embed %s: %w", name, err)
		}
	}
	if err := m.EnvelopeFrom(message.From); err != nil {
		return nil, fmt.Errorf("invalid envelope from address %q: %w", message.From, err)
	}
	return m, nil
}

// resolveTLSMode returns the configured TLS behavior, falling back to port defaults.
func (s *Sender) resolveTLSMode() (TLSMode, error) {
	mode, err := parseTLSMode(s.config.TLSMode)
	if err != nil {
		return "", err
	}
	if mode == TLSModeAuto {
		if s.config.Port == 465 {
			return TLSModeImplicit, nil
		}
		return TLSModeStartTLS, nil
	}
	return mode, nil
}

// parseTLSMode normalizes the TLS mode string and validates supported values.
func parseTLSMode(mode string) (TLSMode, error) {
	normalized := strings.TrimSpace(strings.ToLower(mode))
	if normalized == "" || normalized == string(TLSModeAuto) {
		return TLSModeAuto, nil
	}
	switch normalized {
	case "disabled", "off", "none":
		return TLSModeDisabled, nil
	case "starttls", "start_tls":
		return TLSModeStartTLS, nil
	case "implicit", "smtptls", "smtp_tls":
		return TLSModeImplicit, nil
	default:
		return "", fmt.Errorf("invalid smtp tls mode %q (expected: auto, disabled/off/none, starttls/start_tls, implicit/smtptls/smtp_tls)", mode)
	}
}

func isAuthUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "server does not support SMTP AUTH") ||
		strings.Contains(msg, "SMTP Auth autodiscover was not able to detect a supported authentication mechanism")
}

func isLocalDevSMTPHost(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if host == "localhost" || host == "mailpit" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return false
}
