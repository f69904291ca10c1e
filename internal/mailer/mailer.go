// Package mailer delivers messages over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/slipmail/slipmail/internal/model"
)

const defaultTimeout = 30 * time.Second

// Config holds SMTP connection settings.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	TLSPolicy string // mandatory, opportunistic, none
	Timeout   time.Duration

	FromAddress string
	FromName    string
}

// Mailer is an SMTP transport. Each Send opens its own connection so one
// failed delivery cannot poison the next.
type Mailer struct {
	cfg    Config
	policy mail.TLSPolicy
	log    zerolog.Logger
}

// New validates cfg and returns a mailer.
func New(cfg Config, log zerolog.Logger) (*Mailer, error) {
	policy, err := ParseTLSPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.FromName) == "" {
		cfg.FromName = model.DefaultFromName
	}
	m := &Mailer{
		cfg:    cfg,
		policy: policy,
		log:    log.With().Str("component", "mailer").Logger(),
	}
	m.log.Debug().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Int("password_len", len(cfg.Password)).
		Msg("smtp transport configured")
	return m, nil
}

// ParseTLSPolicy maps a config value to a go-mail TLS policy.
func ParseTLSPolicy(s string) (mail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("mailer: unknown tls policy %q", s)
	}
}

// Preflight reports configuration that makes every send fail.
func (m *Mailer) Preflight() error {
	if strings.TrimSpace(m.cfg.Host) == "" {
		return fmt.Errorf("%w: smtp host is empty", model.ErrTransportMisconfigured)
	}
	if m.cfg.Port <= 0 || m.cfg.Port > 65535 {
		return fmt.Errorf("%w: invalid smtp port %d", model.ErrTransportMisconfigured, m.cfg.Port)
	}
	if (m.cfg.Username == "") != (m.cfg.Password == "") {
		return fmt.Errorf("%w: smtp username and password must be set together", model.ErrTransportMisconfigured)
	}
	return nil
}

// Send delivers msg and reports the transport error, if any.
func (m *Mailer) Send(ctx context.Context, msg *model.Message) error {
	gm, err := BuildMessage(msg)
	if err != nil {
		return err
	}
	client, err := m.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// Verify connects and authenticates without sending anything.
func (m *Mailer) Verify(ctx context.Context) error {
	if err := m.Preflight(); err != nil {
		return err
	}
	client, err := m.client()
	if err != nil {
		return err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp dial %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	return client.Close()
}

// SendTest mails a short probe message to the sender address itself.
func (m *Mailer) SendTest(ctx context.Context) error {
	if err := m.Verify(ctx); err != nil {
		return err
	}
	return m.Send(ctx, &model.Message{
		FromName:    m.cfg.FromName,
		FromAddress: m.cfg.FromAddress,
		To:          m.cfg.FromAddress,
		Subject:     "SMTP test from slipmail",
		Body:        "If you received this email, the mail settings for slipmail are correct.",
	})
}

func (m *Mailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPolicy(m.policy),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
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
		return nil, fmt.Errorf("%w: %v", model.ErrTransportMisconfigured, err)
	}
	return client, nil
}

// BuildMessage converts msg into a MIME message.
func BuildMessage(msg *model.Message) (*mail.Msg, error) {
	gm := mail.NewMsg()
	if err := gm.FromFormat(msg.FromName, msg.FromAddress); err != nil {
		return nil, fmt.Errorf("from %q: %w", msg.FromAddress, err)
	}
	if err := gm.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, fmt.Errorf("to %q: %w", msg.To, err)
	}
	if len(msg.Cc) > 0 {
		if err := gm.Cc(msg.Cc...); err != nil {
			return nil, fmt.Errorf("cc: %w", err)
		}
	}
	gm.Subject(msg.Subject)
	gm.SetDate()
	gm.SetMessageID()
	gm.SetBodyString(mail.TypeTextPlain, msg.Body)

	for _, att := range msg.Attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		if err := gm.AttachReader(att.Name, bytes.NewReader(att.Content),
			mail.WithFileContentType(mail.ContentType(ct))); err != nil {
			return nil, fmt.Errorf("attach %q: %w", att.Name, err)
		}
	}
	return gm, nil
}
