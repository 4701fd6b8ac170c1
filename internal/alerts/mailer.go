package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// Sender delivers one email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type PlunkConfig struct {
	APIKey string
	From   string
	APIURL string
}

// MailConfig selects and configures the mail provider. Provider is "smtp"
// or "plunk"; when empty, Plunk is used if an API key is set.
type MailConfig struct {
	Provider string
	SMTP     SMTPConfig
	Plunk    PlunkConfig
	ReplyTo  string
}

// NewSender returns the configured Sender.
func NewSender(cfg MailConfig) (Sender, error) {
	provider := cfg.Provider
	if provider == "" && cfg.Plunk.APIKey != "" {
		provider = "plunk"
	}
	switch provider {
	case "plunk":
		if cfg.Plunk.APIKey == "" {
			return nil, fmt.Errorf("plunk not configured: set PLUNK_API_KEY")
		}
		if cfg.Plunk.APIURL == "" {
			cfg.Plunk.APIURL = "https://api.useplunk.com/v1/send"
		}
		return &plunkSender{cfg: cfg.Plunk, replyTo: cfg.ReplyTo, client: &http.Client{Timeout: 15 * time.Second}}, nil
	case "", "smtp":
		s := cfg.SMTP
		if s.Host == "" || s.Port == "" || s.Username == "" || s.Password == "" || s.From == "" {
			return nil, fmt.Errorf("smtp not configured: set SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM (or set MAIL_PROVIDER=plunk)")
		}
		return &smtpSender{cfg: s, replyTo: cfg.ReplyTo}, nil
	}
	return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
}

type smtpSender struct {
	cfg     SMTPConfig
	replyTo string
}

func (s *smtpSender) message(to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if s.replyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", s.replyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	contentType := "text/plain"
	lb := strings.ToLower(body)
	if strings.Contains(lb, "<html") || strings.Contains(lb, "<body") || strings.Contains(lb, "<!doctype html") {
		contentType = "text/html"
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType)
	b.WriteString("\r\n" + body + "\r\n")
	return b.String()
}

// Send sends over implicit TLS.
func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	addr := s.cfg.Host + ":" + s.cfg.Port
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(s.message(to, subject, body))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}
