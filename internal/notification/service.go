// Package notification delivers bills by email through SMTP, Gmail,
// SendGrid or Resend, using the configuration held in storage.
package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/logging"
	"github.com/bher20/ebillmanager/internal/storage"
)

var (
	ErrNotConfigured   = errors.New("email not configured or disabled")
	ErrUnknownProvider = errors.New("unknown email provider")
	// ErrInvalidConfig wraps every email configuration validation failure.
	ErrInvalidConfig   = errors.New("invalid email config")
)

const defaultResendURL = "https://api.resend.com/emails"

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is an HTML email with an optional attachment.
type Message struct {
	To         string
	Subject    string
	HTML       string
	Attachment *Attachment
}

type Service struct {
	storage   storage.Storage
	http      *http.Client
	resendURL string
	log       *zap.Logger
}

type Option func(*Service)

// WithResendURL points the Resend provider at another endpoint.
func WithResendURL(u string) Option {
	return func(s *Service) { s.resendURL = u }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.http = c }
}

func NewService(s storage.Storage, opts ...Option) *Service {
	svc := &Service{
		storage:   s,
		http:      &http.Client{Timeout: 30 * time.Second},
		resendURL: defaultResendURL,
		log:       logging.Named("notification"),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

func (s *Service) GetConfig(ctx context.Context) (*storage.EmailConfig, error) {
	return s.storage.GetEmailConfig(ctx)
}

func (s *Service) SaveConfig(ctx context.Context, cfg storage.EmailConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	now := time.Now()
	if existing, err := s.storage.GetEmailConfig(ctx); err == nil && existing != nil {
		cfg.CreatedAt = existing.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	return s.storage.SaveEmailConfig(ctx, cfg)
}

func validateConfig(cfg storage.EmailConfig) error {
	switch cfg.Provider {
	case "smtp", "gmail":
		if cfg.Host == "" || cfg.Port == 0 {
			return fmt.Errorf("%w: %s provider needs host and port", ErrInvalidConfig, cfg.Provider)
		}
	case "sendgrid", "resend":
		if cfg.APIKey == "" {
			return fmt.Errorf("%w: %s provider needs an api key", ErrInvalidConfig, cfg.Provider)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownProvider, cfg.Provider)
	}
	if cfg.FromAddress == "" {
		return fmt.Errorf("%w: from_address is required", ErrInvalidConfig)
	}
	return nil
}

// Send delivers msg with the stored configuration.
func (s *Service) Send(ctx context.Context, msg Message) error {
	cfg, err := s.storage.GetEmailConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Enabled {
		return ErrNotConfigured
	}
	return s.send(ctx, cfg, msg)
}

// TestConfig sends a short message with cfg without saving it.
func (s *Service) TestConfig(ctx context.Context, cfg storage.EmailConfig, to string) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	return s.send(ctx, &cfg, Message{
		To:      to,
		Subject: "Test Email",
		HTML:    "<p>This is a test email from eBillManager.</p>",
	})
}

func (s *Service) send(ctx context.Context, cfg *storage.EmailConfig, msg Message) error {
	var err error
	switch cfg.Provider {
	case "smtp", "gmail":
		err = s.sendSMTP(cfg, msg)
	case "sendgrid":
		err = s.sendSendgrid(cfg, msg)
	case "resend":
		err = s.sendResend(ctx, cfg, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		s.log.Warn("email delivery failed", zap.String("provider", cfg.Provider), zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("send via %s: %w", cfg.Provider, err)
	}
	s.log.Info("email sent", zap.String("provider", cfg.Provider), zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (s *Service) sendSMTP(cfg *storage.EmailConfig, msg Message) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	body, err := buildMIME(cfg, msg)
	if err != nil {
		return err
	}

	var c *smtp.Client
	switch cfg.Encryption {
	case "ssl":
		// implicit TLS
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.Host})
		if err != nil {
			return err
		}
		c, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return err
		}
	case "tls":
		// STARTTLS
		c, err = smtp.Dial(addr)
		if err != nil {
			return err
		}
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				c.Close()
				return err
			}
		}
	default:
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		return smtp.SendMail(addr, auth, cfg.FromAddress, []string{msg.To}, body)
	}
	defer c.Quit()

	if cfg.Username != "" && cfg.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.FromAddress); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Close()
}

func (s *Service) sendSendgrid(cfg *storage.EmailConfig, msg Message) error {
	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.HTML, msg.HTML)
	if a := msg.Attachment; a != nil {
		att := mail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		att.SetType(a.ContentType)
		att.SetFilename(a.Filename)
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}
	resp, err := sendgrid.NewSendClient(cfg.APIKey).Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendPayload struct {
	From        string             `json:"from"`
	To          string             `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

func (s *Service) sendResend(ctx context.Context, cfg *storage.EmailConfig, msg Message) error {
	payload := resendPayload{
		From:    fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	if a := msg.Attachment; a != nil {
		payload.Attachments = []resendAttachment{{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		}}
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.resendURL, bytes.NewReader(jsonPayload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("resend error: %d %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}
