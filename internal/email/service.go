package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/bharatgpt/identity-api/internal/config"
	"github.com/bharatgpt/identity-api/internal/logging"
)

var ErrNotConfigured = errors.New("SMTP configuration is missing")

// Variant selects the template a message is rendered with
type Variant string

const (
	VariantRegistrationOTP  Variant = "registration_otp"
	VariantLoginOTP         Variant = "login_otp"
	VariantPasswordResetOTP Variant = "password_reset_otp"
	VariantWelcome          Variant = "welcome"
	VariantPasswordChanged  Variant = "password_changed"
)

// Message is a single outgoing mail
type Message struct {
	To      string
	Subject string
	Variant Variant
	Data    map[string]any
}

// Receipt identifies a sent message
type Receipt struct {
	MessageID string
}

// Sender is the transport; *gomail.Dialer satisfies it
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Service struct {
	sender      Sender
	fromAddress string
	frontendURL string
	configured  bool
	templates   map[Variant]*template.Template
}

// NewService builds the SMTP notifier from the injected email settings
func NewService(cfg config.EmailConfig) *Service {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return newService(dialer, cfg.FromAddress, cfg.FrontendURL, cfg.SMTPHost != "")
}

// NewServiceWithSender lets callers swap the transport
func NewServiceWithSender(sender Sender, fromAddress, frontendURL string) *Service {
	return newService(sender, fromAddress, frontendURL, true)
}

func newService(sender Sender, fromAddress, frontendURL string, configured bool) *Service {
	return &Service{
		sender:      sender,
		fromAddress: fromAddress,
		frontendURL: frontendURL,
		configured:  configured,
		templates:   mustParseTemplates(),
	}
}

// Send renders and delivers msg synchronously
func (s *Service) Send(ctx context.Context, msg Message) (*Receipt, error) {
	logger := logging.GetLoggerFromContext(ctx)

	if !s.configured {
		return nil, ErrNotConfigured
	}

	tmpl, ok := s.templates[msg.Variant]
	if !ok {
		return nil, fmt.Errorf("unknown email variant %q", msg.Variant)
	}

	data := map[string]any{"FrontendURL": s.frontendURL}
	for k, v := range msg.Data {
		data[k] = v
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		logger.Error("failed to render email template", "variant", msg.Variant, "error", err)
		return nil, fmt.Errorf("render template: %w", err)
	}

	messageID := fmt.Sprintf("<%s@bharatgpt>", uuid.NewString())

	m := gomail.NewMessage()
	m.SetHeader("From", s.fromAddress)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", body.String())

	if err := s.sender.DialAndSend(m); err != nil {
		logger.Error("failed to send email", "variant", msg.Variant, "email", msg.To, "error", err)
		return nil, fmt.Errorf("send email: %w", err)
	}

	logger.Info("email sent", "variant", msg.Variant, "email", msg.To, "message_id", messageID)
	return &Receipt{MessageID: messageID}, nil
}

// SendOTP delivers a one-time code for the given purpose
func (s *Service) SendOTP(ctx context.Context, to, purpose, code string, expiresIn time.Duration) error {
	variant, subject := otpVariant(purpose)
	_, err := s.Send(ctx, Message{
		To:      to,
		Subject: subject,
		Variant: variant,
		Data: map[string]any{
			"Code":    code,
			"Minutes": int(math.Ceil(expiresIn.Minutes())),
		},
	})
	return err
}

// SendWelcome greets an account created through a provider sign-in
func (s *Service) SendWelcome(ctx context.Context, to, name string) error {
	_, err := s.Send(ctx, Message{
		To:      to,
		Subject: "Welcome to BharatGPT",
		Variant: VariantWelcome,
		Data:    map[string]any{"Name": name},
	})
	return err
}

// SendPasswordChanged confirms a completed password reset
func (s *Service) SendPasswordChanged(ctx context.Context, to, name string) error {
	_, err := s.Send(ctx, Message{
		To:      to,
		Subject: "Your BharatGPT password was changed",
		Variant: VariantPasswordChanged,
		Data: map[string]any{
			"Name":      name,
			"ChangedAt": time.Now().UTC().Format("02 Jan 2006 15:04 MST"),
		},
	})
	return err
}

func otpVariant(purpose string) (Variant, string) {
	switch purpose {
	case "registration":
		return VariantRegistrationOTP, "Verify your email for BharatGPT"
	case "password_reset":
		return VariantPasswordResetOTP, "Reset your BharatGPT password"
	default:
		return VariantLoginOTP, "Your BharatGPT login code"
	}
}
