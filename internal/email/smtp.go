package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

type smtpService struct {
	dialer *gomail.Dialer
	cfg    SMTPConfig
}

func NewSMTPService(cfg SMTPConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		cfg:    cfg,
	}
}

func (s *smtpService) SendVerification(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/auth/verify?token=%s", s.cfg.BaseURL, token)
	body := fmt.Sprintf("Confirm your email address by following this link:\r\n\r\n%s\r\n", link)
	return s.send(ctx, email, "Verify your email", body)
}

func (s *smtpService) SendPasswordReset(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset?token=%s", s.cfg.BaseURL, token)
	body := fmt.Sprintf("A password reset was requested for your account.\r\n\r\n%s\r\n\r\nIgnore this message if it wasn't you.\r\n", link)
	return s.send(ctx, email, "Reset your password", body)
}

func (s *smtpService) SendWelcome(ctx context.Context, email, name string) error {
	body := fmt.Sprintf("Hi %s,\r\n\r\nYour account is ready.\r\n", name)
	return s.send(ctx, email, "Welcome", body)
}

func (s *smtpService) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
