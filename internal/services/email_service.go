package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"vibe/internal/metrics"
)

type EmailService interface {
	SendVerificationEmail(to, firstName, code, token string, ttl time.Duration) error
	SendPasswordRecoveryEmail(to, firstName, code, token string, ttl time.Duration) error
}

type EmailSettings struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	// PublicURL: база для ссылок в письмах (фронтенд).
	PublicURL string
	// DryRun: письма не отправляются, только пишутся в лог.
	DryRun bool
}

// mailSender: часть gomail.Dialer, которой пользуемся.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailService struct {
	sender  mailSender
	from    string
	baseURL string
	dryRun  bool
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewEmailService(cfg EmailSettings, m *metrics.Metrics, log *zap.Logger) EmailService {
	dryRun := cfg.DryRun || cfg.SMTPHost == ""
	return &emailService{
		sender:  gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:    cfg.FromEmail,
		baseURL: strings.TrimRight(cfg.PublicURL, "/"),
		dryRun:  dryRun,
		metrics: m,
		log:     log,
	}
}

func (s *emailService) SendVerificationEmail(to, firstName, code, token string, ttl time.Duration) error {
	link := s.baseURL + "/verify-email?token=" + url.QueryEscape(token)
	return s.send("verification", to, "Confirm your email - Vibe", verificationEmailTmpl, emailData{
		FirstName: firstName,
		Code:      code,
		Link:      link,
		TTL:       humanTTL(ttl),
	})
}

func (s *emailService) SendPasswordRecoveryEmail(to, firstName, code, token string, ttl time.Duration) error {
	link := s.baseURL + "/reset-password?token=" + url.QueryEscape(token)
	return s.send("password_recovery", to, "Password recovery - Vibe", recoveryEmailTmpl, emailData{
		FirstName: firstName,
		Code:      code,
		Link:      link,
		TTL:       humanTTL(ttl),
	})
}

func (s *emailService) send(kind, to, subject string, tmpl *template.Template, data emailData) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		s.metrics.EmailsSent.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("render %s email: %w", kind, err)
	}

	if s.dryRun {
		// dry-run: код и ссылку видно только в логе
		s.log.Info("[email][dry-run] message not sent",
			zap.String("template", kind),
			zap.String("to", to),
			zap.String("code", data.Code),
			zap.String("link", data.Link),
		)
		s.metrics.EmailsSent.WithLabelValues(kind, "dry_run").Inc()
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	if err := s.sender.DialAndSend(m); err != nil {
		s.metrics.EmailsSent.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	s.metrics.EmailsSent.WithLabelValues(kind, "sent").Inc()
	return nil
}

func humanTTL(d time.Duration) string {
	if d <= 0 {
		return "a few minutes"
	}
	if m := int(d.Minutes()); m > 0 && d%time.Minute == 0 {
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
