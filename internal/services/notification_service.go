package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

//go:embed templates/*
var templateFS embed.FS

// Template names under templates/
const (
	templatePasswordReset        = "password_reset"
	templatePasswordResetConfirm = "password_reset_confirmation"
	templateTwoFactorEnabled     = "two_factor_enabled"
	templateTwoFactorDisabled    = "two_factor_disabled"
)

// Notifier queues account notifications. Callers treat every error as
// best-effort and only log it.
type Notifier interface {
	PasswordResetRequested(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
	PasswordResetCompleted(ctx context.Context, user *models.User, resetAt time.Time, ipAddress string) error
	TwoFactorEnabled(ctx context.Context, user *models.User) error
	TwoFactorDisabled(ctx context.Context, user *models.User) error
}

// Queue carries notification messages to the delivery worker
type Queue interface {
	Publish(ctx context.Context, msg *models.NotificationMessage) error
}

// NotificationConfig holds sender identity and link targets
type NotificationConfig struct {
	FromAddress string
	FromName    string
	FrontendURL string
}

type emailTemplate struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NotificationService renders account emails and SMS alerts and publishes
// them to the queue
type NotificationService struct {
	queue     Queue
	cfg       NotificationConfig
	templates map[string]emailTemplate
	logger    *slog.Logger
	now       func() time.Time
}

func NewNotificationService(queue Queue, cfg NotificationConfig, logger *slog.Logger) (*NotificationService, error) {
	templates := make(map[string]emailTemplate)
	for _, name := range []string{templatePasswordReset, templatePasswordResetConfirm, templateTwoFactorEnabled, templateTwoFactorDisabled} {
		html, err := htmltemplate.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s html template: %w", name, err)
		}
		text, err := texttemplate.ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s text template: %w", name, err)
		}
		templates[name] = emailTemplate{html: html, text: text}
	}

	return &NotificationService{
		queue:     queue,
		cfg:       cfg,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}, nil
}

type emailData struct {
	Subject   string
	Title     string
	Name      string
	Email     string
	Role      string
	ResetURL  string
	ExpiresIn string
	ResetAt   string
	IPAddress string
	LoginURL  string
}

// PasswordResetRequested queues the reset link email
func (s *NotificationService) PasswordResetRequested(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	data := s.baseData(user, "Reset Your Password", "Password Reset Request")
	data.ResetURL = fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.FrontendURL, "/"), token)
	data.ExpiresIn = humanizeDuration(expiresAt.Sub(s.now()))

	return s.sendEmail(ctx, user.Email, templatePasswordReset, "password-reset", []string{"password-reset"}, data)
}

// PasswordResetCompleted queues the reset confirmation email
func (s *NotificationService) PasswordResetCompleted(ctx context.Context, user *models.User, resetAt time.Time, ipAddress string) error {
	data := s.baseData(user, "Password Successfully Reset", "Password Successfully Reset")
	data.ResetAt = resetAt.UTC().Format(time.RFC1123)
	if ipAddress != "" && ipAddress != "unknown" {
		data.IPAddress = ipAddress
	}

	return s.sendEmail(ctx, user.Email, templatePasswordResetConfirm, "password-confirmation",
		[]string{"password-confirmation", "security-notification"}, data)
}

// TwoFactorEnabled queues the 2FA enabled email
func (s *NotificationService) TwoFactorEnabled(ctx context.Context, user *models.User) error {
	data := s.baseData(user, "2FA Enabled - Your Account Security Update", "2FA Security Update")
	return s.sendEmail(ctx, user.Email, templateTwoFactorEnabled, "user-2fa-setup", []string{"user-2fa-setup"}, data)
}

// TwoFactorDisabled queues the 2FA disabled email, plus an SMS alert when the
// user has a phone number on file
func (s *NotificationService) TwoFactorDisabled(ctx context.Context, user *models.User) error {
	data := s.baseData(user, "2FA Disabled - Action Required for Your Account", "2FA Security Update")
	if err := s.sendEmail(ctx, user.Email, templateTwoFactorDisabled, "user-2fa-disabled", []string{"user-2fa-disabled"}, data); err != nil {
		return err
	}

	if user.Phone == nil || *user.Phone == "" {
		return nil
	}
	return s.publish(ctx, &models.NotificationMessage{
		Channel: models.ChannelSMS,
		SMS: &models.SMSParams{
			To:      *user.Phone,
			Message: "Two-factor authentication was disabled on your account. If this wasn't you, contact support immediately.",
		},
	})
}

func (s *NotificationService) baseData(user *models.User, subject, title string) emailData {
	name := user.DisplayName()
	if name == "" {
		name = user.Email
	}
	return emailData{
		Subject:  subject,
		Title:    title,
		Name:     name,
		Email:    user.Email,
		Role:     user.RoleName,
		LoginURL: strings.TrimRight(s.cfg.FrontendURL, "/") + "/login",
	}
}

func (s *NotificationService) render(to, name, refPrefix string, categories []string, data emailData) (*models.EmailParams, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}

	var html, text bytes.Buffer
	if err := tmpl.html.ExecuteTemplate(&html, "layout", data); err != nil {
		return nil, fmt.Errorf("failed to render %s html: %w", name, err)
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render %s text: %w", name, err)
	}

	return &models.EmailParams{
		From:    s.from(),
		To:      to,
		Subject: data.Subject,
		HTML:    html.String(),
		Text:    text.String(),
		Headers: map[string]string{
			"X-Entity-Ref-ID": fmt.Sprintf("%s-%d", refPrefix, s.now().UnixMilli()),
		},
		Categories: categories,
	}, nil
}

func (s *NotificationService) sendEmail(ctx context.Context, to, name, refPrefix string, categories []string, data emailData) error {
	params, err := s.render(to, name, refPrefix, categories, data)
	if err != nil {
		return err
	}
	return s.publish(ctx, &models.NotificationMessage{
		Channel: models.ChannelEmail,
		Email:   params,
	})
}

func (s *NotificationService) publish(ctx context.Context, msg *models.NotificationMessage) error {
	msg.RequestID = requestIDFrom(ctx)

	if err := s.queue.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", msg.Channel, err)
	}

	attrs := []any{
		slog.String("request_id", msg.RequestID),
		slog.String("channel", msg.Channel),
	}
	if msg.Email != nil {
		attrs = append(attrs, slog.String("to", pkglogger.SanitizedEmail(msg.Email.To)), slog.String("subject", msg.Email.Subject))
	}
	s.logger.Info("notification queued", attrs...)
	return nil
}

func (s *NotificationService) from() string {
	if s.cfg.FromName == "" {
		return s.cfg.FromAddress
	}
	return fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
}

// requestIDFrom reuses the HTTP request id so delivery logs correlate with
// the originating request
func requestIDFrom(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return "notify-" + id
	}
	return "notify-" + uuid.New().String()
}

func humanizeDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	switch {
	case d <= 0:
		return "a short time"
	case d%time.Hour == 0:
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		minutes := int(d / time.Minute)
		if minutes <= 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
}
