package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/textproto"
	"regexp"
	"sort"

	"github.com/BradenHooton/posgate/internal/models"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailSender delivers a rendered email
type EmailSender interface {
	SendEmail(ctx context.Context, params *models.EmailParams) (string, error)
}

// SESAPI is the subset of the SES client used for delivery
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESEmailSender sends emails using AWS SES
type SESEmailSender struct {
	client SESAPI
	logger *slog.Logger
}

// NewSESEmailSender loads the default AWS config for region
func NewSESEmailSender(ctx context.Context, region string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESEmailSenderWithClient(ses.NewFromConfig(cfg), logger), nil
}

func NewSESEmailSenderWithClient(client SESAPI, logger *slog.Logger) *SESEmailSender {
	return &SESEmailSender{client: client, logger: logger}
}

// SES tag values allow only letters, digits, underscore and dash
var sesTagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SendEmail uses the simple API, or a raw MIME message when the email
// carries attachments. Headers and categories become message tags on the
// simple path.
func (s *SESEmailSender) SendEmail(ctx context.Context, params *models.EmailParams) (string, error) {
	if len(params.Attachments) > 0 {
		return s.sendRaw(ctx, params)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(params.From),
		Destination: &types.Destination{
			ToAddresses: []string{params.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(params.Subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(params.HTML),
				},
			},
		},
		Tags: sesTags(params),
	}
	if params.Text != "" {
		input.Message.Body.Text = &types.Content{Data: aws.String(params.Text)}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(params.To)),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(params.To)),
		slog.String("message_id", messageID))
	return messageID, nil
}

func (s *SESEmailSender) sendRaw(ctx context.Context, params *models.EmailParams) (string, error) {
	raw, err := buildMIMEMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to build raw email: %w", err)
	}

	result, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Destinations: []string{params.To},
		Source:       aws.String(params.From),
		Tags:         sesTags(params),
	})
	if err != nil {
		s.logger.Error("failed to send raw email via SES",
			slog.String("email", pkglogger.SanitizedEmail(params.To)),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(params.To)),
		slog.String("message_id", messageID),
		slog.Int("attachments", len(params.Attachments)))
	return messageID, nil
}

func sesTags(params *models.EmailParams) []types.MessageTag {
	var tags []types.MessageTag
	if ref := params.Headers["X-Entity-Ref-ID"]; ref != "" {
		tags = append(tags, types.MessageTag{
			Name:  aws.String("entity_ref_id"),
			Value: aws.String(sesTagUnsafe.ReplaceAllString(ref, "_")),
		})
	}
	for i, category := range params.Categories {
		tags = append(tags, types.MessageTag{
			Name:  aws.String(fmt.Sprintf("category_%d", i)),
			Value: aws.String(sesTagUnsafe.ReplaceAllString(category, "_")),
		})
	}
	return tags
}

// buildMIMEMessage writes a multipart/mixed message with an alternative
// text/html body followed by the base64 attachments
func buildMIMEMessage(params *models.EmailParams) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	headers := map[string]string{
		"From":         params.From,
		"To":           params.To,
		"Subject":      mime.QEncoding.Encode("utf-8", params.Subject),
		"MIME-Version": "1.0",
		"Content-Type": fmt.Sprintf("multipart/mixed; boundary=%q", mixed.Boundary()),
	}
	for k, v := range params.Headers {
		headers[k] = v
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headers[k])
	}
	buf.WriteString("\r\n")

	var alt bytes.Buffer
	altWriter := multipart.NewWriter(&alt)
	if params.Text != "" {
		if err := writePart(altWriter, "text/plain; charset=utf-8", params.Text); err != nil {
			return nil, err
		}
	}
	if err := writePart(altWriter, "text/html; charset=utf-8", params.HTML); err != nil {
		return nil, err
	}
	if err := altWriter.Close(); err != nil {
		return nil, err
	}

	body, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", altWriter.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, a := range params.Attachments {
		disposition := a.Disposition
		if disposition == "" {
			disposition = "attachment"
		}
		part, err := mixed.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {a.Type},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("%s; filename=%q", disposition, a.Filename)},
		})
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(a.Content)); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(w *multipart.Writer, contentType, content string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType}})
	if err != nil {
		return err
	}
	_, err = part.Write([]byte(content))
	return err
}

// LogEmailSender logs emails instead of sending them. Used in development.
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendEmail(_ context.Context, params *models.EmailParams) (string, error) {
	s.logger.Info("email delivery skipped",
		slog.String("email", pkglogger.SanitizedEmail(params.To)),
		slog.String("subject", params.Subject),
		slog.Any("categories", params.Categories))
	return "log-" + params.Headers["X-Entity-Ref-ID"], nil
}
