package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SMSSender delivers a text message
type SMSSender interface {
	SendSMS(ctx context.Context, params *models.SMSParams) (string, error)
}

// SNSAPI is the subset of the SNS client used for delivery
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSMSSender sends transactional SMS through AWS SNS
type SNSSMSSender struct {
	client   SNSAPI
	senderID string
	logger   *slog.Logger
}

// NewSNSSMSSender builds an SNS client for region. A nil creds falls back to
// the default AWS credential chain.
func NewSNSSMSSender(ctx context.Context, region, senderID string, creds aws.CredentialsProvider, logger *slog.Logger) (*SNSSMSSender, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds != nil {
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSNSSMSSenderWithClient(sns.NewFromConfig(cfg), senderID, logger), nil
}

func NewSNSSMSSenderWithClient(client SNSAPI, senderID string, logger *slog.Logger) *SNSSMSSender {
	return &SNSSMSSender{client: client, senderID: senderID, logger: logger}
}

func (s *SNSSMSSender) SendSMS(ctx context.Context, params *models.SMSParams) (string, error) {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	result, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(params.To),
		Message:           aws.String(params.Message),
		MessageAttributes: attrs,
	})
	if err != nil {
		s.logger.Error("failed to send SMS via SNS", slog.Any("error", err))
		return "", fmt.Errorf("failed to send sms: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Info("sms sent", slog.String("message_id", messageID))
	return messageID, nil
}

// SMSCredentials is the JSON shape of the SMS credentials secret
type SMSCredentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// SecretCredentialsProvider resolves AWS credentials from a JSON secret held
// in the secret cache
type SecretCredentialsProvider struct {
	secrets *SecretCache
	key     string
}

func NewSecretCredentialsProvider(secrets *SecretCache, key string) *SecretCredentialsProvider {
	return &SecretCredentialsProvider{secrets: secrets, key: key}
}

func (p *SecretCredentialsProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	var creds SMSCredentials
	if err := p.secrets.GetJSON(ctx, p.key, &creds); err != nil {
		return aws.Credentials{}, err
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("secret %s is missing access keys", p.key)
	}
	return aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		Source:          "SecretCache",
	}, nil
}

var _ aws.CredentialsProvider = (*SecretCredentialsProvider)(nil)

// LogSMSSender logs messages instead of sending them
type LogSMSSender struct {
	logger *slog.Logger
}

func NewLogSMSSender(logger *slog.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

func (s *LogSMSSender) SendSMS(_ context.Context, params *models.SMSParams) (string, error) {
	s.logger.Info("sms delivery skipped", slog.Int("length", len(params.Message)))
	return "log-sms", nil
}
