package email

import (
	"context"
	"fmt"
	"log"

	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"linaro/webforms/internal/config"
)

// SESSender delivers through Amazon SES. The notifier already builds a full
// MIME message, so this uses the raw-content API rather than SES templates.
type SESSender struct {
	client *sesv2.Client
	cfg    *config.Config
}

// NewSESSender creates an SESSender. Explicit credentials from configuration
// take priority; otherwise the default AWS credential chain applies.
func NewSESSender(ctx context.Context, cfg *config.Config) (Sender, error) {
	opts := []func(*aws_config.LoadOptions) error{
		aws_config.WithRegion(cfg.AwsRegion),
	}
	if cfg.AwsAccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)))
	}

	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SES: %w", err)
	}

	return &SESSender{
		client: sesv2.NewFromConfig(awsCfg),
		cfg:    cfg,
	}, nil
}

func (s *SESSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: rawMessage},
		},
	})
	if err != nil {
		log.Printf("Failed to send email via SES to %v: %v", to, err)
		return fmt.Errorf("ses error: %w", err)
	}
	log.Printf("Email sent successfully via SES to %v (Subject: %s)", to, subject)
	return nil
}
