package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESClient struct {
	client SESAPI
}

func NewSESClient(ctx context.Context, region string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESClient{client: ses.NewFromConfig(cfg)}, nil
}

func NewSESClientWithAPI(api SESAPI) *SESClient {
	return &SESClient{client: api}
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input)
}

// Email is a single-recipient message with HTML and plain text bodies.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Send delivers e and returns the SES message id.
func (s *SESClient) Send(ctx context.Context, e Email) (string, error) {
	out, err := s.client.SendEmail(ctx, buildEmailInput(e))
	if err != nil {
		return "", fmt.Errorf("ses send to %s: %w", e.To, err)
	}
	return aws.ToString(out.MessageId), nil
}

func buildEmailInput(e Email) *ses.SendEmailInput {
	body := &types.Body{}
	if e.HTML != "" {
		body.Html = &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(e.HTML)}
	}
	if e.Text != "" {
		body.Text = &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(e.Text)}
	}
	return &ses.SendEmailInput{
		Source:      aws.String(e.From),
		Destination: &types.Destination{ToAddresses: []string{e.To}},
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(e.Subject)},
			Body:    body,
		},
	}
}
