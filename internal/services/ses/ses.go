// Package ses sends policy review notifications via AWS SES
package ses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"lender-policy-review/internal/config"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/utils"
)

// ErrNoRecipients is returned when an email has nobody to go to.
var ErrNoRecipients = errors.New("no recipients")

// EmailSender is the subset of the SES client used here.
type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Service handles SES email operations
type Service struct {
	client    EmailSender
	fromEmail string
	logger    *zap.Logger
}

// EmailParams represents parameters for sending an email
type EmailParams struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
	ReplyTo  string
}

// SendEmailResult contains the result of sending an email
type SendEmailResult struct {
	MessageID string
	SentAt    time.Time
}

// ReviewNotice announces an extraction that is waiting for review.
type ReviewNotice struct {
	ExtractionID string
	Filename     string
	SourceKey    string
	LenderName   string
	Failed       bool
	FailureError string
	ProgramCount int
	RuleCount    int
	Valid        bool
	Issues       []string
	DashboardURL string
}

// ApprovalNotice announces a lender that was created from an extraction.
type ApprovalNotice struct {
	ExtractionID string
	Filename     string
	LenderName   string
	LenderID     string
	ProgramCount int
	Message      string
	DashboardURL string
}

// NewService creates a service over an existing client.
func NewService(client EmailSender, fromEmail string, logger *zap.Logger) *Service {
	return &Service{
		client:    client,
		fromEmail: fromEmail,
		logger:    utils.OrDefault(logger, "ses"),
	}
}

// NewFromConfig loads AWS credentials and builds a service for cfg's sender.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewService(ses.NewFromConfig(awsCfg), cfg.SESSenderEmail, nil), nil
}

// SendEmail sends a basic email
func (s *Service) SendEmail(ctx context.Context, params EmailParams) (*SendEmailResult, error) {
	if len(params.To) == 0 {
		return nil, ErrNoRecipients
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: params.To,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(params.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if params.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(params.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if params.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(params.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if params.ReplyTo != "" {
		input.ReplyToAddresses = []string{params.ReplyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("Failed to send email",
			zap.Strings("to", params.To),
			zap.String("subject", params.Subject),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Info("Email sent successfully",
		zap.Strings("to", params.To),
		zap.String("subject", params.Subject),
		zap.String("messageId", messageID),
	)

	return &SendEmailResult{
		MessageID: messageID,
		SentAt:    time.Now(),
	}, nil
}

// BuildReviewNotice summarises an extraction result for reviewers.
func BuildReviewNotice(result *models.ExtractionResult, sourceKey, dashboardURL string) ReviewNotice {
	notice := ReviewNotice{
		ExtractionID: result.ExtractionID,
		Filename:     result.PDFFilename,
		SourceKey:    sourceKey,
		Failed:       result.Status.IsFailed(),
		FailureError: result.Error,
		Valid:        result.Validation == nil || result.Validation.Valid,
		DashboardURL: dashboardURL,
	}
	if result.ExtractedData != nil {
		notice.LenderName = result.ExtractedData.Lender.Name
		notice.ProgramCount = len(result.ExtractedData.Programs)
		notice.RuleCount = result.ExtractedData.RuleCount()
	}
	if result.Validation != nil {
		for _, f := range result.Validation.Errors {
			if f.Severity == models.SeverityError {
				notice.Issues = append(notice.Issues, fmt.Sprintf("%s: %s", f.Field, f.Message))
			}
		}
	}
	return notice
}

// SendReviewReady tells reviewers that an extraction is waiting for them.
func (s *Service) SendReviewReady(ctx context.Context, to []string, notice ReviewNotice) (*SendEmailResult, error) {
	htmlBody, err := render(reviewReadyTemplate, notice)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	subject := fmt.Sprintf("Lender policy ready for review: %s", displayName(notice.LenderName, notice.Filename))
	if notice.Failed {
		subject = fmt.Sprintf("Lender policy extraction failed: %s", notice.Filename)
	}

	return s.SendEmail(ctx, EmailParams{
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: reviewReadyText(notice),
	})
}

// SendApproved tells reviewers that a lender was created.
func (s *Service) SendApproved(ctx context.Context, to []string, notice ApprovalNotice) (*SendEmailResult, error) {
	htmlBody, err := render(approvedTemplate, notice)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	return s.SendEmail(ctx, EmailParams{
		To:       to,
		Subject:  fmt.Sprintf("Lender approved: %s", displayName(notice.LenderName, notice.Filename)),
		HTMLBody: htmlBody,
		TextBody: approvedText(notice),
	})
}

func displayName(lender, filename string) string {
	if lender != "" {
		return lender
	}
	return filename
}

var reviewReadyTemplate = template.Must(template.New("review_ready").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1f3a5f; color: white; padding: 24px; border-radius: 10px 10px 0 0; }
        .content { background: #f9f9f9; padding: 24px; border-radius: 0 0 10px 10px; }
        .issues li { color: #b00020; }
        .cta-button { display: inline-block; background: #1f3a5f; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; font-weight: bold; }
    </style>
</head>
<body>
    <div class="header">
        {{if .Failed}}<h1>Extraction failed</h1>{{else}}<h1>Policy ready for review</h1>{{end}}
        <p>{{.Filename}}</p>
    </div>
    <div class="content">
        {{if .Failed}}
        <p>The policy document could not be extracted: {{.FailureError}}</p>
        {{else}}
        <p><strong>{{.LenderName}}</strong>: {{.ProgramCount}} programs, {{.RuleCount}} rules.</p>
        {{if .Valid}}<p>No blocking validation errors were reported.</p>{{else}}
        <p>The extraction needs corrections before it can be approved:</p>
        <ul class="issues">{{range .Issues}}<li>{{.}}</li>{{end}}</ul>
        {{end}}
        {{end}}
        {{if .DashboardURL}}<p><a href="{{.DashboardURL}}" class="cta-button">Open review</a></p>{{end}}
        <p style="color:#999;font-size:12px">Extraction {{.ExtractionID}}{{if .SourceKey}} from {{.SourceKey}}{{end}}</p>
    </div>
</body>
</html>`))

var approvedTemplate = template.Must(template.New("approved").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #28a745; color: white; padding: 24px; border-radius: 10px 10px 0 0; }
        .content { background: #f9f9f9; padding: 24px; border-radius: 0 0 10px 10px; }
    </style>
</head>
<body>
    <div class="header"><h1>Lender approved</h1></div>
    <div class="content">
        <p><strong>{{.LenderName}}</strong> was created with {{.ProgramCount}} programs.</p>
        {{if .Message}}<p>{{.Message}}</p>{{end}}
        {{if .DashboardURL}}<p><a href="{{.DashboardURL}}">Open dashboard</a></p>{{end}}
        <p style="color:#999;font-size:12px">Lender {{.LenderID}}, extraction {{.ExtractionID}}</p>
    </div>
</body>
</html>`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func reviewReadyText(n ReviewNotice) string {
	var b strings.Builder

	if n.Failed {
		fmt.Fprintf(&b, "Extraction of %s failed: %s\n\n", n.Filename, n.FailureError)
	} else {
		fmt.Fprintf(&b, "%s is ready for review.\n\n", displayName(n.LenderName, n.Filename))
		fmt.Fprintf(&b, "Programs: %d\nRules: %d\n", n.ProgramCount, n.RuleCount)
		if !n.Valid {
			b.WriteString("\nCorrections needed before approval:\n")
			for _, issue := range n.Issues {
				fmt.Fprintf(&b, "  - %s\n", issue)
			}
		}
		b.WriteString("\n")
	}
	if n.DashboardURL != "" {
		fmt.Fprintf(&b, "Open review: %s\n\n", n.DashboardURL)
	}
	fmt.Fprintf(&b, "Extraction ID: %s\n", n.ExtractionID)
	return b.String()
}

func approvedText(n ApprovalNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s was approved and created with %d programs.\n", displayName(n.LenderName, n.Filename), n.ProgramCount)
	if n.Message != "" {
		fmt.Fprintf(&b, "%s\n", n.Message)
	}
	if n.DashboardURL != "" {
		fmt.Fprintf(&b, "\nDashboard: %s\n", n.DashboardURL)
	}
	fmt.Fprintf(&b, "\nLender ID: %s\nExtraction ID: %s\n", n.LenderID, n.ExtractionID)
	return b.String()
}
