package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lender-policy-review/internal/models"
)

type fakeSender struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSender) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func invalidResult() *models.ExtractionResult {
	return &models.ExtractionResult{
		ExtractionID: "x1",
		Status:       models.ExtractionStatusSuccess,
		PDFFilename:  "acme.pdf",
		ExtractedData: &models.ExtractedPolicyData{
			Lender: models.Lender{Name: "Acme <Capital>"},
			Programs: []models.Program{
				{ProgramName: "Tier A", Rules: []models.Rule{models.NewRule(), models.NewRule()}},
			},
		},
		Validation: &models.ValidationResult{
			Valid: false,
			Errors: []models.ValidationFeedback{
				{Field: "lender.min_loan_amount", Message: "Minimum loan amount must be greater than zero", Severity: models.SeverityError},
				{Field: "programs[0].min_fit_score", Message: "odd score", Severity: models.SeverityWarning},
			},
		},
	}
}

func TestBuildReviewNotice(t *testing.T) {
	notice := BuildReviewNotice(invalidResult(), "policies/incoming/acme.pdf", "https://review.example.com/")

	assert.Equal(t, "Acme <Capital>", notice.LenderName)
	assert.Equal(t, 1, notice.ProgramCount)
	assert.Equal(t, 2, notice.RuleCount)
	assert.False(t, notice.Valid)
	assert.False(t, notice.Failed)
	assert.Equal(t, []string{"lender.min_loan_amount: Minimum loan amount must be greater than zero"}, notice.Issues)

	failed := BuildReviewNotice(&models.ExtractionResult{ExtractionID: "x2", Status: "error", Error: "no text"}, "", "")
	assert.True(t, failed.Failed)
	assert.True(t, failed.Valid)
	assert.Zero(t, failed.ProgramCount)
}

func TestSendReviewReady(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, "noreply@example.com", zap.NewNop())

	result, err := svc.SendReviewReady(context.Background(), []string{"ops@example.com"},
		BuildReviewNotice(invalidResult(), "policies/incoming/acme.pdf", "https://review.example.com/"))
	require.NoError(t, err)
	assert.Equal(t, "msg-1", result.MessageID)

	require.Len(t, sender.inputs, 1)
	in := sender.inputs[0]
	assert.Equal(t, "noreply@example.com", aws.ToString(in.Source))
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Lender policy ready for review: Acme <Capital>", aws.ToString(in.Message.Subject.Data))

	html := aws.ToString(in.Message.Body.Html.Data)
	assert.Contains(t, html, "Acme &lt;Capital&gt;")
	assert.Contains(t, html, "Minimum loan amount must be greater than zero")
	assert.Contains(t, html, "https://review.example.com/")

	text := aws.ToString(in.Message.Body.Text.Data)
	assert.Contains(t, text, "Programs: 1\nRules: 2\n")
	assert.Contains(t, text, "Corrections needed before approval")
}

func TestSendReviewReady_Failed(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, "noreply@example.com", zap.NewNop())

	notice := BuildReviewNotice(&models.ExtractionResult{ExtractionID: "x2", Status: models.ExtractionStatusFailed, PDFFilename: "scan.pdf", Error: "No text could be extracted"}, "", "")
	_, err := svc.SendReviewReady(context.Background(), []string{"ops@example.com"}, notice)
	require.NoError(t, err)

	in := sender.inputs[0]
	assert.Equal(t, "Lender policy extraction failed: scan.pdf", aws.ToString(in.Message.Subject.Data))
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "No text could be extracted")
}

func TestSendApproved(t *testing.T) {
	sender := &fakeSender{}
	svc := NewService(sender, "noreply@example.com", zap.NewNop())

	_, err := svc.SendApproved(context.Background(), []string{"ops@example.com", "risk@example.com"}, ApprovalNotice{
		ExtractionID: "x1",
		LenderName:   "Acme Capital",
		LenderID:     "L1",
		ProgramCount: 2,
		Message:      "Successfully created lender 'Acme Capital' with 2 programs",
	})
	require.NoError(t, err)

	in := sender.inputs[0]
	assert.Equal(t, "Lender approved: Acme Capital", aws.ToString(in.Message.Subject.Data))
	assert.Len(t, in.Destination.ToAddresses, 2)
	assert.Contains(t, aws.ToString(in.Message.Body.Text.Data), "Lender ID: L1")
}

func TestSendEmail_Errors(t *testing.T) {
	sender := &fakeSender{err: errors.New("throttled")}
	svc := NewService(sender, "noreply@example.com", zap.NewNop())

	_, err := svc.SendEmail(context.Background(), EmailParams{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipients)
	assert.Empty(t, sender.inputs)

	_, err = svc.SendEmail(context.Background(), EmailParams{To: []string{"a@example.com"}, Subject: "x", TextBody: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
