package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lender-policy-review/internal/services/ses"
	"lender-policy-review/internal/utils"
	"lender-policy-review/internal/workflow"
)

const notifyTimeout = 10 * time.Second

// ApprovalSender e-mails approval notices.
type ApprovalSender interface {
	SendApproved(ctx context.Context, to []string, notice ses.ApprovalNotice) (*ses.SendEmailResult, error)
}

// NewApprovalNotifier returns a workflow hook that e-mails operators once a
// lender is created. Send failures are logged and never fail the approval.
func NewApprovalNotifier(sender ApprovalSender, recipients []string, dashboardURL string, logger *zap.Logger) workflow.ApprovalHook {
	logger = utils.OrDefault(logger, "approval-notifier")

	return func(ctx context.Context, session workflow.Session) {
		if len(recipients) == 0 || session.Approval == nil {
			return
		}

		notice := ses.ApprovalNotice{
			Filename:     session.SourceFilename,
			LenderID:     session.Approval.LenderID,
			ProgramCount: len(session.Approval.ProgramIDs),
			Message:      session.Approval.Message,
			DashboardURL: dashboardURL,
		}
		if session.Result != nil {
			notice.ExtractionID = session.Result.ExtractionID
			if session.Result.ExtractedData != nil {
				notice.LenderName = session.Result.ExtractedData.Lender.Name
			}
		}

		// the request may finish before the mail goes out
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if _, err := sender.SendApproved(ctx, recipients, notice); err != nil {
			logger.Warn("Failed to send approval notification",
				zap.String("extraction_id", notice.ExtractionID),
				zap.Error(err),
			)
		}
	}
}
