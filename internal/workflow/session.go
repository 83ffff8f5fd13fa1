// Package workflow drives one extraction review session from upload through
// approval or discard.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"lender-policy-review/internal/models"
)

// State is the controller's position in the review lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StateReviewing State = "reviewing"
	StateApproving State = "approving"
	StateApproved  State = "approved"
)

// SessionStatus summarises a session for display.
type SessionStatus string

const (
	SessionStatusUploading SessionStatus = "uploading"
	SessionStatusReviewing SessionStatus = "reviewing"
	SessionStatusApproving SessionStatus = "approving"
	SessionStatusSucceeded SessionStatus = "succeeded"
	SessionStatusFailed    SessionStatus = "failed"
)

// Workflow errors
var (
	ErrBusy                = errors.New("another request is already in flight")
	ErrInvalidTransition   = errors.New("action not allowed in current state")
	ErrDiscardNotConfirmed = errors.New("discard was not confirmed")
	ErrApprovalBlocked     = errors.New("approval is blocked")
)

// TransitionError reports an action attempted from the wrong state.
type TransitionError struct {
	Action string
	State  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Action, e.State)
}

func (e *TransitionError) Unwrap() error {
	if e.State == StateUploading || e.State == StateApproving {
		return ErrBusy
	}
	return ErrInvalidTransition
}

// Session is a point-in-time copy of the review session.
type Session struct {
	ID             string                   `json:"session_id,omitempty"`
	State          State                    `json:"state"`
	Status         SessionStatus            `json:"status,omitempty"`
	SourceFilename string                   `json:"source_filename,omitempty"`
	Result         *models.ExtractionResult `json:"result,omitempty"`
	ErrorMessage   string                   `json:"error_message,omitempty"`
	Approval       *models.ApprovalResponse `json:"approval,omitempty"`
	CanApprove     bool                     `json:"can_approve"`
	// ApprovalBlockedReason explains why approve is disabled in review.
	ApprovalBlockedReason string    `json:"approval_blocked_reason,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func statusFor(state State, result *models.ExtractionResult, errMsg string) SessionStatus {
	switch state {
	case StateUploading:
		return SessionStatusUploading
	case StateApproving:
		return SessionStatusApproving
	case StateApproved:
		return SessionStatusSucceeded
	case StateReviewing:
		if result != nil && result.Status.IsFailed() {
			return SessionStatusFailed
		}
		return SessionStatusReviewing
	default:
		if errMsg != "" {
			return SessionStatusFailed
		}
		return ""
	}
}
