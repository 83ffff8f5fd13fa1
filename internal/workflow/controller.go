package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lender-policy-review/internal/metrics"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/extraction"
	"lender-policy-review/internal/utils"
)

// DefaultResetDelay is how long the approved confirmation stays up.
const DefaultResetDelay = 3 * time.Second

// DiscardPrompt is shown to the operator before an extraction is deleted.
const DiscardPrompt = "Are you sure you want to discard this extraction? This cannot be undone."

// ErrSuperseded is returned when the session moved on while a call was in flight.
var ErrSuperseded = errors.New("session changed while the request was in flight")

// ExtractionAPI is the remote extraction service.
type ExtractionAPI interface {
	Upload(ctx context.Context, filename string, content io.Reader, opts models.UploadOptions) (*models.ExtractionResult, error)
	List(ctx context.Context) (*models.ExtractionList, error)
	Get(ctx context.Context, id string) (*models.ExtractionResult, error)
	Update(ctx context.Context, id string, req models.UpdateExtractionRequest) (*models.ExtractionResult, error)
	Approve(ctx context.Context, id string) (*models.ApprovalResponse, error)
	Delete(ctx context.Context, id string) error
}

// ResultListener is told whenever the session's result is replaced.
// A nil result means the session was cleared.
type ResultListener interface {
	Load(result *models.ExtractionResult)
}

// ApprovalHook runs after a successful approval. It must not block for long.
type ApprovalHook func(ctx context.Context, session Session)

// ConfirmFunc asks the operator to confirm a destructive action.
type ConfirmFunc func(prompt string) bool

// Confirmed returns a ConfirmFunc with a fixed answer.
func Confirmed(ok bool) ConfirmFunc {
	return func(string) bool { return ok }
}

// Scheduler runs f after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Controller owns one review session at a time. At most one upload and one
// approval may be in flight; saves are not serialized and the last
// response to arrive wins.
type Controller struct {
	api        ExtractionAPI
	logger     *zap.Logger
	uploadOpts models.UploadOptions
	resetDelay time.Duration
	schedule   Scheduler
	now        func() time.Time
	newID      func() string
	hooks      []ApprovalHook
	listeners  []ResultListener
	hookWG     sync.WaitGroup

	mu         sync.Mutex
	state      State
	sessionID  string
	filename   string
	result     *models.ExtractionResult
	errMsg     string
	approval   *models.ApprovalResponse
	generation uint64
	stopReset  func() bool
	updatedAt  time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithUploadOptions sets the extraction flags sent with uploads.
func WithUploadOptions(opts models.UploadOptions) Option {
	return func(c *Controller) { c.uploadOpts = opts }
}

// WithResetDelay sets how long the approved state lasts before returning to idle.
func WithResetDelay(d time.Duration) Option {
	return func(c *Controller) { c.resetDelay = d }
}

// WithScheduler replaces the timer used for the post-approval reset.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.schedule = s }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithApprovalHook adds a hook run after each successful approval.
func WithApprovalHook(h ApprovalHook) Option {
	return func(c *Controller) { c.hooks = append(c.hooks, h) }
}

// WithResultListener adds a listener for result changes.
func WithResultListener(l ResultListener) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, l) }
}

// NewController creates an idle controller over api.
func NewController(api ExtractionAPI, opts ...Option) *Controller {
	c := &Controller{
		api:        api,
		uploadOpts: models.UploadOptions{ValidateExtraction: true},
		resetDelay: DefaultResetDelay,
		schedule:   afterFunc,
		now:        time.Now,
		newID:      uuid.NewString,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrDefault(c.logger, "workflow")
	c.updatedAt = c.now()
	return c
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) snapshotLocked() Session {
	s := Session{
		ID:             c.sessionID,
		State:          c.state,
		Status:         statusFor(c.state, c.result, c.errMsg),
		SourceFilename: c.filename,
		Result:         c.result,
		ErrorMessage:   c.errMsg,
		Approval:       c.approval,
		UpdatedAt:      c.updatedAt,
	}
	if c.state == StateReviewing {
		s.ApprovalBlockedReason = c.result.ApprovalBlocked()
		s.CanApprove = s.ApprovalBlockedReason == ""
	}
	return s
}

// Upload checks the file locally, sends it for extraction and moves the
// session into review. Any prior error and result are cleared first.
func (c *Controller) Upload(ctx context.Context, filename string, data []byte) (Session, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		err := &TransitionError{Action: "upload", State: c.state}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	if err := models.ValidateUploadFile(filename, int64(len(data))); err != nil {
		c.errMsg = err.Error()
		c.touchLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Info("Rejected upload", zap.String("filename", filename), zap.Error(err))
		return snap, err
	}

	c.generation++
	gen := c.generation
	c.sessionID = c.newID()
	c.filename = filename
	c.result = nil
	c.errMsg = ""
	c.approval = nil
	c.transitionLocked(StateUploading)
	opts := c.uploadOpts
	c.mu.Unlock()

	c.logger.Info("Uploading policy for extraction",
		zap.String("filename", filename),
		zap.Int("bytes", len(data)),
		zap.Bool("enhance", opts.Enhance),
	)
	result, err := c.api.Upload(ctx, filename, bytes.NewReader(data), opts)

	c.mu.Lock()
	if gen != c.generation {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Info("Dropping upload response for a reset session", zap.String("filename", filename))
		return snap, ErrSuperseded
	}
	if err != nil {
		c.errMsg = extraction.Message(err)
		c.sessionID = ""
		c.filename = ""
		c.transitionLocked(StateIdle)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}

	c.result = result
	c.transitionLocked(StateReviewing)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("Extraction ready for review",
		zap.String("extraction_id", result.ExtractionID),
		zap.String("status", string(result.Status)),
	)
	c.notify(result)
	return snap, nil
}

// List returns the service's extractions, newest first.
func (c *Controller) List(ctx context.Context) (*models.ExtractionList, error) {
	list, err := c.api.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list.Extractions, func(i, j int) bool {
		return list.Extractions[i].CreatedAt.After(list.Extractions[j].CreatedAt)
	})
	return list, nil
}

// Open loads an existing extraction into review, replacing any current one.
func (c *Controller) Open(ctx context.Context, id string) (Session, error) {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateReviewing {
		err := &TransitionError{Action: "open an extraction", State: c.state}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	gen := c.generation
	c.mu.Unlock()

	result, err := c.api.Get(ctx, id)

	c.mu.Lock()
	if gen != c.generation || (c.state != StateIdle && c.state != StateReviewing) {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrSuperseded
	}
	if err != nil {
		c.errMsg = extraction.Message(err)
		c.touchLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}

	c.generation++
	c.sessionID = c.newID()
	c.filename = result.PDFFilename
	c.result = result
	c.errMsg = ""
	c.approval = nil
	c.transitionLocked(StateReviewing)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(result)
	return snap, nil
}

// SaveEdits sends edited data to the service and adopts the revalidated
// result. It satisfies the editor's committer contract.
func (c *Controller) SaveEdits(ctx context.Context, req models.UpdateExtractionRequest) (*models.ExtractionResult, error) {
	c.mu.Lock()
	if c.state != StateReviewing {
		err := &TransitionError{Action: "save", State: c.state}
		c.mu.Unlock()
		return nil, err
	}
	id := c.result.ExtractionID
	gen := c.generation
	c.mu.Unlock()

	result, err := c.api.Update(ctx, id, req)

	c.mu.Lock()
	if gen != c.generation || c.state != StateReviewing {
		c.mu.Unlock()
		c.logger.Info("Dropping save response for a changed session", zap.String("extraction_id", id))
		return nil, ErrSuperseded
	}
	if err != nil {
		c.errMsg = extraction.Message(err)
		c.touchLocked()
		c.mu.Unlock()
		return nil, err
	}

	c.result = result
	c.errMsg = ""
	c.touchLocked()
	c.mu.Unlock()

	valid := result.Validation == nil || result.Validation.Valid
	c.logger.Info("Saved extraction edits",
		zap.String("extraction_id", id),
		zap.Bool("valid", valid),
	)
	c.notify(result)
	return result, nil
}

// Approve persists the reviewed extraction. It is refused while the
// result is failed, empty or marked invalid by the service.
func (c *Controller) Approve(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.state != StateReviewing {
		err := &TransitionError{Action: "approve", State: c.state}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	if reason := c.result.ApprovalBlocked(); reason != "" {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: %s", ErrApprovalBlocked, reason)
	}
	id := c.result.ExtractionID
	gen := c.generation
	c.errMsg = ""
	c.transitionLocked(StateApproving)
	c.mu.Unlock()

	resp, err := c.api.Approve(ctx, id)
	if err == nil && !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = extraction.GenericErrorMessage
		}
		err = &extraction.APIError{Operation: extraction.OpApprove, StatusCode: 200, Detail: msg}
	}

	c.mu.Lock()
	if gen != c.generation {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrSuperseded
	}
	if err != nil {
		c.errMsg = extraction.Message(err)
		c.transitionLocked(StateReviewing)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}

	c.approval = resp
	c.transitionLocked(StateApproved)
	c.stopReset = c.schedule(c.resetDelay, func() { c.resetAfterApproval(gen) })
	snap := c.snapshotLocked()
	hooks := append([]ApprovalHook(nil), c.hooks...)
	c.mu.Unlock()

	c.logger.Info("Extraction approved",
		zap.String("extraction_id", id),
		zap.String("lender_id", resp.LenderID),
		zap.Int("programs", len(resp.ProgramIDs)),
	)
	// hooks must not hold up the approve response
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range hooks {
		c.hookWG.Add(1)
		go func(hook ApprovalHook) {
			defer c.hookWG.Done()
			hook(hookCtx, snap)
		}(hook)
	}
	return snap, nil
}

// WaitHooks blocks until approval hooks already started have returned.
func (c *Controller) WaitHooks() {
	c.hookWG.Wait()
}

func (c *Controller) resetAfterApproval(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateApproved {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.mu.Unlock()
	c.notify(nil)
}

// Discard deletes the extraction under review after operator confirmation.
// If the delete fails the session stays in review with the error shown.
func (c *Controller) Discard(ctx context.Context, confirm ConfirmFunc) (Session, error) {
	c.mu.Lock()
	if c.state != StateReviewing {
		err := &TransitionError{Action: "discard", State: c.state}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	id := c.result.ExtractionID
	gen := c.generation
	c.mu.Unlock()

	if confirm == nil || !confirm(DiscardPrompt) {
		return c.Snapshot(), ErrDiscardNotConfirmed
	}

	err := c.api.Delete(ctx, id)

	c.mu.Lock()
	if gen != c.generation || c.state != StateReviewing {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrSuperseded
	}
	if err != nil {
		c.errMsg = extraction.Message(err)
		c.touchLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}

	c.resetLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("Extraction discarded", zap.String("extraction_id", id))
	c.notify(nil)
	return snap, nil
}

// Reset returns to idle from any state. Responses to calls still in
// flight are dropped when they arrive.
func (c *Controller) Reset() Session {
	c.mu.Lock()
	c.resetLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(nil)
	return snap
}

// ClearError dismisses the current error message.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
	c.touchLocked()
}

func (c *Controller) resetLocked() {
	c.generation++
	if c.stopReset != nil {
		c.stopReset()
		c.stopReset = nil
	}
	c.sessionID = ""
	c.filename = ""
	c.result = nil
	c.errMsg = ""
	c.approval = nil
	c.transitionLocked(StateIdle)
}

func (c *Controller) transitionLocked(to State) {
	from := c.state
	c.state = to
	c.touchLocked()
	if from == to {
		return
	}
	metrics.WorkflowTransitions.WithLabelValues(string(from), string(to)).Inc()
	c.logger.Debug("Workflow transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("session_id", c.sessionID),
	)
}

func (c *Controller) touchLocked() {
	c.updatedAt = c.now()
}

func (c *Controller) notify(result *models.ExtractionResult) {
	for _, l := range c.listeners {
		l.Load(result)
	}
}
