package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	appConfig "lender-policy-review/internal/config"
	"lender-policy-review/internal/metrics"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/database"
	"lender-policy-review/internal/services/extraction"
	s3service "lender-policy-review/internal/services/s3"
	"lender-policy-review/internal/services/ses"
	"lender-policy-review/internal/utils"
)

// PolicyStore is the S3 side of ingestion.
type PolicyStore interface {
	IsIncoming(key string) bool
	Download(ctx context.Context, key string) ([]byte, error)
	Archive(ctx context.Context, key string) (string, error)
}

// Extractor submits a PDF to the extraction service.
type Extractor interface {
	Upload(ctx context.Context, filename string, content io.Reader, opts models.UploadOptions) (*models.ExtractionResult, error)
}

// IngestionLedger records which objects were processed.
type IngestionLedger interface {
	Claim(ctx context.Context, key, etag, filename string, size int64) (*models.Ingestion, bool, error)
	MarkExtracted(ctx context.Context, id int64, extractionID, extractionStatus, archiveKey string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}

// ReviewNotifier tells operators an extraction is waiting.
type ReviewNotifier interface {
	SendReviewReady(ctx context.Context, to []string, notice ses.ReviewNotice) (*ses.SendEmailResult, error)
}

// PolicyIngestHandler handles S3 events for newly uploaded policy PDFs.
type PolicyIngestHandler struct {
	store      PolicyStore
	extractor  Extractor
	ledger     IngestionLedger
	notifier   ReviewNotifier
	db         *database.DB
	uploadOpts models.UploadOptions
	recipients []string
	dashboard  string
	logger     *zap.Logger
}

// PolicyIngestOptions configures a PolicyIngestHandler. Ledger and
// Notifier are optional.
type PolicyIngestOptions struct {
	Store        PolicyStore
	Extractor    Extractor
	Ledger       IngestionLedger
	Notifier     ReviewNotifier
	UploadOpts   models.UploadOptions
	Recipients   []string
	DashboardURL string
	Logger       *zap.Logger
}

// NewPolicyIngestHandler creates a handler from its collaborators.
func NewPolicyIngestHandler(opts PolicyIngestOptions) *PolicyIngestHandler {
	return &PolicyIngestHandler{
		store:      opts.Store,
		extractor:  opts.Extractor,
		ledger:     opts.Ledger,
		notifier:   opts.Notifier,
		uploadOpts: opts.UploadOpts,
		recipients: opts.Recipients,
		dashboard:  opts.DashboardURL,
		logger:     utils.OrDefault(opts.Logger, "policy-ingest"),
	}
}

// NewPolicyIngestHandlerFromEnv wires the handler from configuration. The
// ledger is skipped when the database is unreachable.
func NewPolicyIngestHandlerFromEnv(ctx context.Context) (*PolicyIngestHandler, error) {
	cfg, err := appConfig.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}
	logger := utils.Named("policy-ingest")

	store, err := s3service.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy store: %w", err)
	}

	opts := PolicyIngestOptions{
		Store:        store,
		Extractor:    extraction.NewClient(cfg.APIBaseURL, extraction.WithLogger(logger)),
		UploadOpts:   models.UploadOptions{Enhance: cfg.Enhance, ValidateExtraction: cfg.ValidateExtraction},
		Recipients:   cfg.ReviewNotifyEmails,
		DashboardURL: cfg.ReviewDashboardURL,
		Logger:       logger,
	}

	if cfg.NotificationsEnabled() {
		notifier, err := ses.NewFromConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create notifier: %w", err)
		}
		opts.Notifier = notifier
	}

	var db *database.DB
	if db, err = database.New(ctx, cfg); err != nil {
		logger.Warn("Ingestion ledger unavailable", zap.Error(err))
		db = nil
	} else {
		repo := database.NewIngestionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare ingestion ledger: %w", err)
		}
		opts.Ledger = repo
	}

	h := NewPolicyIngestHandler(opts)
	h.db = db
	return h, nil
}

// Handle processes every record of an S3 event.
func (h *PolicyIngestHandler) Handle(ctx context.Context, s3Event events.S3Event) (models.IngestionSummary, error) {
	var summary models.IngestionSummary
	retryable := 0

	for _, record := range s3Event.Records {
		key, err := url.QueryUnescape(record.S3.Object.Key)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: failed to decode S3 key", record.S3.Object.Key))
			continue
		}
		if !h.store.IsIncoming(key) {
			h.logger.Debug("Ignoring object outside the incoming prefix", zap.String("key", key))
			summary.Skipped++
			metrics.IngestedPolicies.WithLabelValues("skipped").Inc()
			continue
		}

		summary.Received++
		result, err := h.ingest(ctx, key, record.S3.Object.ETag, record.S3.Object.Size)
		switch {
		case errors.Is(err, errAlreadyIngested):
			summary.Skipped++
			metrics.IngestedPolicies.WithLabelValues("skipped").Inc()
		case err != nil:
			summary.Failed++
			if !isPermanent(err) {
				retryable++
			}
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", key, err))
			metrics.IngestedPolicies.WithLabelValues("failed").Inc()
		default:
			summary.Extracted++
			metrics.IngestedPolicies.WithLabelValues(string(result.Status)).Inc()
		}
	}

	h.logger.Info("Processed policy upload event",
		zap.Int("received", summary.Received),
		zap.Int("extracted", summary.Extracted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)

	// Limit errors in response
	if len(summary.Errors) > 10 {
		summary.Errors = summary.Errors[:10]
	}
	// Lambda retries the whole event; ingested objects are skipped by the ledger
	if retryable > 0 {
		return summary, fmt.Errorf("%w: %d of %d", ErrIngestFailed, retryable, summary.Received)
	}
	return summary, nil
}

var errAlreadyIngested = errors.New("object already ingested")

// ErrIngestFailed is returned when an object failed in a way a retry may fix.
var ErrIngestFailed = errors.New("policy ingestion failed")

// ingestError carries the operator-facing reason for a failed object.
type ingestError struct {
	reason string
	err    error
}

func (e *ingestError) Error() string { return e.reason }
func (e *ingestError) Unwrap() error { return e.err }

// isPermanent reports failures that a redelivery of the same object cannot fix.
func isPermanent(err error) bool {
	if errors.Is(err, models.ErrNotPDF) ||
		errors.Is(err, models.ErrEmptyFile) ||
		errors.Is(err, models.ErrFileTooLarge) {
		return true
	}
	var apiErr *extraction.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// ingest sends one incoming object for extraction. A failed extraction
// (status "error") still counts as ingested: operators review it in the form.
func (h *PolicyIngestHandler) ingest(ctx context.Context, key, etag string, size int64) (*models.ExtractionResult, error) {
	filename := path.Base(key)
	logger := h.logger.With(zap.String("key", key))

	var ing *models.Ingestion
	if h.ledger != nil {
		claimed, ok, err := h.ledger.Claim(ctx, key, etag, filename, size)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Info("Skipping object already ingested", zap.String("etag", etag))
			return nil, errAlreadyIngested
		}
		ing = claimed
	}

	fail := func(err error) (*models.ExtractionResult, error) {
		reason := err.Error()
		var apiErr *extraction.APIError
		if errors.As(err, &apiErr) {
			reason = extraction.Message(err)
		}
		logger.Error("Policy ingestion failed", zap.Error(err))
		if ing != nil {
			if markErr := h.ledger.MarkFailed(ctx, ing.ID, reason); markErr != nil {
				logger.Warn("Failed to record ingestion failure", zap.Error(markErr))
			}
		}
		return nil, &ingestError{reason: reason, err: err}
	}

	content, err := h.store.Download(ctx, key)
	if err != nil {
		return fail(err)
	}
	if err := models.ValidateUploadFile(filename, int64(len(content))); err != nil {
		return fail(err)
	}

	logger.Info("Submitting policy for extraction", zap.Int("bytes", len(content)))
	result, err := h.extractor.Upload(ctx, filename, bytes.NewReader(content), h.uploadOpts)
	if err != nil {
		return fail(err)
	}

	archiveKey, err := h.store.Archive(ctx, key)
	if err != nil {
		logger.Warn("Failed to archive file", zap.Error(err))
		archiveKey = ""
	}

	if ing != nil {
		if err := h.ledger.MarkExtracted(ctx, ing.ID, result.ExtractionID, string(result.Status), archiveKey); err != nil {
			logger.Warn("Failed to record ingestion", zap.Error(err))
		}
	}

	if h.notifier != nil && len(h.recipients) > 0 {
		notice := ses.BuildReviewNotice(result, key, h.dashboard)
		if _, err := h.notifier.SendReviewReady(ctx, h.recipients, notice); err != nil {
			logger.Warn("Failed to send review notification", zap.Error(err))
		}
	}

	logger.Info("Policy extracted",
		zap.String("extraction_id", result.ExtractionID),
		zap.String("status", string(result.Status)),
		zap.String("archive_key", archiveKey),
	)
	return result, nil
}

// Close cleans up resources.
func (h *PolicyIngestHandler) Close() {
	if h.db != nil {
		h.db.Close()
	}
}
