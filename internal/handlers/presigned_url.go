package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	appConfig "lender-policy-review/internal/config"
	"lender-policy-review/internal/models"
	s3service "lender-policy-review/internal/services/s3"
	"lender-policy-review/internal/utils"
)

// UploadPresigner issues upload URLs for policy PDFs.
type UploadPresigner interface {
	PresignPolicyUpload(ctx context.Context, filename string, expiry time.Duration) (*s3service.PresignedURLResult, error)
}

// PresignedURLHandler handles requests for generating presigned S3 URLs.
type PresignedURLHandler struct {
	presigner UploadPresigner
	expiry    time.Duration
	logger    *zap.Logger
}

// NewPresignedURLHandler creates a handler over an existing presigner.
func NewPresignedURLHandler(presigner UploadPresigner, expiry time.Duration, logger *zap.Logger) *PresignedURLHandler {
	if expiry <= 0 {
		expiry = s3service.DefaultPresignExpiry
	}
	return &PresignedURLHandler{
		presigner: presigner,
		expiry:    expiry,
		logger:    utils.OrDefault(logger, "presigned-url"),
	}
}

// NewPresignedURLHandlerFromEnv wires the handler from configuration.
func NewPresignedURLHandlerFromEnv(ctx context.Context) (*PresignedURLHandler, error) {
	cfg, err := appConfig.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}
	store, err := s3service.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewPresignedURLHandler(store, s3service.DefaultPresignExpiry, nil), nil
}

// PresignedURLResponse is the response structure for presigned URL requests.
type PresignedURLResponse struct {
	UploadURL   string    `json:"upload_url"`
	S3Key       string    `json:"s3_key"`
	ContentType string    `json:"content_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Handle processes the API Gateway request for generating presigned URLs.
func (h *PresignedURLHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := corsHeaders("GET,OPTIONS")

	// Handle CORS preflight
	if request.HTTPMethod == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Headers: headers}, nil
	}

	response, status, msg := h.presign(ctx, request.QueryStringParameters["filename"])
	if status != http.StatusOK {
		return errorResponse(headers, status, msg)
	}
	return gatewayResponse(headers, http.StatusOK, response)
}

// ServeHTTP issues upload URLs on the review server.
func (h *PresignedURLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response, status, msg := h.presign(r.Context(), r.URL.Query().Get("filename"))
	if status != http.StatusOK {
		writeError(w, status, msg, nil)
		return
	}
	writeData(w, response)
}

func (h *PresignedURLHandler) presign(ctx context.Context, filename string) (PresignedURLResponse, int, string) {
	if filename == "" {
		return PresignedURLResponse{}, http.StatusBadRequest, "filename is required"
	}

	result, err := h.presigner.PresignPolicyUpload(ctx, filename, h.expiry)
	if errors.Is(err, models.ErrNotPDF) {
		return PresignedURLResponse{}, http.StatusBadRequest, models.ErrNotPDF.Error()
	}
	if err != nil {
		h.logger.Error("Failed to generate presigned URL", zap.Error(err))
		return PresignedURLResponse{}, http.StatusInternalServerError, "Failed to generate upload URL"
	}

	h.logger.Info("Generated presigned URL", zap.String("s3Key", result.Key))
	return PresignedURLResponse{
		UploadURL:   result.URL,
		S3Key:       result.Key,
		ContentType: result.ContentType,
		ExpiresIn:   int(h.expiry / time.Second),
		ExpiresAt:   result.ExpiresAt,
	}, http.StatusOK, ""
}
