package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"

	appConfig "lender-policy-review/internal/config"
	"lender-policy-review/internal/services/database"
)

const serviceName = "lender-policy-review"

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db    Pinger
	stage string
	close func()
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(db Pinger, stage string) *HealthHandler {
	return &HealthHandler{db: db, stage: stage}
}

// NewHealthHandlerFromEnv connects to the ledger database if it is configured.
func NewHealthHandlerFromEnv(ctx context.Context) *HealthHandler {
	cfg, err := appConfig.Load()
	if err != nil {
		return &HealthHandler{stage: "unknown"} // Return handler without DB
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return &HealthHandler{stage: cfg.Stage} // Return handler without DB
	}

	return &HealthHandler{db: db, stage: cfg.Stage, close: db.Close}
}

// HealthResponse is the response structure for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Stage     string `json:"stage"`
	Database  string `json:"database,omitempty"`
}

// Check reports service health and the matching HTTP status.
func (h *HealthHandler) Check(ctx context.Context) (HealthResponse, int) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Version:   getEnvOrDefault("SERVICE_VERSION", "1.0.0"),
		Stage:     h.stage,
	}

	// Check database connectivity
	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			response.Database = "disconnected"
			response.Status = "degraded"
		} else {
			response.Database = "connected"
		}
	} else {
		response.Database = "not configured"
	}

	if response.Status != "healthy" {
		return response, http.StatusServiceUnavailable
	}
	return response, http.StatusOK
}

// Handle processes API Gateway health check requests.
func (h *HealthHandler) Handle(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	response, status := h.Check(ctx)
	return gatewayResponse(corsHeaders("GET,OPTIONS"), status, response)
}

// ServeHTTP serves the health check on the review server.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response, status := h.Check(r.Context())
	writeJSON(w, status, response)
}

// Close cleans up resources.
func (h *HealthHandler) Close() {
	if h.close != nil {
		h.close()
	}
}

// getEnvOrDefault returns environment variable or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
