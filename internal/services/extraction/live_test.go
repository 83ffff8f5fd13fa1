package extraction_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lender-policy-review/internal/services/extraction"
)

// Skip live tests if not explicitly enabled
func skipIfNotE2E(t *testing.T) string {
	t.Helper()
	if os.Getenv("E2E_TESTS") != "true" {
		t.Skip("E2E tests not enabled. Set E2E_TESTS=true to run")
	}
	baseURL := os.Getenv("POLICY_API_BASE_URL")
	if baseURL == "" {
		t.Skip("POLICY_API_BASE_URL not set")
	}
	return baseURL
}

func TestLive_ListAndGet(t *testing.T) {
	client := extraction.NewClient(skipIfNotE2E(t), extraction.WithLogger(zap.NewNop()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	list, err := client.List(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, list.Total, len(list.Extractions))

	_, err = client.Get(ctx, "00000000-0000-0000-0000-000000000000")
	var apiErr *extraction.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.NotEqual(t, extraction.GenericErrorMessage, extraction.Message(err))
}
