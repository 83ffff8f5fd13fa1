package database_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender-policy-review/internal/models"
	"lender-policy-review/internal/services/database"
)

var testDB *database.DB

func TestMain(m *testing.M) {
	// Integration tests only run against a real database
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		os.Exit(m.Run())
	}

	var err error
	testDB, err = database.NewFromURL(context.Background(), url)
	if err != nil {
		panic("Failed to connect to test database: " + err.Error())
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func newRepo(t *testing.T) *database.IngestionRepository {
	t.Helper()
	if testDB == nil {
		t.Skip("DATABASE_URL not set")
	}
	repo := database.NewIngestionRepository(testDB)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestIngestionRepository_ClaimIsIdempotent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	key := fmt.Sprintf("policies/incoming/test/%d-acme.pdf", time.Now().UnixNano())

	ing, claimed, err := repo.Claim(ctx, key, "etag-1", "acme.pdf", 1024)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, models.IngestionStatusReceived, ing.Status)
	assert.Equal(t, 1, ing.Attempts)

	_, claimed, err = repo.Claim(ctx, key, "etag-1", "acme.pdf", 1024)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, claimed, err = repo.Claim(ctx, key, "etag-2", "acme.pdf", 2048)
	require.NoError(t, err)
	assert.True(t, claimed, "a new object version is a new ingestion")
}

func TestIngestionRepository_FailedIsReclaimed(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	key := fmt.Sprintf("policies/incoming/test/%d-retry.pdf", time.Now().UnixNano())

	ing, _, err := repo.Claim(ctx, key, "etag", "retry.pdf", 10)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, ing.ID, "File size must be less than 10MB"))

	got, err := repo.GetByS3Key(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionStatusFailed, got.Status)
	assert.Equal(t, "File size must be less than 10MB", got.Error)

	again, claimed, err := repo.Claim(ctx, key, "etag", "retry.pdf", 10)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, ing.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
	assert.Empty(t, again.Error)

	require.NoError(t, repo.MarkExtracted(ctx, again.ID, "x1", "success", "policies/processed/test/retry.pdf"))
	got, err = repo.GetByS3Key(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionStatusExtracted, got.Status)
	assert.Equal(t, "x1", got.ExtractionID)
	assert.Equal(t, "policies/processed/test/retry.pdf", got.ArchiveKey)

	recent, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, recent)
}

func TestIngestionRepository_StaleClaimIsReclaimed(t *testing.T) {
	newRepo(t)
	repo := database.NewIngestionRepository(testDB, database.WithClaimTimeout(50*time.Millisecond))
	ctx := context.Background()
	key := fmt.Sprintf("policies/incoming/test/%d-stale.pdf", time.Now().UnixNano())

	ing, claimed, err := repo.Claim(ctx, key, "etag", "stale.pdf", 10)
	require.NoError(t, err)
	require.True(t, claimed)

	_, claimed, err = repo.Claim(ctx, key, "etag", "stale.pdf", 10)
	require.NoError(t, err)
	assert.False(t, claimed, "a fresh claim is still in flight")

	time.Sleep(200 * time.Millisecond)
	again, claimed, err := repo.Claim(ctx, key, "etag", "stale.pdf", 10)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, ing.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)

	require.NoError(t, repo.MarkExtracted(ctx, again.ID, "x1", "success", ""))
	time.Sleep(200 * time.Millisecond)
	_, claimed, err = repo.Claim(ctx, key, "etag", "stale.pdf", 10)
	require.NoError(t, err)
	assert.False(t, claimed, "extracted rows are never reclaimed")
}

func TestIngestionRepository_NotFound(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.GetByS3Key(ctx, "policies/incoming/never-seen.pdf")
	assert.ErrorIs(t, err, database.ErrIngestionNotFound)
	assert.ErrorIs(t, repo.MarkFailed(ctx, -1, "x"), database.ErrIngestionNotFound)
}
