// Package s3service stores lender policy PDFs in S3.
package s3service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lender-policy-review/internal/config"
	"lender-policy-review/internal/models"
	"lender-policy-review/internal/utils"
)

// PDFContentType is the content type of stored policy documents.
const PDFContentType = "application/pdf"

// DefaultPresignExpiry applies when a caller passes no expiry.
const DefaultPresignExpiry = 15 * time.Minute

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner issues presigned object URLs.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Options locate policy documents inside the bucket.
type Options struct {
	Bucket         string
	IncomingPrefix string
	ArchivePrefix  string
}

// Store keeps policy PDFs under an incoming prefix until they are
// processed, then moves them under the archive prefix.
type Store struct {
	client    ObjectAPI
	presigner Presigner
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// PresignedURLResult contains the presigned URL details.
type PresignedURLResult struct {
	URL         string    `json:"url"`
	Key         string    `json:"key"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewStore creates a store over an existing client.
func NewStore(client ObjectAPI, presigner Presigner, opts Options, logger *zap.Logger) *Store {
	return &Store{
		client:    client,
		presigner: presigner,
		opts:      opts,
		logger:    utils.OrDefault(logger, "s3"),
		now:       time.Now,
	}
}

// NewFromConfig loads AWS credentials and builds a store for cfg's bucket.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return NewStore(client, s3.NewPresignClient(client), Options{
		Bucket:         cfg.S3Bucket,
		IncomingPrefix: cfg.S3IncomingPrefix,
		ArchivePrefix:  cfg.S3ArchivePrefix,
	}, nil), nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string {
	return s.opts.Bucket
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewPolicyKey returns a fresh incoming key for filename, partitioned by day.
func (s *Store) NewPolicyKey(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.Trim(unsafeKeyChars.ReplaceAllString(base, "-"), "-")
	if base == "" || base == "." {
		base = "policy.pdf"
	}
	return fmt.Sprintf("%s%s/%s-%s", s.opts.IncomingPrefix, s.now().UTC().Format("2006/01/02"), uuid.NewString(), base)
}

// IsIncoming reports whether key is waiting to be processed.
func (s *Store) IsIncoming(key string) bool {
	return strings.HasPrefix(key, s.opts.IncomingPrefix) && strings.HasSuffix(strings.ToLower(key), ".pdf")
}

// ArchiveKey maps an incoming key onto the archive prefix.
func (s *Store) ArchiveKey(key string) string {
	return s.opts.ArchivePrefix + strings.TrimPrefix(key, s.opts.IncomingPrefix)
}

// PresignPolicyUpload creates a presigned PUT URL for a new policy PDF.
func (s *Store) PresignPolicyUpload(ctx context.Context, filename string, expiry time.Duration) (*PresignedURLResult, error) {
	if err := models.ValidateUploadFile(filename, 1); err != nil {
		return nil, err
	}
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}

	key := s.NewPolicyKey(filename)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(PDFContentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		s.logger.Error("Failed to generate presigned URL",
			zap.String("bucket", s.opts.Bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	s.logger.Info("Generated presigned upload URL",
		zap.String("bucket", s.opts.Bucket),
		zap.String("key", key),
		zap.Duration("expiry", expiry),
	)

	return &PresignedURLResult{
		URL:         req.URL,
		Key:         key,
		Method:      req.Method,
		ContentType: PDFContentType,
		ExpiresAt:   s.now().Add(expiry),
	}, nil
}

// PresignDownload creates a presigned GET URL for a stored policy.
func (s *Store) PresignDownload(ctx context.Context, key string, expiry time.Duration) (*PresignedURLResult, error) {
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	return &PresignedURLResult{
		URL:       req.URL,
		Key:       key,
		Method:    req.Method,
		ExpiresAt: s.now().Add(expiry),
	}, nil
}

// Download reads a policy PDF, refusing objects over the upload limit.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("Failed to download file from S3",
			zap.String("bucket", s.opts.Bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > models.MaxUploadBytes {
		return nil, models.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, models.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}
	if len(data) > models.MaxUploadBytes {
		return nil, models.ErrFileTooLarge
	}

	s.logger.Info("Downloaded file from S3",
		zap.String("bucket", s.opts.Bucket),
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return data, nil
}

// Exists reports whether key is present in the bucket.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object: %w", err)
	}
	return true, nil
}

// Archive moves an incoming policy under the archive prefix and returns
// the new key.
func (s *Store) Archive(ctx context.Context, key string) (string, error) {
	dest := s.ArchiveKey(key)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.opts.Bucket),
		CopySource: aws.String(s.opts.Bucket + "/" + escapeKey(key)),
		Key:        aws.String(dest),
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}

	s.logger.Info("Archived policy PDF",
		zap.String("source", key),
		zap.String("destination", dest),
	)
	return dest, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
