package s3service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lender-policy-review/internal/models"
)

type fakeObjects struct {
	objects map[string][]byte
	copies  []string
	headErr error
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeObjects) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeObjects) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copies = append(f.copies, aws.ToString(in.CopySource))
	src := strings.TrimPrefix(aws.ToString(in.CopySource), "bucket/")
	src = strings.ReplaceAll(src, "%20", " ")
	f.objects[aws.ToString(in.Key)] = f.objects[src]
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	putInput *s3.PutObjectInput
	expires  time.Duration
}

func (p *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	p.putInput = in
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc", Method: "PUT"}, nil
}

func (p *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key), Method: "GET"}, nil
}

func newTestStore(objects *fakeObjects, presigner *fakePresigner) *Store {
	s := NewStore(objects, presigner, Options{
		Bucket:         "bucket",
		IncomingPrefix: "policies/incoming/",
		ArchivePrefix:  "policies/processed/",
	}, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestNewPolicyKey(t *testing.T) {
	s := newTestStore(&fakeObjects{}, &fakePresigner{})

	key := s.NewPolicyKey(`C:\uploads\Acme Capital (2026).pdf`)
	assert.True(t, strings.HasPrefix(key, "policies/incoming/2026/10/15/"))
	assert.True(t, strings.HasSuffix(key, "-Acme-Capital-2026-.pdf"))
	assert.True(t, s.IsIncoming(key))

	assert.True(t, strings.HasSuffix(s.NewPolicyKey("///"), "-policy.pdf"))
}

func TestIsIncomingAndArchiveKey(t *testing.T) {
	s := newTestStore(&fakeObjects{}, &fakePresigner{})

	assert.False(t, s.IsIncoming("policies/processed/a.pdf"))
	assert.False(t, s.IsIncoming("policies/incoming/a.txt"))
	assert.True(t, s.IsIncoming("policies/incoming/A.PDF"))
	assert.Equal(t, "policies/processed/2026/a.pdf", s.ArchiveKey("policies/incoming/2026/a.pdf"))
}

func TestPresignPolicyUpload(t *testing.T) {
	presigner := &fakePresigner{}
	s := newTestStore(&fakeObjects{}, presigner)

	result, err := s.PresignPolicyUpload(context.Background(), "acme.pdf", 0)
	require.NoError(t, err)
	assert.Equal(t, "PUT", result.Method)
	assert.Equal(t, PDFContentType, result.ContentType)
	assert.Equal(t, DefaultPresignExpiry, presigner.expires)
	assert.Equal(t, "bucket", aws.ToString(presigner.putInput.Bucket))
	assert.Equal(t, PDFContentType, aws.ToString(presigner.putInput.ContentType))
	assert.Equal(t, result.Key, aws.ToString(presigner.putInput.Key))
	assert.Contains(t, result.URL, result.Key)

	_, err = s.PresignPolicyUpload(context.Background(), "acme.docx", time.Minute)
	assert.ErrorIs(t, err, models.ErrNotPDF)
}

func TestDownload(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{
		"policies/incoming/a.pdf":   []byte("%PDF-1.7"),
		"policies/incoming/big.pdf": make([]byte, models.MaxUploadBytes+1),
	}}
	s := newTestStore(objects, &fakePresigner{})

	data, err := s.Download(context.Background(), "policies/incoming/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	_, err = s.Download(context.Background(), "policies/incoming/big.pdf")
	assert.ErrorIs(t, err, models.ErrFileTooLarge)

	_, err = s.Download(context.Background(), "policies/incoming/missing.pdf")
	var noSuchKey *types.NoSuchKey
	assert.True(t, errors.As(err, &noSuchKey))
}

func TestExists(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{"k.pdf": nil}}
	s := newTestStore(objects, &fakePresigner{})

	ok, err := s.Exists(context.Background(), "k.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "other.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	objects.headErr = errors.New("access denied")
	_, err = s.Exists(context.Background(), "k.pdf")
	assert.Error(t, err)
}

func TestArchive(t *testing.T) {
	objects := &fakeObjects{objects: map[string][]byte{"policies/incoming/2026/acme policy.pdf": []byte("%PDF")}}
	s := newTestStore(objects, &fakePresigner{})

	dest, err := s.Archive(context.Background(), "policies/incoming/2026/acme policy.pdf")
	require.NoError(t, err)
	assert.Equal(t, "policies/processed/2026/acme policy.pdf", dest)
	assert.Equal(t, []string{"bucket/policies/incoming/2026/acme%20policy.pdf"}, objects.copies)
	assert.Equal(t, []byte("%PDF"), objects.objects[dest])
	assert.NotContains(t, objects.objects, "policies/incoming/2026/acme policy.pdf")
}
