package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/uvuchan/chanchu/config"
)

// S3API is the subset of the S3 client used by S3BlobStore.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client builds a client for an S3 compatible endpoint such as MinIO.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3BlobStore keeps blobs as objects named <prefix><id> in one bucket.
type S3BlobStore struct {
	client   S3API
	bucket   string
	prefix   string
	spoolDir string
}

// NewS3BlobStore creates a blob store on bucket. Uploads are spooled to a
// temp file in spoolDir (os.TempDir when empty) so the request body is
// seekable and its length known.
func NewS3BlobStore(client S3API, bucket, prefix, spoolDir string) *S3BlobStore {
	return &S3BlobStore{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		spoolDir: spoolDir,
	}
}

func (s *S3BlobStore) key(id string) string {
	return s.prefix + id
}

// Put spools r to disk and uploads it as one object.
func (s *S3BlobStore) Put(ctx context.Context, id string, r io.Reader) (int64, error) {
	spool, err := os.CreateTemp(s.spoolDir, "s3-spool-*")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	n, err := io.Copy(spool, newContextReader(ctx, r))
	if err != nil {
		return 0, fmt.Errorf("spool blob: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind spool file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          spool,
		ContentLength: aws.Int64(n),
		Metadata: map[string]string{
			"file-id": id,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("put object: %w", err)
	}
	return n, nil
}

// Open streams the object body.
func (s *S3BlobStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ErrBlobNotFound like the other backends.
func (s *S3BlobStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return fmt.Errorf("head object: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	return errors.As(err, &notFound)
}
