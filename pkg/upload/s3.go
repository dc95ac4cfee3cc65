package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// S3API is the subset of the S3 client used by S3Store.
// *s3.Client satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner creates presigned GET URLs. *s3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores uploads in an S3 bucket.
//
// Example usage:
//
//	client := upload.NewS3Client(upload.S3ClientOptions{Region: "eu-west-1"})
//	store := upload.NewS3Store(client, "my-bucket", "uploads/", 20<<20)
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	maxSize   int64
	urlExpiry time.Duration
}

// S3ClientOptions configures NewS3Client.
type S3ClientOptions struct {
	// Region is the AWS region.
	Region string

	// Endpoint overrides the service endpoint (e.g. MinIO). Optional.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When empty,
	// requests are sent anonymously.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle addresses buckets as path segments instead of
	// subdomains. Most S3-compatible servers need it.
	UsePathStyle bool
}

// NewS3Client builds an S3 client from explicit options.
func NewS3Client(opts S3ClientOptions) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
			Source:          "cephview",
		}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil },
		))
	} else {
		o.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(o)
}

// NewS3Store creates a new S3 upload store.
//
// Parameters:
//   - client: AWS S3 client from aws-sdk-go-v2
//   - bucket: S3 bucket name
//   - prefix: Key prefix for uploads (e.g., "uploads/")
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewS3Store(client *s3.Client, bucket, prefix string, maxSize int64) *S3Store {
	return newS3Store(client, s3.NewPresignClient(client), bucket, prefix, maxSize)
}

func newS3Store(client S3API, presigner Presigner, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		maxSize:   maxSize,
		urlExpiry: 15 * time.Minute,
	}
}

// WithURLExpiry sets how long presigned URLs are valid.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

// Save uploads the payload to S3 and returns its ID.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	// Buffered so the SDK can compute the content length and retry.
	var buf bytes.Buffer
	if _, err := limitedCopy(&buf, r, s.maxSize); err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(int64(buf.Len())),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"original-filename": filename,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return id, nil
}

// Open returns the object metadata and a presigned URL. The body is also
// opened so callers without HTTP redirects can stream it.
func (s *S3Store) Open(ctx context.Context, id string) (*File, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	key := s.key(id)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 head failed: %w", err)
	}

	file := &File{
		ID:          id,
		Filename:    id,
		ContentType: "application/octet-stream",
	}
	if fn, ok := head.Metadata["original-filename"]; ok {
		file.Filename = fn
	}
	if head.ContentType != nil {
		file.ContentType = *head.ContentType
	}
	if head.ContentLength != nil {
		file.Size = *head.ContentLength
	}
	if head.LastModified != nil {
		file.CreatedAt = *head.LastModified
	}

	if s.presigner != nil {
		presigned, err := s.presigner.PresignGetObject(ctx,
			&s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			},
			s3.WithPresignExpires(s.urlExpiry),
		)
		if err == nil {
			file.URL = presigned.URL
			return file, nil
		}
	}

	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	file.Reader = obj.Body
	return file, nil
}

// Delete removes an object. S3 does not report missing keys on delete.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	return err
}

// Cleanup removes objects under the prefix older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	var errs []error
	for _, key := range toDelete {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3Store) key(id string) string {
	return s.prefix + id
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
