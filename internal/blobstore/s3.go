// Package blobstore keeps face images in an S3-compatible bucket.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no bucket is configured.
var ErrDisabled = errors.New("blob storage is not configured")

// Options configures the bucket connection.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// S3Store reads and writes objects under a key prefix.
type S3Store struct {
	bucket   string
	prefix   string
	client   s3iface.S3API
	uploader *s3manager.Uploader
	logger   *zap.Logger
}

// New connects to the bucket described by opts. A custom endpoint switches
// to path-style addressing, as MinIO and most S3 clones expect.
func New(opts Options, logger *zap.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	awsCfg := &aws.Config{Region: aws.String(opts.Region)}
	if opts.Endpoint != "" {
		awsCfg.Endpoint = aws.String(opts.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
		if strings.HasPrefix(opts.Endpoint, "http://") {
			awsCfg.DisableSSL = aws.Bool(true)
		}
	}
	if opts.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	client := s3.New(sess)
	return &S3Store{
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		logger:   logger.Named("blobstore"),
	}, nil
}

// ObjectKey maps a caller key into the bucket.
func (s *S3Store) ObjectKey(key string) string {
	return path.Join(s.prefix, strings.TrimPrefix(key, "/"))
}

// Upload stores data and returns the object's URL. The bucket must exist.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := s.ObjectKey(key)
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		s.logger.Error("upload failed", zap.String("key", objectKey), zap.Error(err))
		return "", err
	}
	s.logger.Debug("object uploaded", zap.String("key", objectKey), zap.Int("bytes", len(data)))
	return out.Location, nil
}

// Download reads an object fully.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// PresignGet returns a read URL valid for ttl. Signing happens locally.
func (s *S3Store) PresignGet(key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	return req.Presign(ttl)
}
