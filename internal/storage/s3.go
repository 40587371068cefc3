package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type S3Options struct {
	Region     string
	Bucket     string
	Endpoint   string // set for MinIO or other S3 compatible stores
	PublicRead bool
	PresignTTL time.Duration
}

// S3Store puts attachment blobs into one bucket. All calls go through a
// circuit breaker so an unavailable store fails fast.
type S3Store struct {
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	opts      S3Options
	cb        *gobreaker.CircuitBreaker
	log       *zap.Logger
}

func NewS3Store(ctx context.Context, opts S3Options, log *zap.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(opts.Region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	st := gobreaker.Settings{
		Name:        "s3",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &S3Store{
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
		opts:      opts,
		cb:        gobreaker.NewCircuitBreaker(st),
		log:       log,
	}, nil
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if s.opts.PublicRead {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return s.uploader.Upload(ctx, in)
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// Public reports whether objects are world readable, so URL results can be
// stored.
func (s *S3Store) Public() bool { return s.opts.PublicRead }

// URL returns where key can be fetched from. Private buckets get a
// presigned URL valid for PresignTTL.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	if s.opts.PublicRead {
		return s.publicURL(key), nil
	}
	return s.presign(ctx, key)
}

func (s *S3Store) publicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.opts.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.opts.Endpoint, "/"), s.opts.Bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, escaped)
}

func (s *S3Store) presign(ctx context.Context, key string) (string, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.opts.PresignTTL))
	})
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return out.(*v4.PresignedHTTPRequest).URL, nil
}
