// Package s3store reads notification-referenced objects from S3 (or any S3 compatible store)
package s3store

import (
	"context"
	"errors"
	"io"
	"sync"

	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/logger"
	"amplisend/internal/services/forward/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const defaultRegion = "us-east-1"

// API is the slice of the S3 client the store uses
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures the Store
type Options struct {
	DefaultRegion string // used when a record carries no region
	Endpoint      string // custom endpoint, e.g. MinIO
	UsePathStyle  bool
}

// Store opens objects with one client per region, created on first use
type Store struct {
	opts      Options
	mu        sync.Mutex
	clients   map[string]API
	newClient func(ctx context.Context, region string) (API, error)
}

// New returns a Store that loads credentials from the default AWS chain
func New(o Options) *Store {
	if o.DefaultRegion == "" {
		o.DefaultRegion = defaultRegion
	}
	s := &Store{opts: o, clients: map[string]API{}}
	s.newClient = s.sdkClient
	return s
}

func (s *Store) sdkClient(ctx context.Context, region string) (API, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeConfiguration, "load aws config")
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.opts.Endpoint)
		}
		o.UsePathStyle = s.opts.UsePathStyle
	}), nil
}

func (s *Store) client(ctx context.Context, region string) (API, error) {
	if region == "" {
		region = s.opts.DefaultRegion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[region]; ok {
		return c, nil
	}
	c, err := s.newClient(ctx, region)
	if err != nil {
		return nil, err
	}
	s.clients[region] = c
	logger.Named("s3").Debug().Str("region", region).Msg("s3 client created")
	return c, nil
}

// Open issues GetObject and returns the streaming body. The body reports the
// object's Content-Encoding through domain.Encoded.
func (s *Store) Open(ctx context.Context, ref domain.ObjectRef) (io.ReadCloser, error) {
	c, err := s.client(ctx, ref.Region)
	if err != nil {
		return nil, err
	}
	out, err := c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, classify(err, ref)
	}
	return &object{ReadCloser: out.Body, enc: aws.ToString(out.ContentEncoding)}, nil
}

func classify(err error, ref domain.ObjectRef) error {
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsk) || errors.As(err, &nsb) {
		return perr.Wrapf(err, perr.ErrorCodeNotFound, "object %s not found", ref)
	}
	var api smithy.APIError
	if errors.As(err, &api) {
		switch api.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return perr.Wrapf(err, perr.ErrorCodeNotFound, "object %s not found", ref)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return perr.Wrapf(err, perr.ErrorCodeUnavailable, "get object %s", ref)
}

type object struct {
	io.ReadCloser
	enc string
}

func (o *object) ContentEncoding() string { return o.enc }
