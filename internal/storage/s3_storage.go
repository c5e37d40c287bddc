package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	apperrors "github.com/anime-shed/sku-image-audit/internal/errors"
)

// S3ObjectGetter is the part of the S3 client the fetcher needs
type S3ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads s3://bucket/key references. The AWS client is built on
// first use from the default credential chain.
type S3Fetcher struct {
	region   string
	tempDir  string
	maxBytes int64

	once      sync.Once
	client    S3ObjectGetter
	clientErr error
}

func NewS3Fetcher(region, tempDir string, maxBytes int64) *S3Fetcher {
	return &S3Fetcher{region: region, tempDir: tempDir, maxBytes: maxBytes}
}

// NewS3FetcherWithClient uses client instead of the default credential chain
func NewS3FetcherWithClient(client S3ObjectGetter, tempDir string, maxBytes int64) *S3Fetcher {
	fetcher := &S3Fetcher{client: client, tempDir: tempDir, maxBytes: maxBytes}
	fetcher.once.Do(func() {})
	return fetcher
}

func (s *S3Fetcher) Fetch(ctx context.Context, ref string) (*LocalImage, error) {
	bucket, key, err := parseS3URL(ref)
	if err != nil {
		return nil, err
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, downloadError(ref, err)
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, downloadError(ref, err)
	}
	defer resp.Body.Close()

	if s.maxBytes > 0 && resp.ContentLength != nil && *resp.ContentLength > s.maxBytes {
		return nil, downloadError(ref, fmt.Errorf("image exceeds %d bytes", s.maxBytes))
	}

	local, err := saveToTemp(ref, s.tempDir, resp.Body, s.maxBytes)
	if err != nil {
		return nil, downloadError(ref, err)
	}
	return local, nil
}

func (s *S3Fetcher) getClient(ctx context.Context) (S3ObjectGetter, error) {
	s.once.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.region))
		if err != nil {
			s.clientErr = fmt.Errorf("loading AWS config: %w", err)
			return
		}
		s.client = s3.NewFromConfig(cfg)
	})
	return s.client, s.clientErr
}

func parseS3URL(ref string) (bucket, key string, err error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", "", apperrors.NewValidationError("Invalid URL format", err)
	}
	if !strings.EqualFold(parsed.Scheme, "s3") {
		return "", "", apperrors.NewValidationError(fmt.Sprintf("not an S3 URL: %s", ref), nil)
	}

	bucket = parsed.Host
	key = strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return "", "", apperrors.NewValidationError(fmt.Sprintf("S3 URL must name a bucket and a key: %s", ref), nil)
	}
	return bucket, key, nil
}
