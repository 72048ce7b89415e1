package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Opener returns the raw bytes of an export.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// S3API is the part of the S3 client used to fetch exports.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Sources opens exports from local paths, http(s) URLs and s3://bucket/key.
type Sources struct {
	HTTP *http.Client
	S3   S3API

	s3Once sync.Once
	s3Err  error
}

func (s *Sources) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("open export: empty location")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return os.Open(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return s.openHTTP(ctx, location)
	case "s3":
		return s.openS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file":
		return os.Open(u.Path)
	default:
		return nil, fmt.Errorf("open export: unsupported scheme %q", u.Scheme)
	}
}

func (s *Sources) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("download export: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Sources) openS3(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("open export: s3 location needs bucket and key")
	}
	s.s3Once.Do(func() {
		if s.S3 != nil {
			return
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			s.s3Err = fmt.Errorf("load aws config: %w", err)
			return
		}
		s.S3 = s3.NewFromConfig(cfg)
	})
	if s.s3Err != nil {
		return nil, s.s3Err
	}

	out, err := s.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}
