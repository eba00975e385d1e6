package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/CosmoTheDev/assessmaker/internal/config"
)

// Sink stores finished archives.
type Sink interface {
	Name() string
	Put(ctx context.Context, name string, data []byte) error
}

// FileSink writes archives to a local directory and keeps the newest Retain.
type FileSink struct {
	Dir    string
	Retain int
}

func (s *FileSink) Name() string { return "file:" + s.Dir }

func (s *FileSink) Put(_ context.Context, name string, data []byte) error {
	if filepath.Base(name) != name {
		return fmt.Errorf("backup: invalid archive name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("backup: create %s: %w", s.Dir, err)
	}
	target := filepath.Join(s.Dir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("backup: write %s: %w", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("backup: write %s: %w", target, err)
	}
	return s.prune()
}

// prune removes the oldest archives beyond Retain. Names embed a sortable
// UTC timestamp, so lexical order is age order.
func (s *FileSink) prune() error {
	if s.Retain <= 0 {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(s.Dir, archivePrefix+"*"+archiveExt))
	if err != nil {
		return err
	}
	if len(matches) <= s.Retain {
		return nil
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-s.Retain] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("backup: prune %s: %w", old, err)
		}
		slog.Debug("backup: pruned archive", "path", old)
	}
	return nil
}

// putObjectAPI is the part of the S3 client S3Sink needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads archives to an S3 compatible bucket.
type S3Sink struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Sink builds a client from cfg. Static keys are used when both are
// set, otherwise the default AWS credential chain applies.
func NewS3Sink(ctx context.Context, cfg config.S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup: s3 bucket is required")
	}
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("backup: aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Sink(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Sink(client putObjectAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Sink) Name() string { return "s3://" + path.Join(s.bucket, s.prefix) }

func (s *S3Sink) Put(ctx context.Context, name string, data []byte) error {
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("backup: upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
