package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const (
	defaultS3Region   = "us-east-1"
	defaultPresignTTL = 15 * time.Minute
)

// S3Config configures the S3 artifact store.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // S3-compatible storage; forces path-style addressing
	AccessKeyID     string
	SecretAccessKey string
	PresignTTL      time.Duration
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps artifacts in a bucket and hands out presigned download URLs.
type S3Store struct {
	client     s3API
	presigner  presignAPI
	bucket     string
	prefix     string
	presignTTL time.Duration
}

// NewS3Store loads AWS configuration and builds the store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 artifact store: empty bucket")
	}
	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return newS3Store(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Store(client s3API, presigner presignAPI, cfg S3Config) *S3Store {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &S3Store{
		client:     client,
		presigner:  presigner,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		presignTTL: ttl,
	}
}

func (s *S3Store) key(a Artifact) string {
	return path.Join(s.prefix, a.ID, a.Name)
}

func (s *S3Store) Put(ctx context.Context, name, contentType string, r io.Reader) (Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	a := Artifact{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(a)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(a.Size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Artifact{}, fmt.Errorf("put artifact: %w", err)
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(s.key(a)),
		ResponseContentDisposition: aws.String(mime.FormatMediaType("attachment", map[string]string{"filename": name})),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		_ = s.Release(ctx, a)
		return Artifact{}, fmt.Errorf("presign artifact: %w", err)
	}
	a.Location = presigned.URL
	return a, nil
}

func (s *S3Store) Open(ctx context.Context, a Artifact) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(a)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) Release(ctx context.Context, a Artifact) error {
	if a.ID == "" {
		return nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(a)),
	}); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
