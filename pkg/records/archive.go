package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archive keeps a durable copy of signed agreement documents outside
// the portal database, for compliance retention.
type Archive interface {
	Store(ctx context.Context, saa SystemAccessAgreement) error
}

// ArchiveConfig holds object-store settings. Endpoint and path style
// support MinIO in local development.
type ArchiveConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Archive writes agreement documents to an S3 bucket
type S3Archive struct {
	client *s3.Client
	bucket string
}

// NewS3Archive builds the S3 client from config or the default
// credential chain.
func NewS3Archive(ctx context.Context, cfg ArchiveConfig) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Archive{client: client, bucket: cfg.Bucket}, nil
}

// Store writes the agreement as a JSON document keyed by user id and
// signing time. Existing objects are never overwritten in practice
// because a user signs at most once.
func (a *S3Archive) Store(ctx context.Context, saa SystemAccessAgreement) error {
	body, err := json.MarshalIndent(saa, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode agreement: %w", err)
	}

	key := fmt.Sprintf("agreements/%s/%s.json", saa.UserID, saa.SignedAt.UTC().Format("20060102T150405Z"))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive agreement for %s: %w", saa.UserID, err)
	}
	return nil
}

// NoopArchive satisfies Archive when no bucket is configured
type NoopArchive struct{}

// Store discards the document
func (NoopArchive) Store(context.Context, SystemAccessAgreement) error { return nil }
