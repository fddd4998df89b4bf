package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Indirections for the AWS SDK entry points, swappable in tests.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
		return c.HeadBucket(ctx, in)
	}
)

// Options configures the presigning broker.
type Options struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// Broker issues presigned URLs against an S3-compatible backend. The signing
// context (client + presign client) is built lazily exactly once and is safe
// for concurrent use; credential negotiation is too expensive to repeat
// per request. A presigned URL is scoped to one object key and one
// permission and is valid from the moment of signing, which covers the
// clock-drift window a backdated start time would.
type Broker struct {
	opts Options

	initOnce sync.Once
	initErr  error
	client   *s3.Client
	presign  *s3.PresignClient
}

func NewBroker(opts Options) *Broker {
	return &Broker{opts: opts}
}

func (b *Broker) ensureClients(ctx context.Context) error {
	b.initOnce.Do(func() {
		cfg, err := loadDefaultAWSConfig(ctx,
			awsconfig.WithRegion(b.opts.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				b.opts.AccessKey,
				b.opts.SecretKey,
				"",
			)))
		if err != nil {
			b.initErr = fmt.Errorf("storage config: %w", err)
			return
		}

		b.client = newS3ClientFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(b.opts.BaseEndpoint)
			o.UsePathStyle = true
		})
		b.presign = newS3PresignClient(b.client)
	})
	return b.initErr
}

// IssueWriteURL returns a URL permitting exactly one PUT of the given key,
// valid for ttl.
func (b *Broker) IssueWriteURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := b.ensureClients(ctx); err != nil {
		return "", err
	}

	req, err := presignPutObject(b.presign, ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}

	return req.URL, nil
}

// IssueReadURL returns a URL permitting exactly one GET of the given key,
// valid for ttl. The response carries a content-disposition hint so browsers
// download under the artifact's base filename.
func (b *Broker) IssueReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := b.ensureClients(ctx); err != nil {
		return "", err
	}

	disposition := fmt.Sprintf("attachment; filename=%s", BlobFilename(key))
	req, err := presignGetObject(b.presign, ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(b.opts.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}

	return req.URL, nil
}

// Ready probes the configured bucket. Used by the readiness endpoint.
func (b *Broker) Ready(ctx context.Context) error {
	if err := b.ensureClients(ctx); err != nil {
		return err
	}
	if _, err := headBucket(b.client, ctx, &s3.HeadBucketInput{Bucket: aws.String(b.opts.Bucket)}); err != nil {
		return fmt.Errorf("head bucket: %w", err)
	}
	return nil
}
