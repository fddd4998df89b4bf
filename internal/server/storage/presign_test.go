package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "backups",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
	}
}

func stubAWS(t *testing.T) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	origPut := presignPutObject
	origGet := presignGetObject
	origHead := headBucket
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
		headBucket = origHead
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}
}

func TestBroker_IssueWriteURL(t *testing.T) {
	stubAWS(t)

	var gotKey, gotBucket string
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotKey = aws.ToString(in.Key)
		gotBucket = aws.ToString(in.Bucket)
		return &v4.PresignedHTTPRequest{URL: "https://signed/put"}, nil
	}

	b := NewBroker(testOptions())
	url, err := b.IssueWriteURL(context.Background(), "raw-backups/s/d/x.bak", 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "https://signed/put", url)
	assert.Equal(t, "raw-backups/s/d/x.bak", gotKey)
	assert.Equal(t, "backups", gotBucket)
}

func TestBroker_IssueReadURL_SetsContentDisposition(t *testing.T) {
	stubAWS(t)

	var gotDisposition string
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotDisposition = aws.ToString(in.ResponseContentDisposition)
		return &v4.PresignedHTTPRequest{URL: "https://signed/get"}, nil
	}

	b := NewBroker(testOptions())
	url, err := b.IssueReadURL(context.Background(), "raw-backups/s/d/db_full_d_20250101_0000.bak", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "https://signed/get", url)
	assert.Equal(t, "attachment; filename=db_full_d_20250101_0000.bak", gotDisposition)
}

func TestBroker_SigningContextBuiltOnce(t *testing.T) {
	stubAWS(t)

	loads := 0
	orig := loadDefaultAWSConfig
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		loads++
		return orig(ctx, optFns...)
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "u"}, nil
	}

	b := NewBroker(testOptions())
	for i := 0; i < 3; i++ {
		_, err := b.IssueWriteURL(context.Background(), "k", time.Minute)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, loads)
}

func TestBroker_ConfigErrorSurfaces(t *testing.T) {
	stubAWS(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}

	b := NewBroker(testOptions())
	_, err := b.IssueWriteURL(context.Background(), "k", time.Minute)
	require.Error(t, err)

	// The failure is sticky: the broker refuses the operation, it does not
	// retry credential negotiation per call.
	_, err2 := b.IssueReadURL(context.Background(), "k", time.Minute)
	require.Error(t, err2)
}

func TestBroker_Ready(t *testing.T) {
	stubAWS(t)

	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
		assert.Equal(t, "backups", aws.ToString(in.Bucket))
		return &s3.HeadBucketOutput{}, nil
	}
	require.NoError(t, NewBroker(testOptions()).Ready(context.Background()))

	headBucket = func(c *s3.Client, ctx context.Context, in *s3.HeadBucketInput) (*s3.HeadBucketOutput, error) {
		return nil, errors.New("unreachable")
	}
	require.Error(t, NewBroker(testOptions()).Ready(context.Background()))
}
