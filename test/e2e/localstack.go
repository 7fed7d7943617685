package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/filetransfer/pkg/config"
)

// LocalstackHelper manages Localstack S3 integration for tests
type LocalstackHelper struct {
	T        *testing.T
	Endpoint string
	Client   *s3.Client
	Buckets  []string
}

// NewLocalstackHelper creates a new Localstack helper
func NewLocalstackHelper(t *testing.T) *LocalstackHelper {
	t.Helper()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	client, err := config.NewS3Client(context.Background(), config.S3Options{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("Failed to create S3 client: %v", err)
	}

	return &LocalstackHelper{
		T:        t,
		Endpoint: endpoint,
		Client:   client,
	}
}

// CreateBucket creates a bucket removed by Cleanup.
func (lh *LocalstackHelper) CreateBucket(name string) {
	lh.T.Helper()

	_, err := lh.Client.CreateBucket(context.Background(), &s3.CreateBucketInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		lh.T.Fatalf("Failed to create bucket %s: %v", name, err)
	}
	lh.Buckets = append(lh.Buckets, name)
}

// Cleanup deletes every object and bucket created by this helper.
func (lh *LocalstackHelper) Cleanup() {
	ctx := context.Background()

	for _, bucket := range lh.Buckets {
		paginator := s3.NewListObjectsV2Paginator(lh.Client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = lh.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucket),
					Key:    obj.Key,
				})
			}
		}

		if _, err := lh.Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
			Bucket: aws.String(bucket),
		}); err != nil {
			lh.T.Logf("Failed to delete bucket %s: %v", bucket, err)
		}
	}
}

// setupS3 points config at a fresh bucket for the duration of the test.
func setupS3(t *testing.T, cfg *TestConfig) {
	t.Helper()

	helper := NewLocalstackHelper(t)
	t.Cleanup(helper.Cleanup)

	bucket := fmt.Sprintf("ftserver-e2e-%s-%d",
		strings.ToLower(strings.ReplaceAll(cfg.Name, "_", "-")), time.Now().UnixNano())
	helper.CreateBucket(bucket)

	cfg.s3Client = helper.Client
	cfg.s3Bucket = bucket
}
