// Package s3 stores sealed data directory backups in an S3 compatible
// bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quocson95/nedok/pkg/backup"
)

// DefaultBucket is used when no bucket is configured.
const DefaultBucket = "nedok-backups"

const keyPrefix = "backup-"

// ErrNoBackups is returned by Restore when the bucket holds no backup.
var ErrNoBackups = errors.New("no backups found")

// Client handles S3 operations
type Client struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	httpClient    *http.Client
	bucket        string
}

// NewClient creates a client for the endpoint host. An empty bucket means
// DefaultBucket.
func NewClient(ctx context.Context, host, accessKey, secretKey, bucket string) (*Client, error) {
	if host == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("missing S3 configuration: endpoint, access key and secret key are required")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("us-east-1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(host)
		o.UsePathStyle = true // MinIO and most S3 compatible servers
	})
	return &Client{
		s3Client:      client,
		presignClient: s3.NewPresignClient(client),
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
		bucket:        bucket,
	}, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string { return c.bucket }

// EnsureBucket checks if bucket exists, creates if not
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		// 409 means it exists already, owned by us or by someone we may
		// still be able to write to.
		if strings.Contains(err.Error(), "StatusCode: 409") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Backup packs and seals dataDir and uploads it. It returns the object key.
func (c *Client) Backup(ctx context.Context, dataDir, password string) (string, error) {
	if err := c.EnsureBucket(ctx); err != nil {
		return "", err
	}
	payload, err := backup.Pack(dataDir, password)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%s.enc", keyPrefix, time.Now().UTC().Format("20060102-150405"))
	presigned, err := c.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned PUT: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", fmt.Errorf("upload failed with status: %s", resp.Status)
	}

	slog.Info("backup uploaded", "bucket", c.bucket, "key", key, "bytes", len(payload))
	return key, nil
}

// Latest returns the key of the most recent backup.
func (c *Client) Latest(ctx context.Context) (string, error) {
	output, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}
	if len(output.Contents) == 0 {
		return "", ErrNoBackups
	}
	objects := output.Contents
	sort.Slice(objects, func(i, j int) bool {
		ti, tj := aws.ToTime(objects[i].LastModified), aws.ToTime(objects[j].LastModified)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return aws.ToString(objects[i].Key) > aws.ToString(objects[j].Key)
	})
	return aws.ToString(objects[0].Key), nil
}

// Restore downloads the latest backup and unpacks it into dataDir. It
// returns the restored key.
func (c *Client) Restore(ctx context.Context, dataDir, password string) (string, error) {
	key, err := c.Latest(ctx)
	if err != nil {
		return "", err
	}

	presigned, err := c.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned GET: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, presigned.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download backup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status: %s", resp.Status)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read backup: %w", err)
	}

	files, err := backup.Unpack(payload, password, dataDir)
	if err != nil {
		return "", err
	}
	slog.Info("backup restored", "bucket", c.bucket, "key", key, "files", files)
	return key, nil
}
