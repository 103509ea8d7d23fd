package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"cadence/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ArchiveStorage keeps immutable copies of raw transcripts and finished
// reports in S3-compatible object storage.
type ArchiveStorage struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

// NewArchiveStorage creates a new S3 archive client
func NewArchiveStorage(endpoint, region, accessKey, secretKey, bucket string) (*ArchiveStorage, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, reg string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: region,
			}, nil
		})

	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	logger.Info("Archive storage initialized", zap.String("bucket", bucket))

	return &ArchiveStorage{
		client:   client,
		bucket:   bucket,
		endpoint: endpoint,
	}, nil
}

// UploadJSON marshals v and stores it under key
func (s *ArchiveStorage) UploadJSON(ctx context.Context, key string, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal object: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})

	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)

	logger.Info("Object archived",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return url, nil
}

// Download retrieves an archived object
func (s *ArchiveStorage) Download(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	logger.Debug("Object downloaded from archive",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return data, nil
}

// Delete removes an archived object
func (s *ArchiveStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	logger.Debug("Object deleted from archive", zap.String("key", key))

	return nil
}

// TranscriptKey is where a session's raw transcript is archived
func (s *ArchiveStorage) TranscriptKey(sessionID string) string {
	return path.Join("transcripts", sessionID+".json")
}

// ReportKey is where a finished delivery report is archived
func (s *ArchiveStorage) ReportKey(sessionID, jobID string) string {
	return path.Join("reports", sessionID, jobID+".json")
}
