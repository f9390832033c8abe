// Package archive stores finished sync reports in S3 so CI runs leave an
// audit trail.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pankaj-dahiya-devops/chronicle-rule-sync/internal/models"
)

// S3PutObjectAPI is the single S3 operation the archiver needs.
// The real *s3.Client satisfies it; tests substitute a stub.
type S3PutObjectAPI interface {
	PutObject(
		ctx context.Context,
		params *s3.PutObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectOutput, error)
}

// Uploader writes sync reports to one bucket under a fixed key prefix.
type Uploader struct {
	client S3PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// NewUploader wires an Uploader to an existing S3 client. A nil logger
// discards all output.
func NewUploader(client S3PutObjectAPI, bucket, prefix string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Uploader{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// NewFromConfig builds an Uploader on the default AWS credential chain.
func NewFromConfig(ctx context.Context, bucket, prefix string, logger *slog.Logger) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewUploader(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// Store uploads the report as indented JSON and returns its s3://
// location. Keys shard by generation date:
//
//	<prefix>/<yyyy>/<mm>/<dd>/<report_id>.json
func (u *Uploader) Store(ctx context.Context, report *models.SyncReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	key := path.Join(u.prefix, report.GeneratedAt.UTC().Format("2006/01/02"), report.ReportID+".json")
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put report to s3://%s/%s: %w", u.bucket, key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info("report archived", "location", location)
	return location, nil
}
