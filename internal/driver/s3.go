package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Options configures the S3 driver. Endpoint is required for non-AWS
// clusters (Ceph RGW, MinIO); path-style addressing is the norm there.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	PathStyle bool
}

// S3Driver runs operations against an S3-compatible cluster.
type S3Driver struct {
	client *s3.Client
	bucket string
}

// NewS3Driver creates a driver from static credentials and a custom
// endpoint.
func NewS3Driver(ctx context.Context, opts S3Options) (*S3Driver, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 driver: bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 driver: load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Driver{client: client, bucket: opts.Bucket}, nil
}

// Upload stores data under key.
func (d *S3Driver) Upload(ctx context.Context, key string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return wrapS3Error("upload", err)
}

// Download reads the object at key and returns the number of bytes read.
// The body is consumed and discarded; the harness measures transfer, it
// does not keep payloads.
func (d *S3Driver) Download(ctx context.Context, key string) (int64, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, wrapS3Error("download", err)
	}
	defer out.Body.Close()

	n, err := io.Copy(io.Discard, out.Body)
	if err != nil {
		return n, wrapS3Error("download", err)
	}
	return n, nil
}

// Delete removes the object at key.
func (d *S3Driver) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return wrapS3Error("delete", err)
}

// List enumerates up to max keys under prefix and returns how many were
// found.
func (d *S3Driver) List(ctx context.Context, prefix string, max int32) (int, error) {
	out, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(d.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(max),
	})
	if err != nil {
		return 0, wrapS3Error("list", err)
	}
	return len(out.Contents), nil
}

// Head fetches object metadata for key.
func (d *S3Driver) Head(ctx context.Context, key string) error {
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	return wrapS3Error("head", err)
}

// wrapS3Error attaches the S3 service error code as the failure kind so the
// metrics breakdown reports "NoSuchKey" instead of a Go type name.
func wrapS3Error(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &OpError{Kind: apiErr.ErrorCode(), Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
