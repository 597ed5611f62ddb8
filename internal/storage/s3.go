package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscredentials "github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/davshaw/gengate/internal/config"
)

// OSSUploader stores assets in an S3-compatible object store. The
// client is built lazily so construction never needs a context.
type OSSUploader struct {
	cfg    config.OSSConfig
	client *awss3.Client
}

func NewOSSUploader(cfg config.OSSConfig) *OSSUploader {
	return &OSSUploader{cfg: cfg}
}

func (u *OSSUploader) BaseURL() string {
	if u.cfg.CDNURL != "" {
		return strings.TrimSuffix(u.cfg.CDNURL, "/")
	}
	if u.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(u.cfg.Endpoint, "/"), u.cfg.Bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.cfg.Bucket, u.cfg.Region)
}

func (u *OSSUploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	client, err := u.s3Client(ctx)
	if err != nil {
		return "", err
	}

	input := &awss3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s", u.BaseURL(), key), nil
}

func (u *OSSUploader) s3Client(ctx context.Context) (*awss3.Client, error) {
	if u.client != nil {
		return u.client, nil
	}

	credProvider := awscredentials.NewStaticCredentialsProvider(
		u.cfg.AccessKeyID,
		u.cfg.AccessKeySecret,
		"",
	)

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(u.cfg.Region),
		awsconfig.WithCredentialsProvider(credProvider),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	u.client = awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if u.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(u.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return u.client, nil
}
