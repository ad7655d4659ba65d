package main

import (
	"bugmaschine/get621/e621"
	"bugmaschine/get621/logging"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Service struct {
	uploader   *manager.Uploader
	bucketName string
	prefix     string
}

func newS3Sink(ctx context.Context, s S3Settings, bucket, prefix string) (*S3Service, error) {
	cfgOptions := []func(*config.LoadOptions) error{
		config.WithRegion(s.Region),
	}
	// without static keys the usual AWS chain (env, shared config, IMDS) applies
	if s.AccessKey != "" {
		cfgOptions = append(cfgOptions, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}
	if s.Endpoint != "" {
		cfgOptions = append(cfgOptions, config.WithBaseEndpoint(s.Endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			// MinIO and friends
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
		o.RetryMaxAttempts = 3
		o.RetryMode = aws.RetryModeAdaptive
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB Parts
		// parts of one file, downloads themselves stay sequential
		u.Concurrency = 1
	})

	return &S3Service{
		uploader:   uploader,
		bucketName: bucket,
		prefix:     prefix,
	}, nil
}

func (s *S3Service) key(name string) string {
	return s.prefix + name
}

func (s *S3Service) Location(name string) string {
	return "s3://" + s.bucketName + "/" + s.key(name)
}

func (s *S3Service) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	counted := &countingReader{r: r}
	err := s.UploadToS3(ctx, counted, s.key(name))
	if err != nil {
		var netErr *e621.NetworkError
		if errors.As(err, &netErr) {
			return counted.n, netErr
		}
		return counted.n, &FileSystemError{Path: s.Location(name), Err: err}
	}
	return counted.n, nil
}

func (s *S3Service) UploadToS3(ctx context.Context, file io.Reader, filename string) error {
	logging.Debug("Uploading to S3: %v", filename)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(filename),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file '%s' to S3 bucket '%s': %w", filename, s.bucketName, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
