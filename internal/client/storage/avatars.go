// Package storage uploads user avatars to the project's S3-compatible object
// storage and hands back their public URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	DefaultBucket  = "user-avatars"
	DefaultRegion  = "us-east-1"
	DefaultMaxSize = 2 << 20
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image is too large")
	ErrNotConfigured   = errors.New("storage endpoint and credentials are required")
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// imageTypes are the formats accepted as avatars.
var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

type Config struct {
	// Endpoint is the S3 endpoint of the storage service,
	// e.g. https://<project>.supabase.co/storage/v1/s3.
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicURL is the prefix under which public buckets are served,
	// e.g. https://<project>.supabase.co/storage/v1/object/public.
	PublicURL string
	MaxSize   int64
}

type AvatarStore struct {
	cfg    Config
	client *s3.Client
}

// New builds the S3 client. It does not contact the service.
func New(ctx context.Context, cfg Config) (*AvatarStore, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &AvatarStore{cfg: cfg, client: client}, nil
}

// Key returns the object key for a new avatar of userID.
func Key(userID, ext string) string {
	return fmt.Sprintf("avatars/%s-%s.%s", userID, uuid.NewString(), ext)
}

// PublicURL returns the public link of key.
func (s *AvatarStore) PublicURL(key string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + s.cfg.Bucket + "/" + key
}

// UploadAvatar stores body under a fresh key. The content type is sniffed
// from the bytes, not taken from filename; only common image formats are
// accepted.
func (s *AvatarStore) UploadAvatar(ctx context.Context, userID, filename string, body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxSize {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.cfg.MaxSize)
	}

	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return "", fmt.Errorf("%w: %s is %s", ErrUnsupportedType, filename, mt.String())
	}
	contentType := mt.String()
	ext := strings.TrimPrefix(mt.Extension(), ".")

	key := Key(userID, ext)
	_, err = putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("max-age=3600"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func isImage(mt *mimetype.MIME) bool {
	for _, t := range imageTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}
