package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
)

const maxObjectBytes = 512 << 20

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type getter interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client implements storage.Blob against an S3-compatible object store.
type Client struct {
	uploader uploader
	getter   getter
	bucket   string
	baseURL  string
}

var _ storage.Blob = (*Client)(nil)

// NewClient configures an uploader targeting the configured bucket.
func NewClient(ctx context.Context, cfg config.S3Config, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if strings.TrimSpace(cfg.Endpoint) != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:           cfg.Endpoint,
					SigningRegion: cfg.Region,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	up := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	if logg != nil {
		logg.Info(ctx, "s3 client initialized")
	}

	return &Client{
		uploader: up,
		getter:   client,
		bucket:   cfg.Bucket,
		baseURL:  publicBase(cfg),
	}, nil
}

func publicBase(cfg config.S3Config) string {
	if base := strings.TrimSuffix(cfg.PublicBaseURL, "/"); base != "" {
		return base
	}
	if endpoint := strings.TrimSuffix(cfg.Endpoint, "/"); endpoint != "" {
		return endpoint + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}

func (c *Client) Bucket() string {
	return c.bucket
}

// Put uploads data as a public-read object.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return storage.Object{}, errors.New("s3: empty key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return storage.Object{}, fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return storage.Object{
		Key:         key,
		Bucket:      c.bucket,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// Get downloads the object body.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimLeft(key, "/")
	out, err := c.getter.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 download %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(io.LimitReader(out.Body, maxObjectBytes))
}

func (c *Client) PublicURL(key string) string {
	return storage.JoinURL(c.baseURL, key)
}
