// Package gcs stores generated assets in a Cloud Storage bucket through the JSON API.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
)

const (
	readWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"
	apiBase        = "https://storage.googleapis.com"
	pingTimeout    = 5 * time.Second
	requestTimeout = 2 * time.Minute
	maxObjectBytes = 512 << 20
	maxErrorBody   = 2 << 10
)

// Client implements storage.Blob for one bucket.
type Client struct {
	http    *http.Client
	bucket  string
	public  string
	apiBase string
}

var (
	_ storage.Blob   = (*Client)(nil)
	_ storage.Pinger = (*Client)(nil)
)

// NewClient authenticates with the shared GCP credentials (inline JSON, a key
// file or ADC) and checks the bucket is listable before returning.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	opts := append(gcp.ClientOptions(), option.WithScopes(readWriteScope))
	hc, _, err := htransport.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs transport: %w", err)
	}
	hc.Timeout = requestTimeout

	client := &Client{http: hc, bucket: bucket, public: publicBase(cfg.PublicBaseURL, bucket), apiBase: apiBase}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs bucket %s: %w", bucket, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs.ready")
	}
	return client, nil
}

func publicBase(base, bucket string) string {
	base = strings.TrimSuffix(strings.TrimSpace(base), "/")
	if base == "" {
		base = apiBase
	}
	return base + "/" + bucket
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Ping lists at most one object, which needs storage.objects.list on the bucket.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.http == nil {
		return errors.New("gcs client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, c.objectsURL("", url.Values{"maxResults": {"1"}}), nil, "")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return apiError("list objects", resp)
	}
	return nil
}

// Put uploads data in a single media request and replaces any object at key.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return storage.Object{}, errors.New("gcs: empty key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	target := c.apiBase + "/upload/storage/v1/b/" + url.PathEscape(c.bucket) + "/o?" +
		url.Values{"uploadType": {"media"}, "name": {key}}.Encode()

	resp, err := c.send(ctx, http.MethodPost, target, bytes.NewReader(data), contentType)
	if err != nil {
		return storage.Object{}, fmt.Errorf("gcs upload %s: %w", key, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return storage.Object{}, apiError("upload "+key, resp)
	}
	return storage.Object{Key: key, Bucket: c.bucket, ContentType: contentType, Size: int64(len(data))}, nil
}

// Get returns storage.ErrObjectNotFound for a missing key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimLeft(key, "/")
	resp, err := c.send(ctx, http.MethodGet, c.objectsURL(key, url.Values{"alt": {"media"}}), nil, "")
	if err != nil {
		return nil, fmt.Errorf("gcs download %s: %w", key, err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes))
	case http.StatusNotFound:
		return nil, storage.ErrObjectNotFound
	default:
		return nil, apiError("download "+key, resp)
	}
}

func (c *Client) PublicURL(key string) string {
	return storage.JoinURL(c.public, key)
}

func (c *Client) Close() error {
	if c != nil && c.http != nil {
		c.http.CloseIdleConnections()
	}
	return nil
}

func (c *Client) objectsURL(key string, query url.Values) string {
	u := c.apiBase + "/storage/v1/b/" + url.PathEscape(c.bucket) + "/o"
	if key != "" {
		u += "/" + url.PathEscape(key)
	}
	return u + "?" + query.Encode()
}

func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("gcs %s: %s: %s", op, resp.Status, msg)
	}
	return fmt.Errorf("gcs %s: %s", op, resp.Status)
}
