package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

// Client wraps a Pub/Sub v2 client. Publishers are created once per topic and
// flushed by Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient connects and checks that every configured subscription exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "subscriptions", subscriptionNames(cfg)), "pubsub.ready")
	}
	return c, nil
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.GenerationSubscription, cfg.AnalyticsSubscription} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Ping checks that every configured subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	names := subscriptionNames(c.cfg)
	if len(names) == 0 {
		return errNoSubscriptions
	}
	for _, name := range names {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: resourceName(c.projectID, "subscriptions", name),
		})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("subscription %q does not exist", name)
		case err != nil:
			return fmt.Errorf("checking subscription %q: %w", name, err)
		}
	}
	return nil
}

// GenerationSubscription returns the subscriber workers pull run requests from.
func (c *Client) GenerationSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.subscriber(c.cfg.GenerationSubscription)
}

// AnalyticsSubscription returns the subscriber the analytics worker consumes.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.subscriber(c.cfg.AnalyticsSubscription)
}

func (c *Client) subscriber(name string) *pubsub.Subscriber {
	if c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns the cached publisher for a topic ID or full resource
// name, or nil when the name is blank.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "topics", topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[full]; ok {
		return p
	}
	p := c.client.Publisher(full)
	c.publishers[full] = p
	return p
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a bare ID into projects/<project>/<kind>/<id>. Names
// already in that form pass through.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + kind + "/" + n
}
