package stream

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
	"github.com/DeBrosOfficial/seastream/pkg/phoenix"
)

// Client is a typed stream client: one socket, many per-collection
// subscriptions.
type Client struct {
	cfg    *Config
	socket *phoenix.Socket
	logger *logging.ColoredLogger
}

// Connect validates the configuration, dials the network's websocket with
// the API key and returns a ready client.
func Connect(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("a configuration is required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	endpoint, err := endpointWithToken(cfg.Network, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	logger, err := newClientLogger(cfg.QuietMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dialer := &phoenix.WebsocketDialer{
		URL:    endpoint,
		Logger: logger,
	}
	socket, err := phoenix.Connect(ctx, cfg.socketConfig(), dialer, logger)
	if err != nil {
		return nil, err
	}

	logger.ComponentInfo(logging.ComponentStream, "stream client connected",
		zap.String("network", string(cfg.Network)))

	return &Client{cfg: cfg, socket: socket, logger: logger}, nil
}

// endpointWithToken appends the API key as the token query parameter.
func endpointWithToken(network Network, apiKey string) (string, error) {
	endpoint, err := network.EndpointURL()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %s: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("token", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newClientLogger(quiet bool) (*logging.ColoredLogger, error) {
	if quiet {
		return logging.NewQuietLogger()
	}
	return logging.NewDefaultLogger()
}

// Subscribe joins the collection's topic. All events of the collection are
// delivered; filtering by kind is the caller's responsibility.
func (c *Client) Subscribe(ctx context.Context, collection Collection) (*Subscription, error) {
	sub, err := c.socket.Join(ctx, collection.Topic())
	if err != nil {
		return nil, err
	}

	c.logger.ComponentInfo(logging.ComponentStream, "subscribed to collection",
		zap.Stringer("collection", collection))

	return &Subscription{
		collection: collection,
		inner:      sub,
		logger:     c.logger,
	}, nil
}

// Stats returns a snapshot of the socket's routing counters.
func (c *Client) Stats() phoenix.Stats {
	return c.socket.Stats()
}

// Close shuts the client down; every subscription terminates with a clean
// close.
func (c *Client) Close() error {
	return c.socket.Close()
}

// Subscription yields decoded events for one collection.
type Subscription struct {
	collection Collection
	inner      *phoenix.Subscription
	logger     *logging.ColoredLogger
}

// Collection returns the collection this subscription is for.
func (s *Subscription) Collection() Collection { return s.collection }

// State returns the lifecycle state of the underlying channel.
func (s *Subscription) State() phoenix.ChannelState { return s.inner.State() }

// Next blocks until the next decodable event arrives. Frames whose payload
// is not a stream event envelope are skipped; unknown event kinds are
// yielded as *Unrecognized. Terminates with phoenix.ErrChannelClosed on a
// clean close or the channel's terminal error otherwise.
func (s *Subscription) Next(ctx context.Context) (*StreamEvent, error) {
	for {
		msg, err := s.inner.Receive(ctx)
		if err != nil {
			return nil, err
		}
		event, ok := Decode(msg.Payload)
		if !ok {
			s.logger.ComponentDebug(logging.ComponentStream, "skipping undecodable payload",
				zap.String("topic", msg.Topic),
				zap.String("event", msg.Event))
			continue
		}
		return event, nil
	}
}

// Receive returns the next raw protocol frame without decoding, for callers
// that want the wire message.
func (s *Subscription) Receive(ctx context.Context) (*phoenix.Message, error) {
	return s.inner.Receive(ctx)
}

// Close unsubscribes from the collection.
func (s *Subscription) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
