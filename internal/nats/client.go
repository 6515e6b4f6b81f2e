// Package nats wraps the NATS JetStream connection used to queue analysis runs
package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by operations on a client without a live
// JetStream context
var ErrNotConnected = errors.New("not connected to NATS")

const connectTimeout = 5 * time.Second

// Client holds one NATS connection and its JetStream context
type Client struct {
	mu     sync.RWMutex
	nc     *nats.Conn
	js     jetstream.JetStream
	url    string
	name   string
	closed bool
}

// NewClient connects to url. name identifies the process in NATS monitoring
// and defaults to "queryscope".
func NewClient(url, name string) (*Client, error) {
	if name == "" {
		name = "queryscope"
	}
	c := &Client{url: url, name: name}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	nc, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS error")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc, c.js = nc, js
	c.mu.Unlock()

	log.Debug().Str("url", c.url).Str("name", c.name).Msg("connected to NATS JetStream")
	return nil
}

func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil || c.closed {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// EnsureStream creates the stream or updates it to cfg. Zero limits get
// the defaults of DefaultStreamConfig.
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	defaults := DefaultStreamConfig()
	if cfg.MaxMsgs == 0 {
		cfg.MaxMsgs = defaults.MaxMsgs
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaults.MaxBytes
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaults.MaxAge
	}
	if cfg.Replicas == 0 {
		cfg.Replicas = 1
	}

	stream, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	log.Debug().Str("stream", cfg.Name).Strs("subjects", cfg.Subjects).Msg("stream ready")
	return stream, nil
}

// EnsureConsumer creates the durable consumer or updates it to cfg
func (c *Client) EnsureConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.Durable, err)
	}

	log.Debug().
		Str("stream", stream).
		Str("consumer", cfg.Durable).
		Str("filter", cfg.FilterSubject).
		Msg("consumer ready")

	return consumer, nil
}

// Consumer looks up an existing durable consumer
func (c *Client) Consumer(ctx context.Context, stream, name string) (jetstream.Consumer, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	consumer, err := js.Consumer(ctx, stream, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", name, err)
	}
	return consumer, nil
}

// Publish publishes a message and waits for the stream to store it
func (c *Client) Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	ack, err := js.Publish(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return ack, nil
}

// IsConnected reports whether the connection is currently up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && !c.closed && c.nc.IsConnected()
}

// HealthCheck returns ErrNotConnected while the connection is down
func (c *Client) HealthCheck() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.nc != nil {
		c.nc.Close()
		log.Info().Str("name", c.name).Msg("NATS connection closed")
	}
}
