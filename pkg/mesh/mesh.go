// Package mesh implements the publish/subscribe abstraction every SAM
// component (Gateway, Proxy, Agent Runtime Harness) uses to talk across
// the event mesh (spec.md §6 mesh topics table). There is no message
// broker client in the example pack, so this is built directly atop
// Redis Streams (XADD/XREADGROUP/XACK) rather than introducing an
// unexercised indirection — see DESIGN.md for why goa.design/pulse itself
// was not imported. The consumer-group-plus-channel shape (Subscribe
// returns an event channel, an error channel, and a cancel func; each
// event is acked only after the caller has consumed it) is grounded on
// goadesign-goa-ai/features/stream/pulse/subscriber.go.
package mesh

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	sameerrors "github.com/SolaceLabs/solace-agent-mesh-core/pkg/errors"
	"github.com/SolaceLabs/solace-agent-mesh-core/pkg/logger"
)

// Message is one delivered mesh event.
type Message struct {
	Topic   string
	ID      string
	Payload []byte
}

// Client is a Redis-Streams-backed mesh pub/sub client.
type Client struct {
	redis  *redis.Client
	prefix string

	// blockTimeout bounds each XREADGROUP poll; it must be short enough
	// that ctx cancellation is noticed promptly between polls.
	blockTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithPrefix sets the Redis key prefix used to namespace mesh topics.
// Defaults to "sam".
func WithPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = prefix }
}

// WithBlockTimeout sets the XREADGROUP polling interval. Defaults to 2s.
func WithBlockTimeout(d time.Duration) Option {
	return func(c *Client) { c.blockTimeout = d }
}

// New creates a mesh Client backed by redisClient.
func New(redisClient *redis.Client, opts ...Option) *Client {
	c := &Client{redis: redisClient, prefix: "sam", blockTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) streamKey(topic string) string {
	return c.prefix + ":topic:" + topic
}

// Publish appends payload to topic's stream and returns the assigned
// stream entry ID.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	id, err := c.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: c.streamKey(topic),
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", sameerrors.New(sameerrors.TransportError, "mesh", "Publish", err)
	}
	logger.MeshPublish(topic, len(payload))
	return id, nil
}

// Subscribe opens a consumer-group subscription on topic and returns a
// channel of delivered messages, an error channel, and a cancel function.
// Each message is acked only after it has been sent to the caller on the
// events channel, so a crash between delivery and ack leaves the message
// pending for redelivery (at-least-once delivery).
func (c *Client) Subscribe(ctx context.Context, topic, group, consumer string, bufferSize int) (<-chan Message, <-chan error, context.CancelFunc, error) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	key := c.streamKey(topic)

	err := c.redis.XGroupCreateMkStream(ctx, key, group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return nil, nil, nil, sameerrors.New(sameerrors.TransportError, "mesh", "Subscribe", err)
	}

	events := make(chan Message, bufferSize)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)

	go c.consume(runCtx, key, topic, group, consumer, events, errs)

	return events, errs, cancel, nil
}

func (c *Client) consume(ctx context.Context, key, topic, group, consumer string, out chan<- Message, errs chan<- error) {
	defer close(out)
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{key, ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case errs <- sameerrors.New(sameerrors.TransportError, "mesh", "consume", err):
			default:
			}
			continue
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				payload, _ := entry.Values["payload"].(string)
				msg := Message{Topic: topic, ID: entry.ID, Payload: []byte(payload)}
				logger.MeshDeliver(topic, len(payload))

				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}

				if ackErr := c.redis.XAck(ctx, key, group, entry.ID).Err(); ackErr != nil {
					select {
					case errs <- sameerrors.New(sameerrors.TransportError, "mesh", "ack", ackErr):
					default:
					}
				}
			}
		}
	}
}

func isBusyGroupError(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// PendingCount returns the number of messages delivered to group on topic
// that have not yet been acked, used by health checks to detect a stuck
// consumer.
func (c *Client) PendingCount(ctx context.Context, topic, group string) (int64, error) {
	summary, err := c.redis.XPending(ctx, c.streamKey(topic), group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, sameerrors.New(sameerrors.TransportError, "mesh", "PendingCount", err)
	}
	return summary.Count, nil
}
