// Package realtime publishes live update events over Redis pub/sub. Delivery
// is best effort: a dropped event never fails the operation that produced it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	EventConvoNew            = "convo:new"
	EventConvoDeleted        = "convo:deleted"
	EventConvoEntryNew       = "convo:entry:new"
	EventConvoWorkflowUpdate = "convo:workflow:update"
)

// SpaceChannel is the pub/sub channel carrying events for one space.
func SpaceChannel(spacePublicID string) string {
	return "private-space-" + spacePublicID
}

// OrgChannel is the pub/sub channel carrying org-wide events.
func OrgChannel(orgPublicID string) string {
	return "private-org-" + orgPublicID
}

type envelope struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// Notifier publishes events to Redis.
type Notifier struct {
	client *redis.Client
}

// NewNotifier connects to Redis and verifies the connection.
func NewNotifier(redisURL string) (*Notifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Notifier{client: client}, nil
}

// NewNotifierWithClient creates a notifier from an existing Redis client.
func NewNotifierWithClient(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Close() error {
	return n.client.Close()
}

// Emit publishes one event. Failures are logged and swallowed.
func (n *Notifier) Emit(ctx context.Context, channel, event string, payload any) {
	raw, err := json.Marshal(envelope{Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		log.Printf("realtime: marshal %s: %v", event, err)
		return
	}
	if err := n.client.Publish(ctx, channel, raw).Err(); err != nil {
		log.Printf("realtime: publish %s to %s: %v", event, channel, err)
	}
}

// EmitOnChannels fans one event out to several channels concurrently. Each
// channel is attempted independently; failures are logged per channel.
func (n *Notifier) EmitOnChannels(ctx context.Context, channels []string, event string, payload any) {
	raw, err := json.Marshal(envelope{Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		log.Printf("realtime: marshal %s: %v", event, err)
		return
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, channel := range channels {
		channel := channel
		g.Go(func() error {
			if err := n.client.Publish(ctx, channel, raw).Err(); err != nil {
				log.Printf("realtime: publish %s to %s: %v", event, channel, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
