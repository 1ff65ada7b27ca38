package relationships

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType names a relationship state change
type EventType string

const (
	EventFriendRequestSent      EventType = "friend_request.sent"
	EventFriendRequestAccepted  EventType = "friend_request.accepted"
	EventFriendRequestRejected  EventType = "friend_request.rejected"
	EventFriendRequestCancelled EventType = "friend_request.cancelled"
	EventFriendshipRemoved      EventType = "friendship.removed"
	EventFollowCreated          EventType = "follow.created"
	EventFollowRemoved          EventType = "follow.removed"
)

// RelationshipEvent is published after every acknowledged state change.
type RelationshipEvent struct {
	Type       EventType `json:"type"`
	ActorID    uuid.UUID `json:"actor_id"`
	TargetID   uuid.UUID `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers relationship events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event RelationshipEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, RelationshipEvent) error { return nil }

// RedisPublisher publishes JSON events on a Redis Pub/Sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher, or a NopPublisher when client is nil.
func NewRedisPublisher(client *redis.Client, channel string) EventPublisher {
	if client == nil {
		return NopPublisher{}
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event RelationshipEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal relationship event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
