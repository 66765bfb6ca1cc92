package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/events"
)

// DefaultStream 帳務事件的 Redis Stream 名稱
const DefaultStream = "ledger.events"

// EventPublisher 把帳務事件寫到單一 Redis Stream
type EventPublisher struct {
	publisher *events.Publisher
	stream    string
}

func NewEventPublisher(client goredis.UniversalClient, stream string, maxLen int64) *EventPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &EventPublisher{
		publisher: events.NewPublisher(client, maxLen),
		stream:    stream,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, eventType string, data any) error {
	_, err := p.publisher.Publish(ctx, p.stream, eventType, data)
	return err
}

var _ usecase.EventPublisher = (*EventPublisher)(nil)
