package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resumind/internal/logger"
	"resumind/internal/storage"
)

// Event 业务事件
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// Message 发布到消息队列的消息体
type Message struct {
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewMessage 序列化事件
func NewMessage(ev Event, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件载荷失败: %w", err)
	}
	return json.Marshal(Message{
		EventType:     ev.EventType,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		OccurredAt:    now.UTC(),
		Payload:       payload,
	})
}

// Enqueuer 接收待发布的事件
type Enqueuer interface {
	Enqueue(ctx context.Context, ev Event) error
}

// DirectPublisher 没有数据库时直接发布到消息队列
type DirectPublisher struct {
	mq         storage.MessageQueue
	exchange   string
	routingKey string
}

var _ Enqueuer = (*DirectPublisher)(nil)

// NewDirectPublisher 创建直接发布器
func NewDirectPublisher(mq storage.MessageQueue, exchange, routingKey string) *DirectPublisher {
	return &DirectPublisher{mq: mq, exchange: exchange, routingKey: routingKey}
}

// Enqueue 立即发布
func (p *DirectPublisher) Enqueue(ctx context.Context, ev Event) error {
	body, err := NewMessage(ev, time.Now())
	if err != nil {
		return err
	}
	return p.mq.PublishMessage(ctx, p.exchange, p.routingKey, body, true)
}

// Discard 未配置消息队列时丢弃事件
type Discard struct{}

// Enqueue 只记录日志
func (Discard) Enqueue(_ context.Context, ev Event) error {
	logger.Debug().Str("event_type", ev.EventType).Str("aggregate_id", ev.AggregateID).Msg("未配置消息队列，丢弃事件")
	return nil
}
