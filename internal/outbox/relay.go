package outbox // 发件箱模式（Outbox Pattern）的实现

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resumind/internal/config"
	"resumind/internal/logger"
	"resumind/internal/storage/models"
	"resumind/internal/tracing"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	defaultMaxRetryCount   = 5
)

// Publisher 中继使用的发布接口，storage.MessageQueue 满足该接口
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// Outbox 将事件写入 outbox 表，由 MessageRelay 异步发布
type Outbox struct {
	db         *gorm.DB
	exchange   string
	routingKey string
}

var _ Enqueuer = (*Outbox)(nil)

// NewOutbox 创建 outbox 写入器
func NewOutbox(db *gorm.DB, exchange, routingKey string) *Outbox {
	return &Outbox{db: db, exchange: exchange, routingKey: routingKey}
}

// Enqueue 插入一条 PENDING 消息
func (o *Outbox) Enqueue(ctx context.Context, ev Event) error {
	body, err := NewMessage(ev, time.Now())
	if err != nil {
		return err
	}
	msg := models.OutboxMessage{
		AggregateType:    ev.AggregateType,
		AggregateID:      ev.AggregateID,
		EventType:        ev.EventType,
		Payload:          datatypes.JSON(body),
		TargetExchange:   o.exchange,
		TargetRoutingKey: o.routingKey,
		Status:           models.OutboxStatusPending,
	}
	if err := o.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}
	return nil
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	skipLocked      bool // sqlite 不支持 FOR UPDATE SKIP LOCKED
	done            chan struct{}
	wg              sync.WaitGroup
	tracer          trace.Tracer
}

// NewMessageRelay 创建中继；未配置的参数使用默认值
func NewMessageRelay(db *gorm.DB, publisher Publisher, cfg config.OutboxConfig) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		pollingInterval: config.GetDuration(cfg.PollInterval, defaultPollingInterval),
		batchSize:       cfg.BatchSize,
		maxRetries:      cfg.MaxRetries,
		skipLocked:      db.Dialector.Name() != "sqlite",
		done:            make(chan struct{}),
		tracer:          otel.Tracer("resumind/outbox"),
	}
	if r.pollingInterval <= 0 {
		r.pollingInterval = defaultPollingInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetryCount
	}
	return r
}

// Start 在后台 goroutine 中开始轮询
func (r *MessageRelay) Start() {
	logger.Info().Dur("interval", r.pollingInterval).Int("batch_size", r.batchSize).Msg("MessageRelay starting...")
	ticker := time.NewTicker(r.pollingInterval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				logger.Info().Msg("MessageRelay stopped.")
				return
			case <-ticker.C:
				if _, err := r.ProcessPending(context.Background()); err != nil {
					logger.Error().Err(err).Msg("处理 outbox 待发送消息失败")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束
func (r *MessageRelay) Stop() {
	logger.Info().Msg("MessageRelay stopping...")
	close(r.done)
	r.wg.Wait()
}

// ProcessPending 取一批 PENDING 消息并发布，返回本批处理的条数。
// 整批在一个事务中更新；更新失败时整批回滚，下次轮询重新拾取。
func (r *MessageRelay) ProcessPending(ctx context.Context) (int, error) {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, tx.Error
	}
	defer tx.Rollback()

	query := tx
	if r.skipLocked {
		// 多实例部署时跳过被其他事务锁定的行
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	err := query.
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at asc").
		Order("id asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return 0, fmt.Errorf("获取待发送 outbox 消息失败: %w", err)
	}

	// 空轮询不创建 span
	if len(messages) == 0 {
		return 0, tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))))
	defer span.End()

	logger.Debug().Int("count", len(messages)).Msg("获取到待发送的 outbox 消息")

	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = tracing.TruncateString(err.Error(), 1900)
			if msg.RetryCount >= r.maxRetries {
				msg.Status = models.OutboxStatusFailed
			}
			logger.Warn().Err(err).
				Uint64("id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retries", msg.RetryCount).
				Msg("发布 outbox 消息失败")
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		} else {
			now := time.Now()
			msg.Status = models.OutboxStatusSent
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		if err := tx.Save(msg).Error; err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return 0, fmt.Errorf("更新 outbox 消息 %d 失败: %w", msg.ID, err)
		}
	}

	return len(messages), tx.Commit().Error
}
