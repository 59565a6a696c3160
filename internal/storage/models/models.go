package models

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry SQL 后端的键值表
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;primaryKey;size:255"`
	Value     string    `gorm:"column:kv_value;size:4294967295;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}

// Outbox 消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 待异步发布的事件
type OutboxMessage struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement"`
	AggregateType    string         `gorm:"size:64;not null"`
	AggregateID      string         `gorm:"size:36;not null;index"`
	EventType        string         `gorm:"size:255;not null"`
	Payload          datatypes.JSON `gorm:"not null"`
	TargetExchange   string         `gorm:"size:255;not null"`
	TargetRoutingKey string         `gorm:"size:255;not null"`
	Status           string         `gorm:"size:20;default:PENDING;not null;index:idx_outbox_status_created_at,priority:1"`
	RetryCount       int            `gorm:"default:0"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index:idx_outbox_status_created_at,priority:2"`
	ProcessedAt      *time.Time
	ErrorMessage     string `gorm:"size:2000"`
}

// TableName specifies the table name for the OutboxMessage model.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// All 需要自动迁移的模型
func All() []any {
	return []any{&KVEntry{}, &OutboxMessage{}}
}
