package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"resumind/internal/config"
	"resumind/internal/storage"
	"resumind/internal/storage/models"
)

type published struct {
	exchange   string
	routingKey string
	body       []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	fail error
	sent []published
}

func (f *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, body []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, published{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (f *fakePublisher) PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, persistent bool) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return f.PublishMessage(ctx, exchange, routingKey, body, persistent)
}

func (f *fakePublisher) EnsureExchange(string, string, bool) error { return nil }
func (f *fakePublisher) Close() error                              { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.NewDatabase(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "outbox.db"),
		LogLevel: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.DB()
}

func testEvent(id string) Event {
	return Event{
		AggregateType: "resume",
		AggregateID:   id,
		EventType:     "resume.analyzed",
		Payload:       map[string]any{"id": id, "overall_rating": 8},
	}
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	body, err := NewMessage(testEvent("abc"), now)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "resume.analyzed", msg.EventType)
	assert.Equal(t, "abc", msg.AggregateID)
	assert.True(t, now.Equal(msg.OccurredAt))
	assert.JSONEq(t, `{"id":"abc","overall_rating":8}`, string(msg.Payload))

	_, err = NewMessage(Event{Payload: make(chan int)}, now)
	assert.Error(t, err)
}

func TestRelayPublishesPendingMessages(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ob := NewOutbox(db, "resume.events", "resume.analyzed")

	require.NoError(t, ob.Enqueue(ctx, testEvent("a")))
	require.NoError(t, ob.Enqueue(ctx, testEvent("b")))

	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, config.OutboxConfig{BatchSize: 10})
	assert.False(t, relay.skipLocked)

	n, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, "resume.events", pub.sent[0].exchange)
	assert.Equal(t, "resume.analyzed", pub.sent[0].routingKey)

	var msgs []models.OutboxMessage
	require.NoError(t, db.Order("id asc").Find(&msgs).Error)
	for _, m := range msgs {
		assert.Equal(t, models.OutboxStatusSent, m.Status)
		assert.NotNil(t, m.ProcessedAt)
	}

	n, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRelayMarksFailedAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewOutbox(db, "ex", "rk").Enqueue(ctx, testEvent("a")))

	pub := &fakePublisher{fail: errors.New("broker down")}
	relay := NewMessageRelay(db, pub, config.OutboxConfig{MaxRetries: 2})

	_, err := relay.ProcessPending(ctx)
	require.NoError(t, err)

	var msg models.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
	assert.Equal(t, "broker down", msg.ErrorMessage)

	_, err = relay.ProcessPending(ctx)
	require.NoError(t, err)
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)

	n, err := relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRelayStartStop(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, NewOutbox(db, "ex", "rk").Enqueue(context.Background(), testEvent("a")))

	pub := &fakePublisher{}
	relay := NewMessageRelay(db, pub, config.OutboxConfig{PollInterval: "10ms"})
	relay.Start()

	assert.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)
	relay.Stop()
}

func TestDirectPublisher(t *testing.T) {
	pub := &fakePublisher{}
	dp := NewDirectPublisher(pub, "ex", "rk")
	require.NoError(t, dp.Enqueue(context.Background(), testEvent("x")))
	require.Len(t, pub.sent, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.sent[0].body, &msg))
	assert.Equal(t, "x", msg.AggregateID)

	assert.NoError(t, Discard{}.Enqueue(context.Background(), testEvent("y")))
}
