package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"resumind/internal/constants"
	"resumind/internal/logger"
	"resumind/internal/storage"
)

// Stage 流程阶段，值即为展示给用户的进度文本
type Stage string

const (
	StageUploading  Stage = "Uploading file"
	StageConverting Stage = "Converting to image"
	StageImage      Stage = "Uploading image"
	StageRecord     Stage = "Creating record"
	StageRequesting Stage = "Requesting AI analysis"
	StageParsing    Stage = "Parsing response"
	StageUpdating   Stage = "Updating record"
	StageComplete   Stage = "Complete"
)

// CompleteMessage 成功结束时的状态文本
const CompleteMessage = "Analysis complete, redirecting..."

// State 流程整体状态
type State string

const (
	StateRunning  State = "running"
	StateFailed   State = "failed"
	StateComplete State = "complete"
)

// Status 一次上传的最新进度
type Status struct {
	ID          string    `json:"id"`
	Stage       Stage     `json:"stage"`
	Message     string    `json:"message"`
	State       State     `json:"state"`
	ResultsPath string    `json:"results_path,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusReporter 接收进度更新
type StatusReporter interface {
	Report(ctx context.Context, id string, status Status)
}

// StatusReporterFunc 函数适配器
type StatusReporterFunc func(ctx context.Context, id string, status Status)

// Report 调用 f
func (f StatusReporterFunc) Report(ctx context.Context, id string, status Status) {
	f(ctx, id, status)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, string, Status) {}

// KVStatusBoard 把进度写到键值存储 upload_status:<id>，供轮询接口读取
type KVStatusBoard struct {
	kv storage.KVStore
}

var _ StatusReporter = (*KVStatusBoard)(nil)

// NewKVStatusBoard 创建状态板
func NewKVStatusBoard(kv storage.KVStore) *KVStatusBoard {
	return &KVStatusBoard{kv: kv}
}

// Report 写入失败只记录日志，进度信息不影响分析流程
func (b *KVStatusBoard) Report(ctx context.Context, id string, status Status) {
	data, err := json.Marshal(status)
	if err != nil {
		logger.Warn().Err(err).Str("upload_id", id).Msg("序列化上传状态失败")
		return
	}
	if err := b.kv.Set(ctx, constants.UploadStatusKey(id), string(data)); err != nil {
		logger.Warn().Err(err).Str("upload_id", id).Msg("写入上传状态失败")
	}
}

// Get 读取最新进度；不存在时返回 storage.ErrNotFound
func (b *KVStatusBoard) Get(ctx context.Context, id string) (*Status, error) {
	value, err := b.kv.Get(ctx, constants.UploadStatusKey(id))
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal([]byte(value), &status); err != nil {
		return nil, fmt.Errorf("解析上传状态失败: %w", err)
	}
	return &status, nil
}

// StatusRecorder 在内存中按顺序记录所有进度，命令行工具和测试使用
type StatusRecorder struct {
	mu      sync.Mutex
	updates []Status
}

// Report 追加一条记录
func (r *StatusRecorder) Report(_ context.Context, _ string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, status)
}

// Updates 返回记录副本
func (r *StatusRecorder) Updates() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.updates))
	copy(out, r.updates)
	return out
}

// Stages 按顺序返回经历过的阶段
func (r *StatusRecorder) Stages() []Stage {
	updates := r.Updates()
	out := make([]Stage, 0, len(updates))
	for _, u := range updates {
		out = append(out, u.Stage)
	}
	return out
}

// Last 最后一条记录
func (r *StatusRecorder) Last() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return Status{}, false
	}
	return r.updates[len(r.updates)-1], true
}

// IsNotFound 状态是否不存在
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
