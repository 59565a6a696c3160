// Package analyzer 实现上传分析流程：上传文件、生成预览图、创建记录、调用 AI、写回反馈。
// 各阶段严格串行，任一阶段失败即终止，不回滚已完成的阶段。
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resumind/internal/constants"
	"resumind/internal/feedback"
	"resumind/internal/llm"
	"resumind/internal/logger"
	"resumind/internal/outbox"
	"resumind/internal/preview"
	"resumind/internal/ratelimit"
	"resumind/internal/storage"
	"resumind/internal/tracing"
	"resumind/internal/types"
)

const defaultResultsPath = "/resume/%s"

// File 上传的文件
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request 一次分析请求。ID 为空时自动生成
type Request struct {
	ID             string
	CompanyName    string
	JobTitle       string
	JobDescription string
	File           File
}

// Result 分析成功后的结果
type Result struct {
	ID          string             `json:"id"`
	ResultsPath string             `json:"results_path"`
	Record      types.ResumeRecord `json:"record"`
}

// Converter 文档转预览图
type Converter interface {
	Convert(ctx context.Context, filename string, data []byte) (*preview.Image, error)
}

// Analyzer 上传分析流程
type Analyzer struct {
	objects   storage.ObjectStorage
	kv        storage.KVStore
	converter Converter
	ai        llm.FeedbackClient

	events      outbox.Enqueuer
	reporter    StatusReporter
	aiRetry     ratelimit.RetryPolicy
	resultsPath string
	newID       func() (string, error)
	tracer      trace.Tracer
}

// Option 配置 Analyzer
type Option func(*Analyzer)

// WithEvents 分析完成后发布事件
func WithEvents(events outbox.Enqueuer) Option {
	return func(a *Analyzer) {
		if events != nil {
			a.events = events
		}
	}
}

// WithStatusReporter 设置进度接收者
func WithStatusReporter(reporter StatusReporter) Option {
	return func(a *Analyzer) {
		if reporter != nil {
			a.reporter = reporter
		}
	}
}

// WithAIRetry AI 调用失败后的额外重试次数和间隔，默认不重试
func WithAIRetry(retries int, wait time.Duration) Option {
	return func(a *Analyzer) {
		if retries >= 0 {
			a.aiRetry.MaxRetries = retries
		}
		if wait >= 0 {
			a.aiRetry.Wait = wait
		}
	}
}

// WithResultsPath 结果页路径格式，需包含一个 %s
func WithResultsPath(format string) Option {
	return func(a *Analyzer) {
		if strings.Contains(format, "%s") {
			a.resultsPath = format
		}
	}
}

// WithIDGenerator 替换 id 生成函数
func WithIDGenerator(fn func() (string, error)) Option {
	return func(a *Analyzer) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// New 创建 Analyzer
func New(objects storage.ObjectStorage, kv storage.KVStore, converter Converter, ai llm.FeedbackClient, opts ...Option) *Analyzer {
	a := &Analyzer{
		objects:     objects,
		kv:          kv,
		converter:   converter,
		ai:          ai,
		events:      outbox.Discard{},
		reporter:    nopReporter{},
		resultsPath: defaultResultsPath,
		newID:       NewID,
		tracer:      otel.Tracer("resumind/analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewID 生成记录 id (UUIDv7)
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ResultsPath 结果页路径
func (a *Analyzer) ResultsPath(id string) string {
	return fmt.Sprintf(a.resultsPath, id)
}

// Analyze 执行完整流程。调用方取消 ctx 不会中断已开始的流程。
// 失败时返回 *StageError，进度接收者收到 "Error: ..." 状态。
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	id := req.ID
	if id == "" {
		var err error
		if id, err = a.newID(); err != nil {
			return nil, fmt.Errorf("生成记录 id 失败: %w", err)
		}
	}
	log := logger.ForResume(id)

	ctx, span := a.tracer.Start(ctx, "analyzer.Analyze", trace.WithAttributes(
		attribute.String("resume.id", id),
		attribute.String("resume.filename", req.File.Name),
		attribute.Int("resume.size", len(req.File.Data)),
	))
	defer span.End()

	if err := validate(req); err != nil {
		err = newStageError(id, StageUploading, ErrInvalidRequest, err)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		a.fail(ctx, id, StageUploading, err)
		return nil, err
	}

	record := types.ResumeRecord{
		ID:             id,
		CompanyName:    req.CompanyName,
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
		Feedback:       types.EmptyFeedback,
	}

	var image *preview.Image
	var env *llm.Envelope

	stages := []struct {
		stage   Stage
		base    error
		errType tracing.ErrorType
		run     func(ctx context.Context) error
	}{
		{StageUploading, ErrUploadFailed, tracing.ErrorTypeObjectStorage, func(ctx context.Context) error {
			contentType := req.File.ContentType
			if contentType == "" {
				contentType = storage.ContentTypeFor(req.File.Name)
			}
			p, err := a.upload(ctx, storage.ObjectName(constants.ResumeObjectPrefix, id, req.File.Name), req.File.Data, contentType)
			if err != nil {
				return newStageError(id, StageUploading, ErrUploadFailed, err)
			}
			record.ResumePath = p
			return nil
		}},
		{StageConverting, ErrConversionFailed, tracing.ErrorTypeConversion, func(ctx context.Context) error {
			img, err := a.converter.Convert(ctx, req.File.Name, req.File.Data)
			if err != nil {
				return newStageError(id, StageConverting, ErrConversionFailed, err)
			}
			if img == nil || len(img.Data) == 0 {
				return newStageError(id, StageConverting, ErrConversionFailed, preview.ErrNoImage)
			}
			image = img
			return nil
		}},
		{StageImage, ErrUploadFailed, tracing.ErrorTypeObjectStorage, func(ctx context.Context) error {
			p, err := a.upload(ctx, storage.ObjectName(constants.ImageObjectPrefix, id, image.Filename), image.Data, image.ContentType)
			if err != nil {
				return newStageError(id, StageImage, ErrUploadFailed, err)
			}
			record.ImagePath = p
			return nil
		}},
		{StageRecord, ErrRecordFailed, tracing.ErrorTypeKV, func(ctx context.Context) error {
			if err := a.saveRecord(ctx, record); err != nil {
				return newStageError(id, StageRecord, ErrRecordFailed, err)
			}
			return nil
		}},
		{StageRequesting, ErrServiceFailed, tracing.ErrorTypeLLM, func(ctx context.Context) error {
			var err error
			env, err = a.requestFeedback(ctx, id, record.ResumePath, llm.Instructions(req.JobTitle, req.JobDescription))
			if err != nil {
				return newStageError(id, StageRequesting, ErrServiceFailed, err)
			}
			return nil
		}},
		{StageParsing, ErrParseFailed, tracing.ErrorTypeValidation, func(ctx context.Context) error {
			raw, base, cause := parseFeedback(env)
			if base != nil {
				return newStageError(id, StageParsing, base, cause)
			}
			record.Feedback = raw
			return nil
		}},
		{StageUpdating, ErrRecordFailed, tracing.ErrorTypeKV, func(ctx context.Context) error {
			if err := a.saveRecord(ctx, record); err != nil {
				return newStageError(id, StageUpdating, ErrRecordFailed, err)
			}
			return nil
		}},
	}

	for _, s := range stages {
		if err := a.runStage(ctx, id, s.stage, s.base, s.errType, s.run); err != nil {
			log.Error().Err(err).Str("stage", string(s.stage)).Msg("简历分析失败")
			tracing.RecordError(span, err, s.errType)
			a.fail(ctx, id, s.stage, err)
			return nil, err
		}
	}

	result := &Result{ID: id, ResultsPath: a.ResultsPath(id), Record: record}
	a.reporter.Report(ctx, id, Status{
		ID:          id,
		Stage:       StageComplete,
		Message:     CompleteMessage,
		State:       StateComplete,
		ResultsPath: result.ResultsPath,
		UpdatedAt:   time.Now(),
	})
	log.Info().Str("results_path", result.ResultsPath).Msg("简历分析完成")

	a.publishAnalyzed(ctx, result)
	return result, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.File.Name) == "" {
		return fmt.Errorf("缺少文件名")
	}
	if len(req.File.Data) == 0 {
		return fmt.Errorf("文件 %s 为空", req.File.Name)
	}
	return nil
}

func (a *Analyzer) runStage(ctx context.Context, id string, stage Stage, base error, errType tracing.ErrorType, fn func(ctx context.Context) error) error {
	a.reporter.Report(ctx, id, Status{
		ID:        id,
		Stage:     stage,
		Message:   string(stage),
		State:     StateRunning,
		UpdatedAt: time.Now(),
	})

	ctx, span := a.tracer.Start(ctx, "analyzer."+strings.ReplaceAll(strings.ToLower(string(stage)), " ", "_"))
	defer span.End()

	start := time.Now()
	err := callStage(ctx, id, stage, base, fn)
	span.SetAttributes(attribute.Int64("stage.duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		tracing.RecordError(span, err, errType)
	}
	return err
}

// callStage 执行阶段函数；解析库等依赖的 panic 转换为该阶段的失败
func callStage(ctx context.Context, id string, stage Stage, base error, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("resume_id", id).Str("stage", string(stage)).Interface("panic", r).Msg("分析阶段发生 panic")
			err = newStageError(id, stage, base, fmt.Errorf("panic: %v", r))
		}
	}()
	return fn(ctx)
}

func (a *Analyzer) fail(ctx context.Context, id string, stage Stage, err error) {
	a.reporter.Report(ctx, id, Status{
		ID:        id,
		Stage:     stage,
		Message:   StatusMessage(err),
		State:     StateFailed,
		UpdatedAt: time.Now(),
	})
}

func (a *Analyzer) upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	p, err := a.objects.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", fmt.Errorf("存储未返回路径: %s", name)
	}
	return p, nil
}

func (a *Analyzer) saveRecord(ctx context.Context, record types.ResumeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	return a.kv.Set(ctx, constants.ResumeKey(record.ID), string(data))
}

// requestFeedback 调用 AI；默认策略只尝试一次
func (a *Analyzer) requestFeedback(ctx context.Context, id, resumePath, instructions string) (*llm.Envelope, error) {
	var env *llm.Envelope
	err := a.aiRetry.Do(ctx, func(int) error {
		resp, err := a.ai.Feedback(ctx, resumePath, instructions)
		if err != nil {
			return err
		}
		if resp == nil {
			return llm.ErrMissingContent
		}
		if err := resp.Err(); err != nil {
			return err
		}
		env = resp
		return nil
	}, func(attempt int, lastErr error) {
		logger.Warn().Err(lastErr).Str("resume_id", id).Int("attempt", attempt).Msg("AI 调用失败，准备重试")
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// parseFeedback 取出响应文本并校验为 JSON，返回压缩后的原始 JSON。
// 失败时返回失败类别和具体原因
func parseFeedback(env *llm.Envelope) (json.RawMessage, error, error) {
	text, err := llm.ExtractText(env)
	if err != nil {
		return nil, ErrResponseShape, err
	}

	cleaned := llm.CleanJSON(text)
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(cleaned)); err != nil {
		return nil, ErrParseFailed, fmt.Errorf("%w: %s", err, tracing.TruncateString(cleaned, 200))
	}
	return json.RawMessage(buf.Bytes()), nil, nil
}

// publishAnalyzed 尽力发布完成事件，失败只记录日志
func (a *Analyzer) publishAnalyzed(ctx context.Context, result *Result) {
	var raw types.RawFeedback
	_ = json.Unmarshal(result.Record.Feedback, &raw)
	normalized := feedback.Normalize(raw)

	ev := outbox.Event{
		AggregateType: constants.AggregateResume,
		AggregateID:   result.ID,
		EventType:     constants.EventResumeAnalyzed,
		Payload: map[string]any{
			"resume_id":      result.ID,
			"company_name":   result.Record.CompanyName,
			"job_title":      result.Record.JobTitle,
			"overall_rating": normalized.OverallRating,
			"results_path":   result.ResultsPath,
		},
	}
	if err := a.events.Enqueue(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("resume_id", result.ID).Msg("发布分析完成事件失败")
	}
}
