package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resumind/internal/analyzer"
	"resumind/internal/logger"
	"resumind/internal/storage"
)

// 上传表单字段
const (
	FormFile           = "file"
	FormCompanyName    = "company-name"
	FormJobTitle       = "job-title"
	FormJobDescription = "job-description"
)

// StatusPath 上传进度查询路径
func StatusPath(id string) string {
	return fmt.Sprintf("/api/v1/uploads/%s/status", id)
}

// ResumeUploadResponse 后台分析模式下的响应
type ResumeUploadResponse struct {
	ID          string `json:"id"`
	StatusURL   string `json:"status_url"`
	ResultsPath string `json:"results_path"`
}

// ResumeHandler 负责上传、查询和文件读取
type ResumeHandler struct {
	kv          storage.KVStore
	objects     storage.ObjectStorage
	analyzer    *analyzer.Analyzer
	status      *analyzer.KVStatusBoard
	maxFileSize int64
	runAsync    func(fn func())
}

// Option 配置 ResumeHandler
type Option func(*ResumeHandler)

// WithMaxFileSize 单个文件大小上限（字节），<=0 表示不限制
func WithMaxFileSize(n int64) Option {
	return func(h *ResumeHandler) {
		h.maxFileSize = n
	}
}

// WithAsyncRunner 替换后台任务的启动方式，测试中用来同步执行
func WithAsyncRunner(run func(fn func())) Option {
	return func(h *ResumeHandler) {
		if run != nil {
			h.runAsync = run
		}
	}
}

// NewResumeHandler 创建处理器
func NewResumeHandler(kv storage.KVStore, objects storage.ObjectStorage, a *analyzer.Analyzer, status *analyzer.KVStatusBoard, opts ...Option) *ResumeHandler {
	h := &ResumeHandler{
		kv:       kv,
		objects:  objects,
		analyzer: a,
		status:   status,
		runAsync: func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpload POST /api/v1/resumes
// ?wait=true 时同步执行完整分析，否则返回 202 并在后台执行
func (h *ResumeHandler) HandleUpload(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile(FormFile)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}
	if h.maxFileSize > 0 && fileHeader.Size > h.maxFileSize {
		c.JSON(consts.StatusRequestEntityTooLarge, utils.H{
			"error": fmt.Sprintf("文件过大，上限 %d 字节", h.maxFileSize),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	data, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
		return
	}
	if len(data) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件为空"})
		return
	}

	id, err := analyzer.NewID()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成记录 id 失败"})
		return
	}

	req := analyzer.Request{
		ID:             id,
		CompanyName:    c.PostForm(FormCompanyName),
		JobTitle:       c.PostForm(FormJobTitle),
		JobDescription: c.PostForm(FormJobDescription),
		File: analyzer.File{
			Name:        fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Data:        data,
		},
	}

	logger.Info().
		Str("resume_id", id).
		Str("filename", fileHeader.Filename).
		Int("size", len(data)).
		Msg("收到简历上传")

	if c.Query("wait") == "true" {
		res, err := h.analyzer.Analyze(ctx, req)
		if err != nil {
			c.JSON(statusCodeFor(err), utils.H{"id": id, "error": analyzer.StatusMessage(err)})
			return
		}
		c.JSON(consts.StatusOK, res)
		return
	}

	// 先写入初始状态，客户端拿到 id 后立即可以轮询
	h.status.Report(ctx, id, analyzer.Status{
		ID:        id,
		Stage:     analyzer.StageUploading,
		Message:   string(analyzer.StageUploading),
		State:     analyzer.StateRunning,
		UpdatedAt: time.Now(),
	})

	bg := context.WithoutCancel(ctx)
	h.runAsync(func() {
		defer func() {
			// 后台 goroutine 不在 Hertz 的 recovery 中间件保护范围内
			if r := recover(); r != nil {
				logger.Error().Str("resume_id", id).Interface("panic", r).Msg("后台简历分析 panic")
				h.status.Report(bg, id, analyzer.Status{
					ID:        id,
					Message:   analyzer.StatusMessage(fmt.Errorf("%w: panic: %v", analyzer.ErrServiceFailed, r)),
					State:     analyzer.StateFailed,
					UpdatedAt: time.Now(),
				})
			}
		}()
		if _, err := h.analyzer.Analyze(bg, req); err != nil {
			logger.Warn().Err(err).Str("resume_id", id).Msg("后台简历分析失败")
		}
	})

	c.JSON(consts.StatusAccepted, ResumeUploadResponse{
		ID:          id,
		StatusURL:   StatusPath(id),
		ResultsPath: h.analyzer.ResultsPath(id),
	})
}

// HandleStatus GET /api/v1/uploads/:id/status
func (h *ResumeHandler) HandleStatus(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	status, err := h.status.Get(ctx, id)
	if err != nil {
		if analyzer.IsNotFound(err) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "上传记录不存在"})
			return
		}
		logger.Error().Err(err).Str("upload_id", id).Msg("读取上传状态失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取上传状态失败"})
		return
	}
	c.JSON(consts.StatusOK, status)
}

func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, analyzer.ErrInvalidRequest):
		return consts.StatusBadRequest
	case errors.Is(err, analyzer.ErrServiceFailed),
		errors.Is(err, analyzer.ErrResponseShape),
		errors.Is(err, analyzer.ErrParseFailed):
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}
