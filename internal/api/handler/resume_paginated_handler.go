package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resumind/internal/constants"
	"resumind/internal/feedback"
	"resumind/internal/logger"
	"resumind/internal/storage"
	"resumind/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ResumeSummary 列表页的一项
type ResumeSummary struct {
	ID            string  `json:"id"`
	CompanyName   string  `json:"companyName"`
	JobTitle      string  `json:"jobTitle"`
	ImagePath     string  `json:"imagePath"`
	ResumePath    string  `json:"resumePath"`
	OverallRating float64 `json:"overall_rating"`
	Analyzed      bool    `json:"analyzed"`
}

// ResumeListResponse 列表响应，cursor 为偏移量
type ResumeListResponse struct {
	Resumes    []ResumeSummary `json:"resumes"`
	Cursor     int             `json:"cursor"`
	NextCursor int             `json:"next_cursor"`
	Size       int             `json:"size"`
	TotalCount int             `json:"total_count"`
}

// ResumeDetailResponse 详情响应；尚未分析完成时 feedback 和 view 为 null
type ResumeDetailResponse struct {
	Record   types.ResumeRecord        `json:"record"`
	Analyzed bool                      `json:"analyzed"`
	Feedback *types.NormalizedFeedback `json:"feedback"`
	View     *feedback.View            `json:"view"`
}

// HandleList GET /api/v1/resumes?cursor=0&size=20
// 按 id 倒序（UUIDv7 即按时间倒序）分页
func (h *ResumeHandler) HandleList(ctx context.Context, c *app.RequestContext) {
	cursor := 0
	size := defaultPageSize
	if v, err := strconv.Atoi(c.Query("cursor")); err == nil && v > 0 {
		cursor = v
	}
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v > 0 && v <= maxPageSize {
		size = v
	}

	items, err := h.kv.List(ctx, constants.ResumeListPattern, true)
	if err != nil {
		logger.Error().Err(err).Msg("列出简历记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "获取简历列表失败"})
		return
	}

	summaries := make([]ResumeSummary, 0, len(items))
	for _, item := range items {
		var rec types.ResumeRecord
		if err := json.Unmarshal([]byte(item.Value), &rec); err != nil {
			logger.Warn().Err(err).Str("key", item.Key).Msg("跳过无法解析的简历记录")
			continue
		}
		summaries = append(summaries, summarize(rec))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID > summaries[j].ID
	})

	total := len(summaries)
	start := min(cursor, total)
	end := min(start+size, total)
	next := end
	if end >= total {
		next = cursor
	}

	c.JSON(consts.StatusOK, ResumeListResponse{
		Resumes:    summaries[start:end],
		Cursor:     cursor,
		NextCursor: next,
		Size:       size,
		TotalCount: total,
	})
}

func summarize(rec types.ResumeRecord) ResumeSummary {
	s := ResumeSummary{
		ID:          rec.ID,
		CompanyName: rec.CompanyName,
		JobTitle:    rec.JobTitle,
		ImagePath:   rec.ImagePath,
		ResumePath:  rec.ResumePath,
		Analyzed:    rec.HasFeedback(),
	}
	if s.Analyzed {
		s.OverallRating = normalize(rec).OverallRating
	}
	return s
}

func normalize(rec types.ResumeRecord) types.NormalizedFeedback {
	var raw types.RawFeedback
	_ = json.Unmarshal(rec.Feedback, &raw)
	return feedback.Normalize(raw)
}

// HandleGet GET /api/v1/resumes/:id
func (h *ResumeHandler) HandleGet(ctx context.Context, c *app.RequestContext) {
	rec, ok := h.loadRecord(ctx, c)
	if !ok {
		return
	}

	resp := ResumeDetailResponse{Record: *rec, Analyzed: rec.HasFeedback()}
	if resp.Analyzed {
		normalized := normalize(*rec)
		view := feedback.BuildView(normalized)
		resp.Feedback = &normalized
		resp.View = &view
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleFile GET /api/v1/resumes/:id/file
func (h *ResumeHandler) HandleFile(ctx context.Context, c *app.RequestContext) {
	rec, ok := h.loadRecord(ctx, c)
	if !ok {
		return
	}
	h.serveObject(ctx, c, rec.ResumePath)
}

// HandleImage GET /api/v1/resumes/:id/image
func (h *ResumeHandler) HandleImage(ctx context.Context, c *app.RequestContext) {
	rec, ok := h.loadRecord(ctx, c)
	if !ok {
		return
	}
	h.serveObject(ctx, c, rec.ImagePath)
}

func (h *ResumeHandler) loadRecord(ctx context.Context, c *app.RequestContext) (*types.ResumeRecord, bool) {
	id := c.Param("id")
	value, err := h.kv.Get(ctx, constants.ResumeKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "简历不存在"})
			return nil, false
		}
		logger.Error().Err(err).Str("resume_id", id).Msg("读取简历记录失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取简历记录失败"})
		return nil, false
	}

	var rec types.ResumeRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		logger.Error().Err(err).Str("resume_id", id).Msg("简历记录格式错误")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "简历记录格式错误"})
		return nil, false
	}
	return &rec, true
}

// serveObject 读取对象并返回给客户端，reader 在所有路径上都会关闭
func (h *ResumeHandler) serveObject(ctx context.Context, c *app.RequestContext, objectPath string) {
	if err := storage.ValidatePath(objectPath); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}

	rc, info, err := h.objects.Open(ctx, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "文件不存在"})
			return
		}
		logger.Error().Err(err).Str("path", objectPath).Msg("打开存储对象失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		logger.Error().Err(err).Str("path", objectPath).Msg("读取存储对象失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
		return
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(objectPath)
	}
	c.Data(consts.StatusOK, contentType, data)
}
