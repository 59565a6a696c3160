package feedback

import (
	"resumind/internal/types"
)

// Tier 分数档位
type Tier string

const (
	TierStrong    Tier = "strong"
	TierGoodStart Tier = "good_start"
	TierNeedsWork Tier = "needs_work"
)

// TierFor 按分数划档：>=7 strong，>=5 good_start，其余 needs_work
func TierFor(score float64) Tier {
	switch {
	case score >= 7:
		return TierStrong
	case score >= 5:
		return TierGoodStart
	default:
		return TierNeedsWork
	}
}

// Badge 分类徽章上的短标签
func (t Tier) Badge() string {
	switch t {
	case TierStrong:
		return "Strong"
	case TierGoodStart:
		return "Good Start"
	default:
		return "Needs Work"
	}
}

// Headline 详情区块的标题文案
func (t Tier) Headline() string {
	switch t {
	case TierStrong:
		return "Excellent Match!"
	case TierGoodStart:
		return "Good Start"
	default:
		return "Needs Improvement"
	}
}

// CategoryScore 概览中的一行
type CategoryScore struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
	Tier  Tier    `json:"tier"`
	Badge string  `json:"badge"`
}

// ATSPanel ATS 兼容性面板
type ATSPanel struct {
	Score       float64  `json:"score"`
	Tier        Tier     `json:"tier"`
	Headline    string   `json:"headline"`
	Suggestions []string `json:"suggestions"`
}

// DetailSection 详情折叠区块
type DetailSection struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	Rating   float64 `json:"rating"`
	Comments string  `json:"comments"`
	Tier     Tier    `json:"tier"`
	Headline string  `json:"headline"`
}

// View 结果页所需的全部展示数据
type View struct {
	OverallScore   float64         `json:"overall_score"`
	OverallPercent float64         `json:"overall_percent"`
	OverallTier    Tier            `json:"overall_tier"`
	Summary        string          `json:"summary"`
	Categories     []CategoryScore `json:"categories"`
	ATS            *ATSPanel       `json:"ats,omitempty"`
	Details        []DetailSection `json:"details"`
	Strengths      []string        `json:"strengths"`
	Weaknesses     []string        `json:"weaknesses"`
}

type category struct {
	key   string
	title string
	pick  func(types.NormalizedFeedback) types.CategoryFeedback
}

// summaryOrder 概览固定顺序
var summaryOrder = []category{
	{"format_and_design", "Tone & Style", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.FormatAndDesign }},
	{"content_quality", "Content Quality", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.ContentQuality }},
	{"work_experience", "Structure & Format", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.WorkExperience }},
	{"skills", "Skill Match", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.Skills }},
	{"ats_compatibility", "ATS Compatibility", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.ATSCompatibility }},
	{"alignment_with_job", "Relevance to Work", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.AlignmentWithJob }},
	{"education", "Education", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.Education }},
}

// detailOrder 详情区块顺序
var detailOrder = []category{
	{"ats_compatibility", "ATS Compatibility", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.ATSCompatibility }},
	{"alignment_with_job", "Alignment with Job", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.AlignmentWithJob }},
	{"format_and_design", "Format & Design", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.FormatAndDesign }},
	{"content_quality", "Content Quality", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.ContentQuality }},
	{"work_experience", "Work Experience", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.WorkExperience }},
	{"education", "Education", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.Education }},
	{"skills", "Skills", func(f types.NormalizedFeedback) types.CategoryFeedback { return f.Skills }},
}

// BuildView 根据归一化反馈生成展示模型
func BuildView(f types.NormalizedFeedback) View {
	v := View{
		OverallScore:   f.OverallRating,
		OverallPercent: clamp(f.OverallRating/10, 0, 1),
		OverallTier:    TierFor(f.OverallRating),
		Summary:        f.Summary,
		Categories:     []CategoryScore{},
		Details:        []DetailSection{},
		Strengths:      orEmpty(f.Strengths),
		Weaknesses:     orEmpty(f.Weaknesses),
	}

	for _, c := range summaryOrder {
		score := c.pick(f).Rating
		if score <= 0 {
			continue
		}
		tier := TierFor(score)
		v.Categories = append(v.Categories, CategoryScore{Title: c.title, Score: score, Tier: tier, Badge: tier.Badge()})
	}

	atsScore := clamp(f.ATSCompatibility.Rating, 0, 10)
	if atsScore != 0 || len(f.ImprovementSuggestions) > 0 {
		tier := TierFor(atsScore)
		v.ATS = &ATSPanel{
			Score:       atsScore,
			Tier:        tier,
			Headline:    tier.Headline(),
			Suggestions: orEmpty(f.ImprovementSuggestions),
		}
	}

	for _, c := range detailOrder {
		cf := c.pick(f)
		if cf.Rating == 0 && cf.Comments == "" {
			continue
		}
		tier := TierFor(cf.Rating)
		v.Details = append(v.Details, DetailSection{
			Key:      c.key,
			Title:    c.title,
			Rating:   cf.Rating,
			Comments: cf.Comments,
			Tier:     tier,
			Headline: tier.Headline(),
		})
	}

	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
