// Package feedback 把 AI 返回的宽松 JSON 映射为展示层使用的固定结构。
package feedback

import (
	"fmt"
	"strconv"
	"strings"

	"resumind/internal/types"
)

const (
	// formatPlaceholderRating 有格式建议时给出的固定分数，不是测量值
	formatPlaceholderRating = 7
	// educationPlaceholderRating AI 没有教育维度的信号，固定给 7
	educationPlaceholderRating = 7
	skillsBaseRating           = 10
)

// Normalize 将 RawFeedback 映射为 NormalizedFeedback。
// 纯函数，不做 I/O，任何字段缺失都退化为 0 / "" / []。
func Normalize(raw types.RawFeedback) types.NormalizedFeedback {
	ats := raw.ATSCompatibility
	if ats == nil {
		ats = &types.RawATSCompatibility{}
	}
	match := raw.JobMatch
	if match == nil {
		match = &types.RawJobMatch{}
	}
	keywords := raw.KeywordOptimization
	if keywords == nil {
		keywords = &types.RawKeywords{}
	}

	overall := valueOr(raw.OverallRating, 0)
	matchRating := valueOr(match.Rating, 0)

	atsRating := 0.0
	switch {
	case ats.Rating != nil:
		atsRating = *ats.Rating
	case ats.Score != nil:
		atsRating = *ats.Score
	}

	formatRating := 0.0
	if len(raw.FormattingSuggestions) > 0 {
		formatRating = formatPlaceholderRating
	}

	// 不做下限截断，缺失关键词超过 10 个时分数为负
	skillsRating := 0.0
	if n := len(keywords.MissingKeywords); n > 0 {
		skillsRating = float64(skillsBaseRating - n)
	}

	contentComments := make([]string, 0, len(raw.Strengths)+len(raw.Weaknesses))
	contentComments = append(contentComments, raw.Strengths...)
	contentComments = append(contentComments, raw.Weaknesses...)

	return types.NormalizedFeedback{
		OverallRating: overall,
		ATSCompatibility: types.CategoryFeedback{
			Rating:   atsRating,
			Comments: joinLines(ats.Issues),
		},
		AlignmentWithJob: types.CategoryFeedback{
			Rating:   matchRating,
			Comments: joinLines(match.Alignment),
		},
		FormatAndDesign: types.CategoryFeedback{
			Rating:   formatRating,
			Comments: joinLines(raw.FormattingSuggestions),
		},
		ContentQuality: types.CategoryFeedback{
			Rating:   matchRating,
			Comments: joinLines(contentComments),
		},
		WorkExperience: types.CategoryFeedback{
			Rating:   matchRating,
			Comments: joinLines(raw.Gaps),
		},
		Education: types.CategoryFeedback{
			Rating:   educationPlaceholderRating,
			Comments: "",
		},
		Skills: types.CategoryFeedback{
			Rating:   skillsRating,
			Comments: joinLines(keywords.SuggestedAdditions),
		},
		ImprovementSuggestions: orEmpty(raw.Recommendations),
		FinalRecommendations:   joinLines(raw.Recommendations),
		Summary:                Summary(overall),
		Strengths:              orEmpty(raw.Strengths),
		Weaknesses:             orEmpty(raw.Weaknesses),
	}
}

// Summary 生成总结语句
func Summary(overall float64) string {
	return fmt.Sprintf("Your resume scored %s/10 based on multiple evaluation categories.", FormatScore(overall))
}

// FormatScore 整数不带小数点，其余按最短表示输出（8 -> "8"，7.5 -> "7.5"）
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func joinLines(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, "\n")
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	out := make([]string, len(items))
	copy(out, items)
	return out
}
