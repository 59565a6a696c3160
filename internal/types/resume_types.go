package types

import (
	"encoding/json"
)

// ResumeRecord 持久化到键值存储中的简历记录
// key 格式: resume:<id>，value 为本结构的 JSON 序列化结果
type ResumeRecord struct {
	ID             string          `json:"id"`
	ResumePath     string          `json:"resumePath"`
	ImagePath      string          `json:"imagePath"`
	CompanyName    string          `json:"companyName"`
	JobTitle       string          `json:"jobTitle"`
	JobDescription string          `json:"jobDescription"`
	Feedback       json.RawMessage `json:"feedback"` // 创建时为 ""，AI 分析完成后为原始 JSON 对象
}

// EmptyFeedback 记录创建阶段写入的空反馈
var EmptyFeedback = json.RawMessage(`""`)

// HasFeedback 判断记录是否已经写入了 AI 反馈。只有 "" 和 null 视为未分析，{} 也算已分析
func (r *ResumeRecord) HasFeedback() bool {
	if len(r.Feedback) == 0 {
		return false
	}
	switch string(r.Feedback) {
	case `""`, "null":
		return false
	}
	return true
}

// RawFeedback 来自 AI 服务、未经校验的反馈 JSON，所有字段均可缺失
type RawFeedback struct {
	OverallRating         *float64             `json:"overall_rating,omitempty"`
	ATSCompatibility      *RawATSCompatibility `json:"ats_compatibility,omitempty"`
	JobMatch              *RawJobMatch         `json:"job_match,omitempty"`
	FormattingSuggestions []string             `json:"formatting_suggestions,omitempty"`
	KeywordOptimization   *RawKeywords         `json:"keyword_optimization,omitempty"`
	Strengths             []string             `json:"strengths,omitempty"`
	Weaknesses            []string             `json:"weaknesses,omitempty"`
	Recommendations       []string             `json:"recommendations,omitempty"`
	Gaps                  []string             `json:"gaps,omitempty"`
}

// RawATSCompatibility ATS 兼容性原始字段
type RawATSCompatibility struct {
	Rating *float64 `json:"rating,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

// RawJobMatch 岗位匹配原始字段
type RawJobMatch struct {
	Rating    *float64 `json:"rating,omitempty"`
	Alignment []string `json:"alignment,omitempty"`
}

// RawKeywords 关键词优化原始字段
type RawKeywords struct {
	MissingKeywords    []string `json:"missing_keywords,omitempty"`
	SuggestedAdditions []string `json:"suggested_additions,omitempty"`
}

// UnmarshalJSON 逐字段宽松解析。
// 某个字段类型不符（例如 rating 是字符串）时只丢弃该字段，其余字段照常保留。
func (f *RawFeedback) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// 非对象（"", null, 数组）一律视为没有数据
		*f = RawFeedback{}
		return nil
	}

	out := RawFeedback{}
	out.OverallRating = decodeNumber(fields["overall_rating"])
	out.FormattingSuggestions = decodeStrings(fields["formatting_suggestions"])
	out.Strengths = decodeStrings(fields["strengths"])
	out.Weaknesses = decodeStrings(fields["weaknesses"])
	out.Recommendations = decodeStrings(fields["recommendations"])
	out.Gaps = decodeStrings(fields["gaps"])

	if sub := decodeObject(fields["ats_compatibility"]); sub != nil {
		out.ATSCompatibility = &RawATSCompatibility{
			Rating: decodeNumber(sub["rating"]),
			Score:  decodeNumber(sub["score"]),
			Issues: decodeStrings(sub["issues"]),
		}
	}
	if sub := decodeObject(fields["job_match"]); sub != nil {
		out.JobMatch = &RawJobMatch{
			Rating:    decodeNumber(sub["rating"]),
			Alignment: decodeStrings(sub["alignment"]),
		}
	}
	if sub := decodeObject(fields["keyword_optimization"]); sub != nil {
		out.KeywordOptimization = &RawKeywords{
			MissingKeywords:    decodeStrings(sub["missing_keywords"]),
			SuggestedAdditions: decodeStrings(sub["suggested_additions"]),
		}
	}

	*f = out
	return nil
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil
	}
	return m
}

func decodeNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// decodeStrings 解析字符串数组；数组中混入的非字符串元素被跳过
func decodeStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// CategoryFeedback 单个评估维度
type CategoryFeedback struct {
	Rating   float64 `json:"rating"`
	Comments string  `json:"comments"`
}

// NormalizedFeedback 展示层依赖的固定结构，所有字段都不会为 null
type NormalizedFeedback struct {
	OverallRating          float64          `json:"overall_rating"`
	ATSCompatibility       CategoryFeedback `json:"ats_compatibility"`
	AlignmentWithJob       CategoryFeedback `json:"alignment_with_job"`
	FormatAndDesign        CategoryFeedback `json:"format_and_design"`
	ContentQuality         CategoryFeedback `json:"content_quality"`
	WorkExperience         CategoryFeedback `json:"work_experience"`
	Education              CategoryFeedback `json:"education"`
	Skills                 CategoryFeedback `json:"skills"`
	ImprovementSuggestions []string         `json:"improvement_suggestions"`
	FinalRecommendations   string           `json:"final_recommendations"`
	Summary                string           `json:"summary"`
	Strengths              []string         `json:"strengths"`
	Weaknesses             []string         `json:"weaknesses"`
}
