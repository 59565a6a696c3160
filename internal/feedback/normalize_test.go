package feedback

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumind/internal/types"
)

func parseRaw(t *testing.T, s string) types.RawFeedback {
	t.Helper()
	var raw types.RawFeedback
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func allCategories(n types.NormalizedFeedback) map[string]types.CategoryFeedback {
	return map[string]types.CategoryFeedback{
		"ats_compatibility":  n.ATSCompatibility,
		"alignment_with_job": n.AlignmentWithJob,
		"format_and_design":  n.FormatAndDesign,
		"content_quality":    n.ContentQuality,
		"work_experience":    n.WorkExperience,
		"education":          n.Education,
		"skills":             n.Skills,
	}
}

func TestNormalize_EmptyObject(t *testing.T) {
	n := Normalize(parseRaw(t, `{}`))

	assert.Equal(t, 0.0, n.OverallRating)
	for key, c := range allCategories(n) {
		if key == "education" {
			assert.Equal(t, 7.0, c.Rating, key)
		} else {
			assert.Equal(t, 0.0, c.Rating, key)
		}
		assert.Equal(t, "", c.Comments, key)
	}
	assert.Equal(t, "Your resume scored 0/10 based on multiple evaluation categories.", n.Summary)
	assert.Equal(t, "", n.FinalRecommendations)
	assert.NotNil(t, n.ImprovementSuggestions)
	assert.Empty(t, n.ImprovementSuggestions)
	assert.NotNil(t, n.Strengths)
	assert.NotNil(t, n.Weaknesses)

	// 序列化后不能出现 null
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
}

func TestNormalize_ZeroValueRaw(t *testing.T) {
	n := Normalize(types.RawFeedback{})
	assert.Equal(t, 7.0, n.Education.Rating)
	assert.Equal(t, 0.0, n.Skills.Rating)
	assert.Equal(t, []string{}, n.Strengths)
}

func TestNormalize_ATSIssuesWithoutRating(t *testing.T) {
	n := Normalize(parseRaw(t, `{"overall_rating": 8, "ats_compatibility": {"issues": ["a", "b"]}}`))

	assert.Equal(t, 8.0, n.OverallRating)
	assert.Equal(t, types.CategoryFeedback{Rating: 0, Comments: "a\nb"}, n.ATSCompatibility)
	assert.Equal(t, "Your resume scored 8/10 based on multiple evaluation categories.", n.Summary)
}

func TestNormalize_ATSRatingFallsBackToScore(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"rating wins", `{"ats_compatibility": {"rating": 6, "score": 9}}`, 6},
		{"score used", `{"ats_compatibility": {"score": 9}}`, 9},
		{"zero rating is kept", `{"ats_compatibility": {"rating": 0, "score": 9}}`, 0},
		{"nothing", `{"ats_compatibility": {}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(parseRaw(t, tt.in)).ATSCompatibility.Rating)
		})
	}
}

func TestNormalize_SkillsRating(t *testing.T) {
	n := Normalize(parseRaw(t, `{"keyword_optimization": {"missing_keywords": ["x", "y", "z"]}}`))
	assert.Equal(t, 7.0, n.Skills.Rating)

	twelve := `{"keyword_optimization": {"missing_keywords": ["1","2","3","4","5","6","7","8","9","10","11","12"], "suggested_additions": ["go", "k8s"]}}`
	n = Normalize(parseRaw(t, twelve))
	assert.Equal(t, -2.0, n.Skills.Rating)
	assert.Equal(t, "go\nk8s", n.Skills.Comments)

	n = Normalize(parseRaw(t, `{"keyword_optimization": {"missing_keywords": []}}`))
	assert.Equal(t, 0.0, n.Skills.Rating)
}

func TestNormalize_FormattingSuggestions(t *testing.T) {
	n := Normalize(parseRaw(t, `{"formatting_suggestions": []}`))
	assert.Equal(t, 0.0, n.FormatAndDesign.Rating)
	assert.Equal(t, "", n.FormatAndDesign.Comments)

	n = Normalize(parseRaw(t, `{"formatting_suggestions": ["use bullets", "one page"]}`))
	assert.Equal(t, 7.0, n.FormatAndDesign.Rating)
	assert.Equal(t, "use bullets\none page", n.FormatAndDesign.Comments)
}

func TestNormalize_JobMatchReuse(t *testing.T) {
	n := Normalize(parseRaw(t, `{
		"job_match": {"rating": 6.5, "alignment": ["backend", "go"]},
		"strengths": ["s1"],
		"weaknesses": ["w1", "w2"],
		"gaps": ["no cloud"]
	}`))

	assert.Equal(t, types.CategoryFeedback{Rating: 6.5, Comments: "backend\ngo"}, n.AlignmentWithJob)
	assert.Equal(t, types.CategoryFeedback{Rating: 6.5, Comments: "s1\nw1\nw2"}, n.ContentQuality)
	assert.Equal(t, types.CategoryFeedback{Rating: 6.5, Comments: "no cloud"}, n.WorkExperience)
	assert.Equal(t, []string{"s1"}, n.Strengths)
	assert.Equal(t, []string{"w1", "w2"}, n.Weaknesses)
}

func TestNormalize_Recommendations(t *testing.T) {
	n := Normalize(parseRaw(t, `{"overall_rating": 7.5, "recommendations": ["r1", "r2"]}`))

	assert.Equal(t, []string{"r1", "r2"}, n.ImprovementSuggestions)
	assert.Equal(t, "r1\nr2", n.FinalRecommendations)
	assert.Equal(t, "Your resume scored 7.5/10 based on multiple evaluation categories.", n.Summary)
}

func TestNormalize_WrongTypesTreatedAsAbsent(t *testing.T) {
	n := Normalize(parseRaw(t, `{
		"overall_rating": "nine",
		"ats_compatibility": "bad",
		"job_match": {"rating": "high", "alignment": ["ok", 3]},
		"strengths": "not a list",
		"recommendations": [1, 2]
	}`))

	assert.Equal(t, 0.0, n.OverallRating)
	assert.Equal(t, types.CategoryFeedback{}, n.ATSCompatibility)
	assert.Equal(t, types.CategoryFeedback{Rating: 0, Comments: "ok"}, n.AlignmentWithJob)
	assert.Equal(t, []string{}, n.Strengths)
	assert.Equal(t, []string{}, n.ImprovementSuggestions)
	assert.Equal(t, "", n.FinalRecommendations)
}

func TestNormalize_RatingsInRange(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"overall_rating": 10, "ats_compatibility": {"score": 10}, "job_match": {"rating": 10}, "formatting_suggestions": ["x"]}`,
		`{"overall_rating": 3, "keyword_optimization": {"missing_keywords": ["a"]}}`,
		`{"job_match": {}, "keyword_optimization": {}}`,
	}
	for _, in := range inputs {
		n := Normalize(parseRaw(t, in))
		for key, c := range allCategories(n) {
			assert.GreaterOrEqual(t, c.Rating, 0.0, "%s in %s", key, in)
			assert.LessOrEqual(t, c.Rating, 10.0, "%s in %s", key, in)
		}
	}
}

func TestNormalize_DoesNotAliasInput(t *testing.T) {
	raw := types.RawFeedback{Strengths: []string{"a"}}
	n := Normalize(raw)
	n.Strengths[0] = "changed"
	assert.Equal(t, "a", raw.Strengths[0])
}
