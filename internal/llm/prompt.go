package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt 固定的系统角色
const SystemPrompt = "You are an expert in ATS (Applicant Tracking System) and resume analysis. " +
	"You answer with a single JSON object and nothing else."

// responseFormat 模型需要返回的 JSON 结构
const responseFormat = `{
  "overall_rating": number,            // 0-10
  "ats_compatibility": {
    "rating": number,                  // 0-10
    "issues": string[]
  },
  "job_match": {
    "rating": number,                  // 0-10
    "alignment": string[]
  },
  "formatting_suggestions": string[],
  "keyword_optimization": {
    "missing_keywords": string[],
    "suggested_additions": string[]
  },
  "strengths": string[],
  "weaknesses": string[],
  "recommendations": string[],
  "gaps": string[]
}`

// Instructions 生成分析指令，包含职位信息和返回格式
func Instructions(jobTitle, jobDescription string) string {
	var b strings.Builder
	b.WriteString("You are an expert in ATS (Applicant Tracking System) and resume analysis.\n")
	b.WriteString("Please analyze and rate this resume and suggest how to improve it.\n")
	b.WriteString("The rating can be low if the resume is bad.\n")
	b.WriteString("Be thorough and detailed. Don't be afraid to point out any mistakes or areas for improvement.\n")
	b.WriteString("If there is a lot to improve, don't hesitate to give low scores. This is to help the user to improve their resume.\n")
	b.WriteString("If available, use the job description for the job user is applying to, to give more detailed feedback.\n")
	fmt.Fprintf(&b, "The job title is: %s\n", strings.TrimSpace(jobTitle))
	fmt.Fprintf(&b, "The job description is: %s\n", strings.TrimSpace(jobDescription))
	b.WriteString("Provide the feedback using the following format:\n")
	b.WriteString(responseFormat)
	b.WriteString("\nReturn the analysis as a JSON object, without any other text and without the backticks.\n")
	b.WriteString("Do not include any other text or comments.")
	return b.String()
}

// CleanJSON 去掉模型常见的 ```json 代码块包裹
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)

	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")

	return strings.TrimSpace(clean)
}
