// internal/services/parse.go
package services

import (
	"strings"

	"github.com/tidwall/gjson"
)

func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	// Common LLM wrappers: ```json ... ``` or ``` ... ```
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = strings.TrimSpace(s[idx+1:])
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = strings.TrimSpace(s[:end])
		}
	}
	return strings.TrimSpace(s)
}

func extractJSONObjectText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

// extractJSONPayload 从原始LLM输出中提取可解析的JSON对象文本。
// 容忍代码围栏与前后缀噪声文本（常见于模型输出）。
func extractJSONPayload(raw string) (string, bool) {
	clean := stripCodeFences(raw)
	if clean == "" {
		return "", false
	}
	if gjson.Valid(clean) && strings.HasPrefix(clean, "{") {
		return clean, true
	}
	if obj := extractJSONObjectText(clean); obj != "" && gjson.Valid(obj) {
		return obj, true
	}
	return "", false
}

// stringSlice 将 gjson 数组结果转换为字符串切片
func stringSlice(result gjson.Result) []string {
	if !result.Exists() || !result.IsArray() {
		return nil
	}
	var out []string
	for _, item := range result.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
