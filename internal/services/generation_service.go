// internal/services/generation_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
)

// GenerationService 候选生成器：根据规格与叙事上下文调用LLM产出候选。
// 上一轮评估的反馈（若有）会注入提示词，使重试有方向而非盲目重掷。
type GenerationService struct {
	LLM ChatCompleter
}

// NewGenerationService 创建候选生成服务
func NewGenerationService(llm ChatCompleter) *GenerationService {
	return &GenerationService{LLM: llm}
}

// Generate 生成一个候选产物。feedback 在首轮为 nil。
func (s *GenerationService) Generate(ctx context.Context, spec *models.GenerationSpec, nctx *models.NarrativeContext, feedback *models.Feedback) (*models.Candidate, error) {
	if s.LLM == nil || !s.LLM.IsReady() {
		return nil, apperrors.NewGenerationFailure("LLM service unavailable", ErrLLMNotReady)
	}

	var systemPrompt, userPrompt string
	switch spec.ArtifactType {
	case models.ArtifactToonplay:
		systemPrompt = toonplaySystemPrompt(spec.Options.Language)
		userPrompt = buildToonplayPrompt(spec, nctx, feedback)
	case models.ArtifactProseScene:
		systemPrompt = proseSystemPrompt(spec.Options.Language)
		userPrompt = buildProsePrompt(spec, nctx, feedback)
	default:
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("unknown artifact type: %q", spec.ArtifactType), nil)
	}

	resp, err := s.LLM.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:        s.LLM.GetDefaultModel(),
		SystemPrompt: systemPrompt,
		Prompt:       userPrompt,
		Temperature:  0.7,
		MaxTokens:    estimateGenerationMaxTokens(spec),
	})
	if err != nil {
		return nil, apperrors.NewGenerationFailure("candidate generation call failed", err)
	}

	candidate, err := parseCandidate(spec.ArtifactType, resp.Text)
	if err != nil {
		return nil, apperrors.NewGenerationFailure("malformed candidate output", err)
	}

	return candidate, nil
}

func estimateGenerationMaxTokens(spec *models.GenerationSpec) int {
	units := spec.Options.UnitCountTarget
	if units <= 0 {
		units = 12
	}
	// 每个单元预留约 220 token，外加固定开销
	tokens := units*220 + 600
	if tokens > 8000 {
		tokens = 8000
	}
	return tokens
}

func toonplaySystemPrompt(language string) string {
	if language == "" {
		language = "the story's original language"
	}
	return "你是资深的漫画分镜脚本作者。请将小说场景改编为逐格漫画脚本（toonplay）。\n" +
		"You are an experienced comic-script writer. Adapt the given narrative scene into a panel-by-panel toonplay.\n" +
		"Write dialogue and narration in " + language + ". Always answer with a single JSON object and nothing else."
}

func proseSystemPrompt(language string) string {
	if language == "" {
		language = "the story's original language"
	}
	return "你是资深的小说作者。请根据提供的上下文写出完整的场景正文。\n" +
		"You are an experienced fiction writer. Write the full scene prose from the provided context.\n" +
		"Write in " + language + ". Always answer with a single JSON object and nothing else."
}

func buildContextBlock(nctx *models.NarrativeContext) string {
	var b strings.Builder

	b.WriteString("[story]\n")
	b.WriteString("title: " + nctx.StoryTitle + "\n")
	if nctx.Synopsis != "" {
		b.WriteString("synopsis: " + models.TruncateSummary(nctx.Synopsis) + "\n")
	}

	if nctx.SceneText != "" {
		b.WriteString("\n[scene_text]\n" + nctx.SceneText + "\n")
	}

	if len(nctx.PriorSceneSummaries) > 0 {
		b.WriteString("\n[prior_scenes]\n")
		for _, sum := range nctx.PriorSceneSummaries {
			b.WriteString(fmt.Sprintf("- %s: %s\n", sum.Title, models.TruncateSummary(sum.Summary)))
		}
	}

	if len(nctx.Characters) > 0 {
		b.WriteString("\n[characters]\n")
		for _, ch := range nctx.Characters {
			line := "- " + ch.Name
			if ch.Role != "" {
				line += " (" + ch.Role + ")"
			}
			if ch.SpeechStyle != "" {
				line += " speech: " + ch.SpeechStyle
			}
			if ch.Description != "" {
				line += " | " + ch.Description
			}
			b.WriteString(line + "\n")
		}
	}

	if len(nctx.Settings) > 0 {
		b.WriteString("\n[settings]\n")
		for _, st := range nctx.Settings {
			line := "- " + st.Name
			if st.Atmosphere != "" {
				line += " (" + st.Atmosphere + ")"
			}
			if st.Description != "" {
				line += " | " + st.Description
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func buildFeedbackBlock(feedback *models.Feedback) string {
	if feedback == nil || (len(feedback.Suggestions) == 0 && len(feedback.Weaknesses) == 0) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n[previous_attempt_feedback]\n")
	b.WriteString("上一稿未达质量标准，请针对以下问题修订（不要全盘推翻好的部分）。\n")
	b.WriteString("The previous draft failed the quality bar. Fix the issues below; keep what already works.\n")
	if len(feedback.Weaknesses) > 0 {
		b.WriteString("weaknesses:\n")
		for _, w := range feedback.Weaknesses {
			b.WriteString("- " + w + "\n")
		}
	}
	if len(feedback.Suggestions) > 0 {
		b.WriteString("suggestions:\n")
		for _, s := range feedback.Suggestions {
			b.WriteString("- " + s + "\n")
		}
	}
	return b.String()
}

func buildToonplayPrompt(spec *models.GenerationSpec, nctx *models.NarrativeContext, feedback *models.Feedback) string {
	target := spec.Options.UnitCountTarget
	if target <= 0 {
		target = 12
	}

	var b strings.Builder
	b.WriteString(buildContextBlock(nctx))
	b.WriteString(buildFeedbackBlock(feedback))

	b.WriteString(fmt.Sprintf(
		"\n请将上面的场景改编为约 %d 格的漫画脚本。\n"+
			"Adapt the scene above into roughly %d panels.\n\n"+
			"输出要求 / Output requirements:\n"+
			"- 只输出一个JSON对象 / Output ONLY one JSON object\n"+
			"- shot_type 取值: establishing, wide, medium, close_up, extreme_close_up, over_shoulder, pov, insert\n"+
			"- camera_angle 取值: eye_level, high, low, dutch, birds_eye, worms_eye\n"+
			"- 每一格必须有画面描述、台词或旁白；禁止空格子 / Every panel needs description, dialogue or narration; no empty panels\n"+
			"- 旁白只在必要时使用，多用画面与台词 / Prefer visuals and dialogue over narration\n",
		target, target))

	if len(spec.Options.StyleHints) > 0 {
		b.WriteString("- 风格提示 / style hints: " + strings.Join(spec.Options.StyleHints, "; ") + "\n")
	}

	b.WriteString("\nJSON结构 / JSON shape:\n" +
		`{"title": "...", "panels": [{"index": 1, "shot_type": "wide", "camera_angle": "eye_level", "description": "...", "narration": "...", "dialogues": [{"character": "...", "text": "...", "tone": "..."}], "sfx": [{"text": "...", "emphasis": "normal"}], "characters": ["..."], "mood": "..."}]}` + "\n")

	return b.String()
}

func buildProsePrompt(spec *models.GenerationSpec, nctx *models.NarrativeContext, feedback *models.Feedback) string {
	target := spec.Options.UnitCountTarget
	if target <= 0 {
		target = 8
	}

	var b strings.Builder
	b.WriteString(buildContextBlock(nctx))
	b.WriteString(buildFeedbackBlock(feedback))

	b.WriteString(fmt.Sprintf(
		"\n请根据上下文写出该场景的完整正文，约 %d 个段落。\n"+
			"Write the full scene prose, roughly %d paragraphs.\n\n"+
			"输出要求 / Output requirements:\n"+
			"- 只输出一个JSON对象 / Output ONLY one JSON object\n"+
			"- 段落保持原文顺序连贯，不要总结，不要写结局之外的内容\n"+
			"- 对白与叙述穿插，避免整段纯说明文字 / Interleave dialogue and narration; avoid pure exposition\n",
		target, target))

	if len(spec.Options.StyleHints) > 0 {
		b.WriteString("- 风格提示 / style hints: " + strings.Join(spec.Options.StyleHints, "; ") + "\n")
	}

	b.WriteString("\nJSON结构 / JSON shape:\n" +
		`{"title": "...", "paragraphs": [{"index": 1, "text": "..."}]}` + "\n")

	return b.String()
}

// candidatePayload 是LLM输出的反序列化目标
type candidatePayload struct {
	Title      string             `json:"title"`
	Panels     []models.Panel     `json:"panels"`
	Paragraphs []models.Paragraph `json:"paragraphs"`
}

// parseCandidate 将LLM原始输出解析并归一化为候选产物
func parseCandidate(artifactType models.ArtifactType, raw string) (*models.Candidate, error) {
	payload, ok := extractJSONPayload(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in output")
	}

	var parsed candidatePayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}

	candidate := &models.Candidate{
		ID:           uuid.NewString(),
		ArtifactType: artifactType,
		Title:        strings.TrimSpace(parsed.Title),
		CreatedAt:    time.Now(),
	}

	switch artifactType {
	case models.ArtifactToonplay:
		if len(parsed.Panels) == 0 {
			return nil, fmt.Errorf("candidate has no panels")
		}
		candidate.Panels = normalizePanels(parsed.Panels)
		// 归一化之后仍不在封闭集合内的字段属于模型输出畸形，按生成失败处理
		for _, p := range candidate.Panels {
			if !p.ShotType.IsValid() {
				return nil, fmt.Errorf("panel %d: unknown shot type %q", p.Index, p.ShotType)
			}
			if !p.CameraAngle.IsValid() {
				return nil, fmt.Errorf("panel %d: unknown camera angle %q", p.Index, p.CameraAngle)
			}
		}
	case models.ArtifactProseScene:
		if len(parsed.Paragraphs) == 0 {
			return nil, fmt.Errorf("candidate has no paragraphs")
		}
		candidate.Paragraphs = normalizeParagraphs(parsed.Paragraphs)
	}

	return candidate, nil
}

// shotTypeAliases 常见的模型输出别名
var shotTypeAliases = map[string]models.ShotType{
	"closeup":           models.ShotCloseUp,
	"close-up":          models.ShotCloseUp,
	"extreme closeup":   models.ShotExtremeCloseUp,
	"extreme_closeup":   models.ShotExtremeCloseUp,
	"over the shoulder": models.ShotOverTheShoulder,
	"over_the_shoulder": models.ShotOverTheShoulder,
	"full":              models.ShotWide,
	"long":              models.ShotWide,
}

func normalizePanels(panels []models.Panel) []models.Panel {
	out := make([]models.Panel, 0, len(panels))
	for i, p := range panels {
		p.Index = i + 1
		p.Description = strings.TrimSpace(p.Description)
		p.Narration = strings.TrimSpace(p.Narration)

		raw := strings.ToLower(strings.TrimSpace(string(p.ShotType)))
		if alias, ok := shotTypeAliases[raw]; ok {
			p.ShotType = alias
		} else {
			p.ShotType = models.ShotType(raw)
		}

		p.CameraAngle = models.CameraAngle(strings.ToLower(strings.TrimSpace(string(p.CameraAngle))))

		kept := p.Dialogues[:0]
		for _, d := range p.Dialogues {
			d.Text = strings.TrimSpace(d.Text)
			if d.Text != "" {
				kept = append(kept, d)
			}
		}
		p.Dialogues = kept

		out = append(out, p)
	}
	return out
}

func normalizeParagraphs(paragraphs []models.Paragraph) []models.Paragraph {
	out := make([]models.Paragraph, 0, len(paragraphs))
	for i, pg := range paragraphs {
		pg.Index = i + 1
		pg.Text = strings.TrimSpace(pg.Text)
		out = append(out, pg)
	}
	return out
}
