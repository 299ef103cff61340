// internal/services/evaluator_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
)

// EvaluatorService 评分评估器：对候选产物按固定权重量表打分。
// 权重与量表属于代码常量，评分预言机（LLM）只负责各类别的裁判，
// 加权汇总、派生指标与硬约束判定全部在本地完成，保证可复现。
type EvaluatorService struct {
	LLM ChatCompleter

	// NarrationCeiling 纯旁白面板占比上限，超过即硬约束失败（仅 toonplay）
	NarrationCeiling float64
}

// NewEvaluatorService 创建评估服务
func NewEvaluatorService(llm ChatCompleter, narrationCeiling float64) *EvaluatorService {
	if narrationCeiling <= 0 || narrationCeiling > 1 {
		narrationCeiling = 0.4
	}
	return &EvaluatorService{LLM: llm, NarrationCeiling: narrationCeiling}
}

// Evaluate 对候选产物做一次完整评估。
// 质量不达标不是错误：只有评估本身无法完成时才返回 error。
func (s *EvaluatorService) Evaluate(ctx context.Context, candidate *models.Candidate, nctx *models.NarrativeContext, threshold float64, mode models.EvalMode) (*models.EvaluationResult, error) {
	if candidate == nil {
		return nil, apperrors.NewValidationError("candidate is nil", nil)
	}

	// 结构非法是评分错误而不是低分，也不消耗预言机调用
	if defects := structuralDefects(candidate); len(defects) > 0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("candidate is structurally invalid: %s", strings.Join(defects, "; ")), nil)
	}

	if s.LLM == nil || !s.LLM.IsReady() {
		return nil, apperrors.NewEvaluationFailure("LLM service unavailable", ErrLLMNotReady)
	}

	weights := models.CategoryWeights(candidate.ArtifactType)
	if !models.ValidateWeights(weights) {
		return nil, apperrors.NewEvaluationFailure(
			fmt.Sprintf("category weights for %s do not sum to 1.0", candidate.ArtifactType), nil)
	}

	metrics := deriveMetrics(candidate)

	resp, err := s.LLM.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:        s.LLM.GetDefaultModel(),
		SystemPrompt: rubricSystemPrompt(candidate.ArtifactType),
		Prompt:       buildRubricPrompt(candidate, nctx, metrics, mode),
		Temperature:  0.2,
		MaxTokens:    rubricMaxTokens(mode),
	})
	if err != nil {
		return nil, apperrors.NewEvaluationFailure("rubric evaluation call failed", err)
	}

	scores, suggestions, err := parseRubricOutput(candidate.ArtifactType, resp.Text, weights)
	if err != nil {
		return nil, apperrors.NewEvaluationFailure("malformed rubric output", err)
	}

	result := &models.EvaluationResult{
		CategoryScores:         scores,
		OverallScore:           models.WeightedOverall(scores, weights),
		ImprovementSuggestions: suggestions,
		Metrics:                metrics,
		EvaluatedAt:            time.Now(),
	}

	// 硬约束一票否决，不管加权总分多高
	constraintFailures := s.hardConstraintFailures(candidate, metrics)
	result.Pass = result.OverallScore >= threshold && len(constraintFailures) == 0
	result.ImprovementSuggestions = append(result.ImprovementSuggestions, constraintFailures...)

	return result, nil
}

// structuralDefects 返回候选结构缺陷列表；为空表示结构合法
func structuralDefects(c *models.Candidate) []string {
	var defects []string

	if c.UnitCount() == 0 {
		return []string{"candidate contains no units"}
	}

	switch c.ArtifactType {
	case models.ArtifactToonplay:
		for _, p := range c.Panels {
			if !p.ShotType.IsValid() {
				defects = append(defects, fmt.Sprintf("panel %d: unknown shot type %q", p.Index, p.ShotType))
			}
			if !p.CameraAngle.IsValid() {
				defects = append(defects, fmt.Sprintf("panel %d: unknown camera angle %q", p.Index, p.CameraAngle))
			}
		}
	case models.ArtifactProseScene:
		// 段落没有封闭字段，结构检查只看单元数
	default:
		defects = append(defects, fmt.Sprintf("unknown artifact type %q", c.ArtifactType))
	}

	return defects
}

// deriveMetrics 从候选结构直接推导指标，不经过评分预言机
func deriveMetrics(c *models.Candidate) models.DerivedMetrics {
	m := models.DerivedMetrics{UnitTypeDistribution: map[string]int{}}

	switch c.ArtifactType {
	case models.ArtifactToonplay:
		narration := 0
		for i := range c.Panels {
			p := &c.Panels[i]
			if p.IsDead() {
				m.DeadUnitCount++
			}
			if p.IsPureNarration() {
				narration++
			}
			m.UnitTypeDistribution[p.ShotType.Bucket()]++
		}
		if len(c.Panels) > 0 {
			m.NarrationPercentage = float64(narration) / float64(len(c.Panels))
		}
	case models.ArtifactProseScene:
		dialogue := 0
		for i := range c.Paragraphs {
			pg := &c.Paragraphs[i]
			if pg.IsDead() {
				m.DeadUnitCount++
			}
			if pg.HasDialogue() {
				dialogue++
				m.UnitTypeDistribution["dialogue"]++
			} else {
				m.UnitTypeDistribution["narrative"]++
			}
		}
		if len(c.Paragraphs) > 0 {
			m.NarrationPercentage = 1.0 - float64(dialogue)/float64(len(c.Paragraphs))
		}
	}

	return m
}

// hardConstraintFailures 返回硬约束违规描述；为空表示全部通过
func (s *EvaluatorService) hardConstraintFailures(c *models.Candidate, m models.DerivedMetrics) []string {
	var failures []string

	if m.DeadUnitCount > 0 {
		failures = append(failures, fmt.Sprintf(
			"hard constraint: %d dead unit(s) with no dialogue, description or narration", m.DeadUnitCount))
	}

	if c.ArtifactType == models.ArtifactToonplay && m.NarrationPercentage > s.NarrationCeiling {
		failures = append(failures, fmt.Sprintf(
			"hard constraint: pure-narration panels at %.0f%% exceed the %.0f%% ceiling",
			m.NarrationPercentage*100, s.NarrationCeiling*100))
	}

	return failures
}

func rubricSystemPrompt(t models.ArtifactType) string {
	if t == models.ArtifactProseScene {
		return "你是严格的小说编辑，按给定量表为场景正文打分。0分代表不可发表，4分代表无可挑剔。\n" +
			"You are a strict fiction editor. Score the scene on a 0-4 scale per category. " +
			"Always answer with a single JSON object and nothing else."
	}
	return "你是严格的漫画脚本审稿人，按给定量表为分镜脚本打分。1分代表不合格，5分代表可直接进入作画。\n" +
		"You are a strict comic-script reviewer. Score the toonplay on a 1-5 scale per category. " +
		"Always answer with a single JSON object and nothing else."
}

func rubricMaxTokens(mode models.EvalMode) int {
	switch mode {
	case models.ModeQuick:
		return 1200
	case models.ModeThorough:
		return 4000
	default:
		return 2500
	}
}

func buildRubricPrompt(c *models.Candidate, nctx *models.NarrativeContext, m models.DerivedMetrics, mode models.EvalMode) string {
	var b strings.Builder

	if nctx != nil {
		b.WriteString(buildContextBlock(nctx))
		b.WriteString("\n")
	}

	b.WriteString("[candidate]\n")
	b.WriteString(renderCandidate(c))

	b.WriteString("\n[structural_metrics]\n")
	b.WriteString(fmt.Sprintf("units: %d\n", c.UnitCount()))
	b.WriteString(fmt.Sprintf("narration_percentage: %.2f\n", m.NarrationPercentage))

	b.WriteString("\n请对上面的候选稿按以下类别打分 / Score the candidate on these categories:\n")
	for _, name := range categoryOrder(c.ArtifactType) {
		b.WriteString("- " + name + ": " + categoryGuidance(c.ArtifactType, name) + "\n")
	}

	switch mode {
	case models.ModeQuick:
		b.WriteString("\n快速模式：每个类别一句话说明理由即可。Quick mode: one sentence of reasoning per category.\n")
	case models.ModeThorough:
		b.WriteString("\n深度模式：每个类别给出详细理由、至少两条优点与两条弱点。" +
			"Thorough mode: detailed reasoning, at least two strengths and two weaknesses per category.\n")
	default:
		b.WriteString("\n标准模式：每个类别给出简要理由与具体弱点。Standard mode: brief reasoning and concrete weaknesses per category.\n")
	}

	b.WriteString("\nJSON结构 / JSON shape:\n" +
		`{"category_scores": {"<category>": {"score": 3.5, "reasoning": "...", "strengths": ["..."], "weaknesses": ["..."]}}, "improvement_suggestions": ["..."]}` + "\n")
	b.WriteString("分数允许一位小数。improvement_suggestions 必须具体可执行，供下一稿修订使用。\n")

	return b.String()
}

// renderCandidate 将候选稿渲染为评审用的纯文本
func renderCandidate(c *models.Candidate) string {
	var b strings.Builder
	if c.Title != "" {
		b.WriteString("title: " + c.Title + "\n")
	}

	switch c.ArtifactType {
	case models.ArtifactToonplay:
		for i := range c.Panels {
			p := &c.Panels[i]
			b.WriteString(fmt.Sprintf("panel %d [%s", p.Index, p.ShotType))
			if p.CameraAngle != "" {
				b.WriteString("/" + string(p.CameraAngle))
			}
			b.WriteString("]\n")
			if p.Description != "" {
				b.WriteString("  desc: " + p.Description + "\n")
			}
			if p.Narration != "" {
				b.WriteString("  narration: " + p.Narration + "\n")
			}
			for _, d := range p.Dialogues {
				b.WriteString("  " + d.Character + ": " + d.Text + "\n")
			}
			for _, fx := range p.SFX {
				b.WriteString("  sfx: " + fx.Text + "\n")
			}
		}
	case models.ArtifactProseScene:
		for i := range c.Paragraphs {
			b.WriteString(c.Paragraphs[i].Text + "\n\n")
		}
	}

	return b.String()
}

func categoryOrder(t models.ArtifactType) []string {
	if t == models.ArtifactProseScene {
		return []string{
			models.CategoryPlot,
			models.CategoryCharacter,
			models.CategoryPacing,
			models.CategoryProse,
			models.CategoryWorldBuild,
		}
	}
	return []string{
		models.CategoryNarrativeFidelity,
		models.CategoryVisualTransformation,
		models.CategoryPacing,
		models.CategoryFormatting,
	}
}

func categoryGuidance(t models.ArtifactType, name string) string {
	if t == models.ArtifactProseScene {
		switch name {
		case models.CategoryPlot:
			return "情节推进与因果是否成立 / plot progression and causality"
		case models.CategoryCharacter:
			return "人物是否立得住、言行是否一致 / character voice and consistency"
		case models.CategoryPacing:
			return "节奏张弛是否得当 / rhythm of tension and release"
		case models.CategoryProse:
			return "文字本身的质量 / sentence-level craft"
		case models.CategoryWorldBuild:
			return "世界观细节是否自然融入 / world detail woven into the scene"
		}
	}
	switch name {
	case models.CategoryNarrativeFidelity:
		return "是否忠实传达原文的情节与情感 / faithfulness to the source scene"
	case models.CategoryVisualTransformation:
		return "叙述是否被转化为画面而非照搬文字 / narration turned into visuals, not copied text"
	case models.CategoryPacing:
		return "分格节奏与信息密度 / panel rhythm and information density"
	case models.CategoryFormatting:
		return "镜头语言与脚本格式是否规范 / correct shot grammar and script formatting"
	}
	return ""
}

// parseRubricOutput 解析评分预言机的JSON输出。
// 缺失任何一个权重类别即视为输出损坏。
func parseRubricOutput(t models.ArtifactType, raw string, weights map[string]float64) (map[string]models.CategoryScore, []string, error) {
	payload, ok := extractJSONPayload(raw)
	if !ok {
		return nil, nil, fmt.Errorf("no JSON object found in output")
	}

	min, max := models.ScoreScale(t)
	root := gjson.Parse(payload)
	scoresNode := root.Get("category_scores")
	if !scoresNode.Exists() {
		return nil, nil, fmt.Errorf("missing category_scores")
	}

	scores := make(map[string]models.CategoryScore, len(weights))
	for name := range weights {
		node := scoresNode.Get(name)
		if !node.Exists() {
			return nil, nil, fmt.Errorf("missing score for category %q", name)
		}
		scores[name] = models.CategoryScore{
			Score:      clamp(node.Get("score").Float(), min, max),
			Reasoning:  node.Get("reasoning").String(),
			Strengths:  stringSlice(node.Get("strengths")),
			Weaknesses: stringSlice(node.Get("weaknesses")),
		}
	}

	return scores, stringSlice(root.Get("improvement_suggestions")), nil
}
