// internal/models/evaluation.go
package models

import (
	"math"
	"time"
)

// 评分量表常量
const (
	ToonplayScoreMin = 1.0
	ToonplayScoreMax = 5.0
	ProseScoreMin    = 0.0
	ProseScoreMax    = 4.0

	// WeightSumTolerance 权重求和的舍入容差
	WeightSumTolerance = 0.01
)

// toonplay 评分类别
const (
	CategoryNarrativeFidelity    = "narrative_fidelity"
	CategoryVisualTransformation = "visual_transformation"
	CategoryPacing               = "pacing"
	CategoryFormatting           = "formatting"
)

// 散文评分类别
const (
	CategoryPlot       = "plot"
	CategoryCharacter  = "character"
	CategoryProse      = "prose"
	CategoryWorldBuild = "world_building"
)

var toonplayWeights = map[string]float64{
	CategoryNarrativeFidelity:    0.30,
	CategoryVisualTransformation: 0.30,
	CategoryPacing:               0.20,
	CategoryFormatting:           0.20,
}

var proseWeights = map[string]float64{
	CategoryPlot:       0.25,
	CategoryCharacter:  0.25,
	CategoryPacing:     0.167,
	CategoryProse:      0.167,
	CategoryWorldBuild: 0.166,
}

// CategoryWeights 返回指定产物类型的固定评分权重（副本）
func CategoryWeights(t ArtifactType) map[string]float64 {
	var src map[string]float64
	switch t {
	case ArtifactToonplay:
		src = toonplayWeights
	case ArtifactProseScene:
		src = proseWeights
	default:
		return nil
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ScoreScale 返回指定产物类型的评分上下界
func ScoreScale(t ArtifactType) (min, max float64) {
	if t == ArtifactProseScene {
		return ProseScoreMin, ProseScoreMax
	}
	return ToonplayScoreMin, ToonplayScoreMax
}

// ValidateWeights 校验权重之和是否在容差内等于 1.0
func ValidateWeights(weights map[string]float64) bool {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	return math.Abs(sum-1.0) <= WeightSumTolerance
}

// CategoryScore 单个评分类别的打分结果
type CategoryScore struct {
	Score      float64  `json:"score"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// DerivedMetrics 不依赖评分预言机、由候选结构直接推导的指标
type DerivedMetrics struct {
	NarrationPercentage  float64        `json:"narration_percentage"`
	DeadUnitCount        int            `json:"dead_unit_count"`
	UnitTypeDistribution map[string]int `json:"unit_type_distribution,omitempty"`
}

// EvaluationResult 一次完整评估的结果（产生后不可变）
type EvaluationResult struct {
	CategoryScores         map[string]CategoryScore `json:"category_scores"`
	OverallScore           float64                  `json:"overall_score"`
	Pass                   bool                     `json:"pass"`
	ImprovementSuggestions []string                 `json:"improvement_suggestions,omitempty"`
	Metrics                DerivedMetrics           `json:"metrics"`
	EvaluatedAt            time.Time                `json:"evaluated_at"`
}

// WeightedOverall 按固定权重重新计算总分（用于校验持久化数据）
func WeightedOverall(scores map[string]CategoryScore, weights map[string]float64) float64 {
	total := 0.0
	for name, w := range weights {
		if cs, ok := scores[name]; ok {
			total += cs.Score * w
		}
	}
	return total
}

// Weaknesses 汇总所有类别的弱点列表，供下一轮生成反馈使用
func (e *EvaluationResult) Weaknesses() []string {
	var out []string
	for _, name := range sortedCategoryNames(e.CategoryScores) {
		out = append(out, e.CategoryScores[name].Weaknesses...)
	}
	return out
}

// IterationRecord 改进循环中一次迭代的记录
type IterationRecord struct {
	Index        int       `json:"index"`
	OverallScore float64   `json:"overall_score"`
	Pass         bool      `json:"pass"`
	Timestamp    time.Time `json:"timestamp"`
}

// TerminationReason 循环终止原因
type TerminationReason string

const (
	TerminationPassed    TerminationReason = "passed"
	TerminationExhausted TerminationReason = "exhausted"
	TerminationAborted   TerminationReason = "aborted"
)

// LoopResult 改进循环的最终结果，也是跨越核心边界的唯一产出
type LoopResult struct {
	FinalCandidate    *Candidate        `json:"final_candidate"`
	FinalEvaluation   *EvaluationResult `json:"final_evaluation"`
	IterationCount    int               `json:"iteration_count"`
	History           []IterationRecord `json:"history"`
	TerminationReason TerminationReason `json:"termination_reason"`
}

// Feedback 上一轮评估提炼出的、指导下一轮生成的反馈
type Feedback struct {
	Suggestions []string `json:"suggestions,omitempty"`
	Weaknesses  []string `json:"weaknesses,omitempty"`
}

// FeedbackFrom 从评估结果构造反馈；结果为 nil 时返回 nil（首轮）
func FeedbackFrom(eval *EvaluationResult) *Feedback {
	if eval == nil {
		return nil
	}
	return &Feedback{
		Suggestions: eval.ImprovementSuggestions,
		Weaknesses:  eval.Weaknesses(),
	}
}

func sortedCategoryNames(scores map[string]CategoryScore) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	// 保持稳定输出顺序
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
