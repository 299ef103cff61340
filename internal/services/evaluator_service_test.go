// internal/services/evaluator_service_test.go
package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
)

func healthyToonplay(panels int) *models.Candidate {
	c := &models.Candidate{
		ID:           "cand-1",
		ArtifactType: models.ArtifactToonplay,
		Title:        "雨夜重逢",
		CreatedAt:    time.Now(),
	}
	for i := 0; i < panels; i++ {
		c.Panels = append(c.Panels, models.Panel{
			Index:       i + 1,
			ShotType:    models.ShotMedium,
			CameraAngle: models.AngleEyeLevel,
			Description: fmt.Sprintf("画面 %d", i+1),
			Dialogues: []models.DialogueLine{
				{Character: "林远", Text: fmt.Sprintf("台词 %d", i+1)},
			},
		})
	}
	return c
}

func rubricJSON(scores map[string]float64, suggestions ...string) string {
	out := `{"category_scores": {`
	first := true
	for name, score := range scores {
		if !first {
			out += ","
		}
		first = false
		out += fmt.Sprintf(`"%s": {"score": %g, "reasoning": "ok", "weaknesses": ["%s偏弱"]}`, name, score, name)
	}
	out += `}, "improvement_suggestions": [`
	for i, s := range suggestions {
		if i > 0 {
			out += ","
		}
		out += `"` + s + `"`
	}
	out += `]}`
	return out
}

func toonplayRubricJSON(fidelity, visual, pacing, formatting float64) string {
	return rubricJSON(map[string]float64{
		models.CategoryNarrativeFidelity:    fidelity,
		models.CategoryVisualTransformation: visual,
		models.CategoryPacing:               pacing,
		models.CategoryFormatting:           formatting,
	}, "收紧第二格的节奏")
}

func TestEvaluateWeightedOverall(t *testing.T) {
	// 4*0.3 + 4*0.3 + 3*0.2 + 5*0.2 = 4.0
	mock := newMockCompleter(toonplayRubricJSON(4, 4, 3, 5))
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), healthyToonplay(4), nil, 3.5, models.ModeStandard)
	require.NoError(t, err)

	assert.InDelta(t, 4.0, result.OverallScore, 0.01)
	assert.True(t, result.Pass)
	assert.Equal(t, 1, mock.callCount())
	assert.Len(t, result.CategoryScores, 4)
	assert.NotEmpty(t, result.ImprovementSuggestions)
}

func TestEvaluateBelowThresholdIsNotAnError(t *testing.T) {
	mock := newMockCompleter(toonplayRubricJSON(2, 2, 2, 2))
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), healthyToonplay(4), nil, 3.5, models.ModeStandard)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.InDelta(t, 2.0, result.OverallScore, 0.01)
}

func TestEvaluateDeadUnitFailsDespiteHighScores(t *testing.T) {
	candidate := healthyToonplay(3)
	// 清空一格，既无台词也无描述与旁白
	candidate.Panels = append(candidate.Panels, models.Panel{
		Index:    4,
		ShotType: models.ShotWide,
	})

	mock := newMockCompleter(toonplayRubricJSON(5, 5, 5, 5))
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), candidate, nil, 3.5, models.ModeStandard)
	require.NoError(t, err)

	assert.False(t, result.Pass, "死格必须一票否决")
	assert.InDelta(t, 5.0, result.OverallScore, 0.01)
	assert.Equal(t, 1, result.Metrics.DeadUnitCount)
}

func TestEvaluateNarrationCeiling(t *testing.T) {
	candidate := healthyToonplay(2)
	// 3 格纯旁白，总计 5 格，60% 超过 40% 上限
	for i := 0; i < 3; i++ {
		candidate.Panels = append(candidate.Panels, models.Panel{
			Index:     len(candidate.Panels) + 1,
			ShotType:  models.ShotEstablishing,
			Narration: "旁白说明",
		})
	}

	mock := newMockCompleter(toonplayRubricJSON(4, 4, 4, 4))
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), candidate, nil, 3.5, models.ModeStandard)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.InDelta(t, 0.6, result.Metrics.NarrationPercentage, 0.01)
}

func TestEvaluateStructurallyInvalidSkipsOracle(t *testing.T) {
	candidate := healthyToonplay(2)
	candidate.Panels[1].ShotType = "drone_shot"

	mock := newMockCompleter(toonplayRubricJSON(5, 5, 5, 5))
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), candidate, nil, 3.5, models.ModeStandard)
	require.Error(t, err)

	assert.Nil(t, result)
	assert.True(t, apperrors.IsValidationError(err), "结构非法是评分错误而不是低分")
	assert.False(t, apperrors.IsInfrastructureFailure(err))
	assert.Contains(t, err.Error(), "drone_shot")
	assert.Zero(t, mock.callCount(), "结构非法不应调用评分预言机")
}

func TestEvaluateZeroUnitsIsValidationError(t *testing.T) {
	candidate := &models.Candidate{ArtifactType: models.ArtifactToonplay, Title: "空"}

	mock := newMockCompleter(toonplayRubricJSON(5, 5, 5, 5))
	evaluator := NewEvaluatorService(mock, 0.4)

	_, err := evaluator.Evaluate(context.Background(), candidate, nil, 3.5, models.ModeStandard)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Zero(t, mock.callCount())
}

func TestEvaluateMalformedOutputIsEvaluationFailure(t *testing.T) {
	mock := newMockCompleter("这不是JSON")
	evaluator := NewEvaluatorService(mock, 0.4)

	_, err := evaluator.Evaluate(context.Background(), healthyToonplay(3), nil, 3.5, models.ModeStandard)
	require.Error(t, err)
	assert.True(t, apperrors.IsEvaluationFailure(err))
	assert.True(t, apperrors.IsInfrastructureFailure(err))
}

func TestEvaluateMissingCategoryIsEvaluationFailure(t *testing.T) {
	incomplete := rubricJSON(map[string]float64{
		models.CategoryNarrativeFidelity: 4,
		models.CategoryPacing:            4,
	})
	mock := newMockCompleter(incomplete)
	evaluator := NewEvaluatorService(mock, 0.4)

	_, err := evaluator.Evaluate(context.Background(), healthyToonplay(3), nil, 3.5, models.ModeStandard)
	require.Error(t, err)
	assert.True(t, apperrors.IsEvaluationFailure(err))
}

func TestEvaluateClampsOutOfScaleScores(t *testing.T) {
	mock := newMockCompleter(toonplayRubricJSON(9, 9, 9, -3))
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), healthyToonplay(3), nil, 3.5, models.ModeStandard)
	require.NoError(t, err)

	// 5*0.3 + 5*0.3 + 5*0.2 + 1*0.2 = 4.2
	assert.InDelta(t, 4.2, result.OverallScore, 0.01)
}

func TestEvaluateProseScene(t *testing.T) {
	candidate := &models.Candidate{
		ID:           "cand-prose",
		ArtifactType: models.ArtifactProseScene,
		Paragraphs: []models.Paragraph{
			{Index: 1, Text: "雨声敲在窗沿上。"},
			{Index: 2, Text: "“你回来了。”她说。"},
		},
		CreatedAt: time.Now(),
	}

	proseJSON := rubricJSON(map[string]float64{
		models.CategoryPlot:       3,
		models.CategoryCharacter:  3,
		models.CategoryPacing:     3,
		models.CategoryProse:      3,
		models.CategoryWorldBuild: 3,
	})
	mock := newMockCompleter(proseJSON)
	evaluator := NewEvaluatorService(mock, 0.4)

	result, err := evaluator.Evaluate(context.Background(), candidate, nil, 2.8, models.ModeQuick)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, result.OverallScore, 0.01)
	assert.True(t, result.Pass)
	assert.Equal(t, 1, result.Metrics.UnitTypeDistribution["dialogue"])
	assert.Equal(t, 1, result.Metrics.UnitTypeDistribution["narrative"])
}

func TestDeriveMetricsDistribution(t *testing.T) {
	candidate := healthyToonplay(2) // medium → conversation
	candidate.Panels = append(candidate.Panels, models.Panel{
		Index:       3,
		ShotType:    models.ShotCloseUp,
		Description: "特写",
	})

	m := deriveMetrics(candidate)
	assert.Equal(t, 2, m.UnitTypeDistribution["conversation"])
	assert.Equal(t, 1, m.UnitTypeDistribution["emotion"])
	assert.Zero(t, m.DeadUnitCount)
}
