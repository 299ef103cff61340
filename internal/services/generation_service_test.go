// internal/services/generation_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
)

const toonplayOutput = "```json\n" + `{
  "title": "雨夜重逢",
  "panels": [
    {"index": 7, "shot_type": "Establishing", "camera_angle": "high", "description": "雨夜的旧书店门口"},
    {"index": 9, "shot_type": "closeup", "description": "她抬起头", "dialogues": [{"character": "苏晴", "text": "你回来了。"}, {"character": "", "text": "   "}]},
    {"index": 1, "shot_type": "over the shoulder", "description": "林远站在门外", "narration": "三年了。"}
  ]
}` + "\n```"

func testContext() *models.NarrativeContext {
	return &models.NarrativeContext{
		StoryTitle: "归途",
		SceneText:  "雨夜，林远回到旧书店。",
		Characters: []models.CharacterSheet{
			{Name: "林远", Role: "主角"},
			{Name: "苏晴", SpeechStyle: "话少而直接"},
		},
	}
}

func TestGenerateToonplayNormalizesOutput(t *testing.T) {
	mock := newMockCompleter(toonplayOutput)
	gen := NewGenerationService(mock)

	spec := &models.GenerationSpec{
		ArtifactType:   models.ArtifactToonplay,
		SourceEntityID: "scene-1",
		Options:        models.GenerationOptions{UnitCountTarget: 3},
	}

	candidate, err := gen.Generate(context.Background(), spec, testContext(), nil)
	require.NoError(t, err)

	require.Len(t, candidate.Panels, 3)
	assert.Equal(t, models.ArtifactToonplay, candidate.ArtifactType)
	assert.Equal(t, "雨夜重逢", candidate.Title)
	assert.NotEmpty(t, candidate.ID)

	// 序号按输出顺序重排
	for i, p := range candidate.Panels {
		assert.Equal(t, i+1, p.Index)
	}

	// 镜头别名与大小写归一化
	assert.Equal(t, models.ShotEstablishing, candidate.Panels[0].ShotType)
	assert.Equal(t, models.ShotCloseUp, candidate.Panels[1].ShotType)
	assert.Equal(t, models.ShotOverTheShoulder, candidate.Panels[2].ShotType)

	// 空台词被剔除
	assert.Len(t, candidate.Panels[1].Dialogues, 1)
}

func TestGeneratePromptCarriesContextAndFeedback(t *testing.T) {
	mock := newMockCompleter(toonplayOutput)
	gen := NewGenerationService(mock)

	spec := &models.GenerationSpec{
		ArtifactType:   models.ArtifactToonplay,
		SourceEntityID: "scene-1",
	}
	feedback := &models.Feedback{
		Suggestions: []string{"压缩开场"},
		Weaknesses:  []string{"节奏拖沓"},
	}

	_, err := gen.Generate(context.Background(), spec, testContext(), feedback)
	require.NoError(t, err)

	prompt := mock.lastPrompt()
	assert.Contains(t, prompt, "归途")
	assert.Contains(t, prompt, "林远")
	assert.Contains(t, prompt, "压缩开场")
	assert.Contains(t, prompt, "节奏拖沓")
}

func TestGenerateFirstAttemptHasNoFeedbackBlock(t *testing.T) {
	mock := newMockCompleter(toonplayOutput)
	gen := NewGenerationService(mock)

	spec := &models.GenerationSpec{
		ArtifactType:   models.ArtifactToonplay,
		SourceEntityID: "scene-1",
	}

	_, err := gen.Generate(context.Background(), spec, testContext(), nil)
	require.NoError(t, err)
	assert.NotContains(t, mock.lastPrompt(), "previous_attempt_feedback")
}

func TestGenerateProseScene(t *testing.T) {
	proseOutput := `{"title": "归途", "paragraphs": [
		{"index": 1, "text": "  雨声敲在窗沿上。  "},
		{"index": 2, "text": "“你回来了。”她说。"}
	]}`
	mock := newMockCompleter(proseOutput)
	gen := NewGenerationService(mock)

	spec := &models.GenerationSpec{
		ArtifactType:   models.ArtifactProseScene,
		SourceEntityID: "scene-1",
	}

	candidate, err := gen.Generate(context.Background(), spec, testContext(), nil)
	require.NoError(t, err)

	require.Len(t, candidate.Paragraphs, 2)
	assert.Equal(t, "雨声敲在窗沿上。", candidate.Paragraphs[0].Text)
	assert.Equal(t, 2, candidate.Paragraphs[1].Index)
}

func TestGenerateMalformedOutputIsGenerationFailure(t *testing.T) {
	cases := map[string]string{
		"not json":     "抱歉，我无法完成这个请求。",
		"empty panels": `{"title": "x", "panels": []}`,
		"wrong shape":  `{"scenes": [1, 2, 3]}`,
	}

	for name, output := range cases {
		t.Run(name, func(t *testing.T) {
			mock := newMockCompleter(output)
			gen := NewGenerationService(mock)

			spec := &models.GenerationSpec{
				ArtifactType:   models.ArtifactToonplay,
				SourceEntityID: "scene-1",
			}

			_, err := gen.Generate(context.Background(), spec, testContext(), nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsGenerationFailure(err))
			assert.True(t, apperrors.IsInfrastructureFailure(err))
		})
	}
}

func TestGenerateUnknownShotTypeIsGenerationFailure(t *testing.T) {
	cases := map[string]string{
		"unknown shot type": `{"title": "坏稿", "panels": [
			{"index": 1, "shot_type": "establishing", "description": "街口"},
			{"index": 2, "shot_type": "drone_shot", "description": "俯冲镜头"}
		]}`,
		"unknown camera angle": `{"title": "坏稿", "panels": [
			{"index": 1, "shot_type": "wide", "camera_angle": "diagonal", "description": "巷口"}
		]}`,
	}

	for name, output := range cases {
		t.Run(name, func(t *testing.T) {
			mock := newMockCompleter(output)
			gen := NewGenerationService(mock)

			spec := &models.GenerationSpec{
				ArtifactType:   models.ArtifactToonplay,
				SourceEntityID: "scene-1",
			}

			// 封闭集合之外的枚举值是输出畸形，走可重试的生成失败
			_, err := gen.Generate(context.Background(), spec, testContext(), nil)
			require.Error(t, err)
			assert.True(t, apperrors.IsGenerationFailure(err))
			assert.True(t, apperrors.IsInfrastructureFailure(err))
			assert.Contains(t, err.Error(), "unknown")
		})
	}
}

func TestGenerateNotReadyService(t *testing.T) {
	mock := newMockCompleter(toonplayOutput)
	mock.ready = false
	gen := NewGenerationService(mock)

	spec := &models.GenerationSpec{
		ArtifactType:   models.ArtifactToonplay,
		SourceEntityID: "scene-1",
	}

	_, err := gen.Generate(context.Background(), spec, testContext(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsGenerationFailure(err))
	assert.Zero(t, mock.callCount())
}
