// internal/models/spec_test.go
package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationSpecValidate(t *testing.T) {
	valid := GenerationSpec{ArtifactType: ArtifactToonplay, SourceEntityID: "scene-1"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.ArtifactType = "screenplay"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.SourceEntityID = "  "
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Options.UnitCountTarget = -1
	assert.Error(t, bad.Validate())
}

func TestLoopOptionsValidate(t *testing.T) {
	valid := LoopOptions{MaxIterations: 2, PassThreshold: 3.5}
	assert.NoError(t, valid.Validate(ArtifactToonplay))

	zero := LoopOptions{MaxIterations: 0, PassThreshold: 1.0}
	assert.NoError(t, zero.Validate(ArtifactToonplay), "零重试是合法配置")

	negative := LoopOptions{MaxIterations: -1, PassThreshold: 3.5}
	assert.Error(t, negative.Validate(ArtifactToonplay))

	// 阈值必须落在对应量表内
	tooHigh := LoopOptions{MaxIterations: 1, PassThreshold: 4.5}
	assert.NoError(t, tooHigh.Validate(ArtifactToonplay))
	assert.Error(t, tooHigh.Validate(ArtifactProseScene), "4.5超出散文的0-4量表")

	badMode := LoopOptions{MaxIterations: 1, PassThreshold: 3.0, Mode: "exhaustive"}
	assert.Error(t, badMode.Validate(ArtifactToonplay))

	emptyMode := LoopOptions{MaxIterations: 1, PassThreshold: 3.0}
	assert.NoError(t, emptyMode.Validate(ArtifactToonplay))
}

func TestNarrativeContextValidate(t *testing.T) {
	valid := NarrativeContext{StoryTitle: "归途"}
	assert.NoError(t, valid.Validate())

	missing := NarrativeContext{}
	assert.Error(t, missing.Validate())

	tooMany := NarrativeContext{StoryTitle: "归途"}
	for i := 0; i <= MaxPriorSceneSummaries; i++ {
		tooMany.PriorSceneSummaries = append(tooMany.PriorSceneSummaries, SceneSummary{Summary: "x"})
	}
	assert.Error(t, tooMany.Validate())

	unnamed := NarrativeContext{
		StoryTitle: "归途",
		Characters: []CharacterSheet{{Name: "  "}},
	}
	assert.Error(t, unnamed.Validate())
}

func TestTruncateSummary(t *testing.T) {
	short := "一句话摘要"
	assert.Equal(t, short, TruncateSummary("  "+short+"  "))

	long := strings.Repeat("雨", MaxSummaryRunes+100)
	truncated := TruncateSummary(long)
	require.True(t, strings.HasSuffix(truncated, "…"))
	assert.Equal(t, MaxSummaryRunes+1, len([]rune(truncated)))
}

func TestFindScene(t *testing.T) {
	story := &Story{
		ID: "story-1",
		Parts: []Part{{
			ID: "part-1",
			Chapters: []Chapter{{
				ID: "ch-1",
				Scenes: []Scene{
					{ID: "s1", Index: 1, Summary: "开端"},
					{ID: "s2", Index: 2, Summary: "冲突"},
					{ID: "s3", Index: 3},
				},
			}},
		}},
	}

	scene, chapter, prior := story.FindScene("s3")
	require.NotNil(t, scene)
	assert.Equal(t, "s3", scene.ID)
	assert.Equal(t, "ch-1", chapter.ID)
	require.Len(t, prior, 2)
	assert.Equal(t, "s1", prior[0].ID)

	scene, chapter, prior = story.FindScene("missing")
	assert.Nil(t, scene)
	assert.Nil(t, chapter)
	assert.Nil(t, prior)
}
