// internal/models/candidate_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanelIsDead(t *testing.T) {
	cases := []struct {
		name  string
		panel Panel
		dead  bool
	}{
		{"完全为空", Panel{ShotType: ShotWide}, true},
		{"只有空白字符", Panel{Description: "   ", Narration: "\t"}, true},
		{"有描述", Panel{Description: "雨夜街头"}, false},
		{"有旁白", Panel{Narration: "三年了。"}, false},
		{"有台词", Panel{Dialogues: []DialogueLine{{Character: "林远", Text: "..."}}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.dead, tc.panel.IsDead())
		})
	}
}

func TestPanelIsPureNarration(t *testing.T) {
	assert.True(t, (&Panel{Narration: "旁白"}).IsPureNarration())
	assert.False(t, (&Panel{Narration: "旁白", Dialogues: []DialogueLine{{Text: "嗯"}}}).IsPureNarration())
	assert.False(t, (&Panel{Description: "画面"}).IsPureNarration())
}

func TestParagraphIsDead(t *testing.T) {
	assert.True(t, (&Paragraph{Text: " \n\t "}).IsDead())
	assert.False(t, (&Paragraph{Text: "雨声。"}).IsDead())
}

func TestParagraphHasDialogue(t *testing.T) {
	assert.True(t, (&Paragraph{Text: `“你回来了。”她说。`}).HasDialogue())
	assert.True(t, (&Paragraph{Text: `"Hello," she said.`}).HasDialogue())
	assert.False(t, (&Paragraph{Text: "雨声敲在窗沿上。"}).HasDialogue())
}

func TestShotTypeBucket(t *testing.T) {
	assert.Equal(t, "scene_setting", ShotEstablishing.Bucket())
	assert.Equal(t, "scene_setting", ShotWide.Bucket())
	assert.Equal(t, "conversation", ShotMedium.Bucket())
	assert.Equal(t, "conversation", ShotOverTheShoulder.Bucket())
	assert.Equal(t, "emotion", ShotCloseUp.Bucket())
	assert.Equal(t, "emotion", ShotExtremeCloseUp.Bucket())
	assert.Equal(t, "detail", ShotPOV.Bucket())
	assert.Equal(t, "detail", ShotInsert.Bucket())
	assert.Equal(t, "other", ShotType("drone").Bucket())
}

func TestCameraAngleValidity(t *testing.T) {
	assert.True(t, CameraAngle("").IsValid(), "空角度由归一化补默认值")
	assert.True(t, AngleDutch.IsValid())
	assert.False(t, CameraAngle("sideways").IsValid())
}

func TestCandidateUnitCount(t *testing.T) {
	toonplay := &Candidate{
		ArtifactType: ArtifactToonplay,
		Panels:       []Panel{{}, {}, {}},
	}
	assert.Equal(t, 3, toonplay.UnitCount())

	prose := &Candidate{
		ArtifactType: ArtifactProseScene,
		Paragraphs:   []Paragraph{{}, {}},
	}
	assert.Equal(t, 2, prose.UnitCount())
}
