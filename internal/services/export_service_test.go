// internal/services/export_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inklore/toonforge/internal/models"
)

func TestExportToonplayMarkdown(t *testing.T) {
	candidate := &models.Candidate{
		ArtifactType: models.ArtifactToonplay,
		Title:        "雨夜重逢",
		Panels: []models.Panel{
			{
				Index:       1,
				ShotType:    models.ShotEstablishing,
				CameraAngle: models.AngleHigh,
				Description: "雨夜的旧书店门口",
				Narration:   "三年了。",
			},
			{
				Index:    2,
				ShotType: models.ShotCloseUp,
				Dialogues: []models.DialogueLine{
					{Character: "苏晴", Text: "你回来了。", Tone: "低声"},
				},
				SFX: []models.SoundEffect{{Text: "叮铃"}},
			},
		},
	}

	svc := NewExportService()
	md, err := svc.ExportMarkdown(candidate)
	require.NoError(t, err)

	assert.Contains(t, md, "# 雨夜重逢")
	assert.Contains(t, md, "## Panel 1")
	assert.Contains(t, md, "establishing")
	assert.Contains(t, md, "> 三年了。")
	assert.Contains(t, md, "**苏晴:** 你回来了。")
	assert.Contains(t, md, "SFX: 叮铃")
}

func TestExportProseMarkdown(t *testing.T) {
	candidate := &models.Candidate{
		ArtifactType: models.ArtifactProseScene,
		Title:        "归途",
		Paragraphs: []models.Paragraph{
			{Index: 1, Text: "雨声敲在窗沿上。"},
			{Index: 2, Text: "“你回来了。”她说。"},
		},
	}

	svc := NewExportService()
	md, err := svc.ExportMarkdown(candidate)
	require.NoError(t, err)

	assert.Contains(t, md, "# 归途")
	assert.Contains(t, md, "雨声敲在窗沿上。")
}

func TestExportHTML(t *testing.T) {
	candidate := &models.Candidate{
		ArtifactType: models.ArtifactProseScene,
		Title:        "归途",
		Paragraphs:   []models.Paragraph{{Index: 1, Text: "雨声敲在窗沿上。"}},
	}

	svc := NewExportService()
	html, err := svc.ExportHTML(candidate)
	require.NoError(t, err)

	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "雨声敲在窗沿上。")
}

func TestExportRejectsBadInput(t *testing.T) {
	svc := NewExportService()

	_, err := svc.ExportMarkdown(nil)
	assert.Error(t, err)

	_, err = svc.ExportMarkdown(&models.Candidate{ArtifactType: "screenplay"})
	assert.Error(t, err)
}
