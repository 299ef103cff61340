// internal/services/export_service.go
package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
)

// ExportService 将候选产物导出为 Markdown 或 HTML
type ExportService struct {
	md goldmark.Markdown
}

// NewExportService 创建导出服务
func NewExportService() *ExportService {
	return &ExportService{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
		),
	}
}

// ExportMarkdown 渲染候选产物为 Markdown 文本
func (s *ExportService) ExportMarkdown(candidate *models.Candidate) (string, error) {
	if candidate == nil {
		return "", apperrors.NewValidationError("candidate is nil", nil)
	}

	switch candidate.ArtifactType {
	case models.ArtifactToonplay:
		return renderToonplayMarkdown(candidate), nil
	case models.ArtifactProseScene:
		return renderProseMarkdown(candidate), nil
	default:
		return "", apperrors.NewValidationError(
			fmt.Sprintf("unknown artifact type: %q", candidate.ArtifactType), nil)
	}
}

// ExportHTML 渲染候选产物为 HTML 片段
func (s *ExportService) ExportHTML(candidate *models.Candidate) (string, error) {
	markdown, err := s.ExportMarkdown(candidate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", apperrors.NewProcessingError("render html", err)
	}
	return buf.String(), nil
}

func renderToonplayMarkdown(c *models.Candidate) string {
	var b strings.Builder

	if c.Title != "" {
		b.WriteString("# " + c.Title + "\n\n")
	}

	for i := range c.Panels {
		p := &c.Panels[i]
		b.WriteString(fmt.Sprintf("## Panel %d\n\n", p.Index))
		b.WriteString(fmt.Sprintf("**Shot:** %s", p.ShotType))
		if p.CameraAngle != "" {
			b.WriteString(fmt.Sprintf(" · **Angle:** %s", p.CameraAngle))
		}
		if p.Mood != "" {
			b.WriteString(fmt.Sprintf(" · **Mood:** %s", p.Mood))
		}
		b.WriteString("\n\n")

		if p.Description != "" {
			b.WriteString(p.Description + "\n\n")
		}
		if p.Narration != "" {
			b.WriteString("> " + p.Narration + "\n\n")
		}
		for _, d := range p.Dialogues {
			line := "**" + d.Character + ":** " + d.Text
			if d.Tone != "" {
				line += " *(" + d.Tone + ")*"
			}
			b.WriteString(line + "\n\n")
		}
		for _, fx := range p.SFX {
			b.WriteString("`SFX: " + fx.Text + "`\n\n")
		}
	}

	return b.String()
}

func renderProseMarkdown(c *models.Candidate) string {
	var b strings.Builder

	if c.Title != "" {
		b.WriteString("# " + c.Title + "\n\n")
	}
	for i := range c.Paragraphs {
		b.WriteString(c.Paragraphs[i].Text + "\n\n")
	}

	return b.String()
}
