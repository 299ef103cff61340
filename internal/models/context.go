// internal/models/context.go
package models

import (
	"fmt"
	"strings"
)

// 上下文装配的边界限制
const (
	MaxPriorSceneSummaries = 5
	MaxContextCharacters   = 12
	MaxContextSettings     = 6
	MaxSummaryRunes        = 800
)

// SceneSummary 先前场景的摘要
type SceneSummary struct {
	SceneID string `json:"scene_id"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary"`
}

// CharacterSheet 角色设定卡
type CharacterSheet struct {
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
	SpeechStyle string `json:"speech_style,omitempty"`
}

// SettingSheet 场景/世界观设定卡
type SettingSheet struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Atmosphere  string `json:"atmosphere,omitempty"`
}

// NarrativeContext 提供给生成与评估的叙事上下文包。
// 在装配边界处校验一次，下游不再处理任意形态的数据。
type NarrativeContext struct {
	StoryTitle          string           `json:"story_title"`
	Synopsis            string           `json:"synopsis,omitempty"`
	SceneText           string           `json:"scene_text,omitempty"`
	PriorSceneSummaries []SceneSummary   `json:"prior_scene_summaries,omitempty"`
	Characters          []CharacterSheet `json:"characters,omitempty"`
	Settings            []SettingSheet   `json:"settings,omitempty"`
}

// Validate 校验上下文包的边界约束
func (c *NarrativeContext) Validate() error {
	if strings.TrimSpace(c.StoryTitle) == "" {
		return fmt.Errorf("story title is required")
	}
	if len(c.PriorSceneSummaries) > MaxPriorSceneSummaries {
		return fmt.Errorf("too many prior scene summaries: %d (max %d)",
			len(c.PriorSceneSummaries), MaxPriorSceneSummaries)
	}
	if len(c.Characters) > MaxContextCharacters {
		return fmt.Errorf("too many characters: %d (max %d)", len(c.Characters), MaxContextCharacters)
	}
	if len(c.Settings) > MaxContextSettings {
		return fmt.Errorf("too many settings: %d (max %d)", len(c.Settings), MaxContextSettings)
	}
	for i, ch := range c.Characters {
		if strings.TrimSpace(ch.Name) == "" {
			return fmt.Errorf("character %d has empty name", i)
		}
	}
	return nil
}

// TruncateSummary 将摘要截断到上下文允许的最大长度
func TruncateSummary(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= MaxSummaryRunes {
		return string(runes)
	}
	return string(runes[:MaxSummaryRunes]) + "…"
}
