// internal/models/story.go
package models

import (
	"time"
)

// Story 作品：故事 → 部 → 章 → 场景 四级层次的根
type Story struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Synopsis   string           `json:"synopsis,omitempty"`
	Language   string           `json:"language,omitempty"`
	Characters []CharacterSheet `json:"characters,omitempty"`
	Settings   []SettingSheet   `json:"settings,omitempty"`
	Parts      []Part           `json:"parts"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Part 部
type Part struct {
	ID       string    `json:"id"`
	Index    int       `json:"index"`
	Title    string    `json:"title,omitempty"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter 章
type Chapter struct {
	ID     string  `json:"id"`
	Index  int     `json:"index"`
	Title  string  `json:"title,omitempty"`
	Scenes []Scene `json:"scenes"`
}

// Scene 场景：生成请求引用的最小叙事实体。
// 正文与衍生产物存储在 scene 文档中，故事文档只保留元信息。
type Scene struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// SceneContent 场景正文及其衍生产物（独立文档存储）
type SceneContent struct {
	SceneID   string     `json:"scene_id"`
	StoryID   string     `json:"story_id"`
	Text      string     `json:"text,omitempty"`
	Toonplay  *Candidate `json:"toonplay,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FindScene 在故事层次中按 ID 查找场景，返回其所属章与前序场景列表
func (s *Story) FindScene(sceneID string) (scene *Scene, chapter *Chapter, prior []Scene) {
	for pi := range s.Parts {
		for ci := range s.Parts[pi].Chapters {
			ch := &s.Parts[pi].Chapters[ci]
			for si := range ch.Scenes {
				if ch.Scenes[si].ID == sceneID {
					return &ch.Scenes[si], ch, ch.Scenes[:si]
				}
			}
		}
	}
	return nil, nil, nil
}
