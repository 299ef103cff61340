// internal/models/candidate.go
package models

import (
	"strings"
	"time"
)

// ArtifactType 生成产物类型
type ArtifactType string

const (
	ArtifactToonplay   ArtifactType = "toonplay"
	ArtifactProseScene ArtifactType = "prose_scene"
)

// IsValid 检查产物类型是否受支持
func (t ArtifactType) IsValid() bool {
	return t == ArtifactToonplay || t == ArtifactProseScene
}

// ShotType 分镜镜头类型（封闭集合）
type ShotType string

const (
	ShotEstablishing    ShotType = "establishing"
	ShotWide            ShotType = "wide"
	ShotMedium          ShotType = "medium"
	ShotCloseUp         ShotType = "close_up"
	ShotExtremeCloseUp  ShotType = "extreme_close_up"
	ShotOverTheShoulder ShotType = "over_shoulder"
	ShotPOV             ShotType = "pov"
	ShotInsert          ShotType = "insert"
)

var validShotTypes = map[ShotType]bool{
	ShotEstablishing:    true,
	ShotWide:            true,
	ShotMedium:          true,
	ShotCloseUp:         true,
	ShotExtremeCloseUp:  true,
	ShotOverTheShoulder: true,
	ShotPOV:             true,
	ShotInsert:          true,
}

// IsValid 检查镜头类型是否在封闭集合内
func (s ShotType) IsValid() bool {
	return validShotTypes[s]
}

// Bucket 将镜头类型归入统计分类（用于 unit_type_distribution）
func (s ShotType) Bucket() string {
	switch s {
	case ShotEstablishing, ShotWide:
		return "scene_setting"
	case ShotMedium, ShotOverTheShoulder:
		return "conversation"
	case ShotCloseUp, ShotExtremeCloseUp:
		return "emotion"
	case ShotPOV, ShotInsert:
		return "detail"
	default:
		return "other"
	}
}

// CameraAngle 摄像机角度（封闭集合）
type CameraAngle string

const (
	AngleEyeLevel CameraAngle = "eye_level"
	AngleHigh     CameraAngle = "high"
	AngleLow      CameraAngle = "low"
	AngleDutch    CameraAngle = "dutch"
	AngleBirdsEye CameraAngle = "birds_eye"
	AngleWormsEye CameraAngle = "worms_eye"
)

var validCameraAngles = map[CameraAngle]bool{
	AngleEyeLevel: true,
	AngleHigh:     true,
	AngleLow:      true,
	AngleDutch:    true,
	AngleBirdsEye: true,
	AngleWormsEye: true,
}

// IsValid 检查摄像机角度是否在封闭集合内
func (a CameraAngle) IsValid() bool {
	// 空值允许：由归一化阶段补默认值
	return a == "" || validCameraAngles[a]
}

// DialogueLine 面板中的一条台词
type DialogueLine struct {
	Character string `json:"character"`
	Text      string `json:"text"`
	Tone      string `json:"tone,omitempty"`
}

// SoundEffect 拟声词/音效条目
type SoundEffect struct {
	Text     string `json:"text"`
	Emphasis string `json:"emphasis,omitempty"` // small, normal, large
}

// Panel 漫画脚本（toonplay）中的一格
type Panel struct {
	Index       int            `json:"index"`
	ShotType    ShotType       `json:"shot_type"`
	CameraAngle CameraAngle    `json:"camera_angle,omitempty"`
	Description string         `json:"description"`
	Narration   string         `json:"narration,omitempty"`
	Dialogues   []DialogueLine `json:"dialogues,omitempty"`
	SFX         []SoundEffect  `json:"sfx,omitempty"`
	Characters  []string       `json:"characters,omitempty"`
	Mood        string         `json:"mood,omitempty"`
}

// IsDead 报告该面板是否既无台词、无画面描述也无旁白
func (p *Panel) IsDead() bool {
	if len(p.Dialogues) > 0 {
		return false
	}
	if strings.TrimSpace(p.Description) != "" {
		return false
	}
	return strings.TrimSpace(p.Narration) == ""
}

// IsPureNarration 报告该面板是否为纯旁白/说明格（无台词、无动作描写）
func (p *Panel) IsPureNarration() bool {
	return len(p.Dialogues) == 0 && strings.TrimSpace(p.Narration) != ""
}

// Paragraph 散文场景中的一个段落
type Paragraph struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// IsDead 报告该段落是否为空白段
func (pg *Paragraph) IsDead() bool {
	return strings.TrimSpace(pg.Text) == ""
}

// HasDialogue 通过引号粗略判断段落是否包含对白
func (pg *Paragraph) HasDialogue() bool {
	return strings.ContainsAny(pg.Text, "\"“”「」『』")
}

// Candidate 一次生成尝试的产物（不可变：评估之后不再修改）
type Candidate struct {
	ID           string       `json:"id"`
	ArtifactType ArtifactType `json:"artifact_type"`
	Title        string       `json:"title,omitempty"`
	Panels       []Panel      `json:"panels,omitempty"`
	Paragraphs   []Paragraph  `json:"paragraphs,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// UnitCount 返回候选产物中的单元数量（面板或段落）
func (c *Candidate) UnitCount() int {
	if c.ArtifactType == ArtifactToonplay {
		return len(c.Panels)
	}
	return len(c.Paragraphs)
}
