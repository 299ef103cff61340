// internal/models/spec.go
package models

import (
	"fmt"
	"strings"
)

// EvalMode 评估模式，影响评分提示词的深度与长度
type EvalMode string

const (
	ModeQuick    EvalMode = "quick"
	ModeStandard EvalMode = "standard"
	ModeThorough EvalMode = "thorough"
)

// IsValid 检查评估模式是否受支持；空值按 standard 处理
func (m EvalMode) IsValid() bool {
	return m == "" || m == ModeQuick || m == ModeStandard || m == ModeThorough
}

// GenerationOptions 生成选项
type GenerationOptions struct {
	Language        string   `json:"language,omitempty"`
	StyleHints      []string `json:"style_hints,omitempty"`
	UnitCountTarget int      `json:"unit_count_target,omitempty"`
}

// GenerationSpec 一次生成请求的规格说明（每个请求创建一次）
type GenerationSpec struct {
	ArtifactType   ArtifactType      `json:"artifact_type"`
	SourceEntityID string            `json:"source_entity_id"`
	Options        GenerationOptions `json:"options"`
}

// Validate 校验规格说明；非法规格在循环启动之前就被拒绝
func (s *GenerationSpec) Validate() error {
	if !s.ArtifactType.IsValid() {
		return fmt.Errorf("unknown artifact type: %q", s.ArtifactType)
	}
	if strings.TrimSpace(s.SourceEntityID) == "" {
		return fmt.Errorf("source entity id is required")
	}
	if s.Options.UnitCountTarget < 0 {
		return fmt.Errorf("unit count target must not be negative: %d", s.Options.UnitCountTarget)
	}
	return nil
}

// LoopOptions 改进循环的运行参数
type LoopOptions struct {
	MaxIterations int      `json:"max_iterations"`
	PassThreshold float64  `json:"pass_threshold"`
	Mode          EvalMode `json:"mode,omitempty"`
}

// Validate 校验循环参数；maxIterations=0 表示只生成评估一次、绝不重试
func (o *LoopOptions) Validate(t ArtifactType) error {
	if o.MaxIterations < 0 {
		return fmt.Errorf("max iterations must not be negative: %d", o.MaxIterations)
	}
	min, max := ScoreScale(t)
	if o.PassThreshold < min || o.PassThreshold > max {
		return fmt.Errorf("pass threshold %.2f outside score scale [%.1f, %.1f]", o.PassThreshold, min, max)
	}
	if !o.Mode.IsValid() {
		return fmt.Errorf("unknown evaluation mode: %q", o.Mode)
	}
	return nil
}
