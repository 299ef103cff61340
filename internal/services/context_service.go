// internal/services/context_service.go
package services

import (
	"fmt"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
)

// StoryProvider 上下文装配所需的故事读取口。
// 生成核心不直接触碰存储，换存储实现不影响装配逻辑。
type StoryProvider interface {
	GetStory(storyID string) (*models.Story, error)
	GetSceneContent(storyID, sceneID string) (*models.SceneContent, error)
}

// ContextService 从故事层次装配叙事上下文包。
// 装配时裁剪到上下文边界内，产出的包一定通过 Validate。
type ContextService struct {
	Stories StoryProvider
}

// NewContextService 创建上下文装配服务
func NewContextService(stories StoryProvider) *ContextService {
	return &ContextService{Stories: stories}
}

// BuildSceneContext 为指定场景装配上下文：
// 故事梗概、场景正文、同章前序场景摘要、角色与设定卡。
func (s *ContextService) BuildSceneContext(storyID, sceneID string) (*models.NarrativeContext, error) {
	story, err := s.Stories.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	scene, _, prior := story.FindScene(sceneID)
	if scene == nil {
		return nil, apperrors.NewNotFoundError(
			fmt.Sprintf("scene not found in story %s: %s", storyID, sceneID), nil)
	}

	content, err := s.Stories.GetSceneContent(storyID, sceneID)
	if err != nil {
		return nil, err
	}

	nctx := &models.NarrativeContext{
		StoryTitle: story.Title,
		Synopsis:   models.TruncateSummary(story.Synopsis),
		SceneText:  content.Text,
		Characters: trimCharacters(story.Characters),
		Settings:   trimSettings(story.Settings),
	}

	// 只取最近的前序场景，窗口之外的剧情靠梗概兜底
	start := 0
	if len(prior) > models.MaxPriorSceneSummaries {
		start = len(prior) - models.MaxPriorSceneSummaries
	}
	for _, sc := range prior[start:] {
		if sc.Summary == "" {
			continue
		}
		nctx.PriorSceneSummaries = append(nctx.PriorSceneSummaries, models.SceneSummary{
			SceneID: sc.ID,
			Title:   sc.Title,
			Summary: models.TruncateSummary(sc.Summary),
		})
	}

	if err := nctx.Validate(); err != nil {
		return nil, apperrors.NewValidationError("assembled context failed validation", err)
	}
	return nctx, nil
}

func trimCharacters(chars []models.CharacterSheet) []models.CharacterSheet {
	if len(chars) > models.MaxContextCharacters {
		chars = chars[:models.MaxContextCharacters]
	}
	out := make([]models.CharacterSheet, 0, len(chars))
	for _, ch := range chars {
		if ch.Name == "" {
			continue
		}
		ch.Description = models.TruncateSummary(ch.Description)
		out = append(out, ch)
	}
	return out
}

func trimSettings(settings []models.SettingSheet) []models.SettingSheet {
	if len(settings) > models.MaxContextSettings {
		settings = settings[:models.MaxContextSettings]
	}
	out := make([]models.SettingSheet, 0, len(settings))
	for _, st := range settings {
		if st.Name == "" {
			continue
		}
		st.Description = models.TruncateSummary(st.Description)
		out = append(out, st)
	}
	return out
}
