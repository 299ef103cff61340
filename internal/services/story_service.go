// internal/services/story_service.go
package services

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
	"github.com/inklore/toonforge/internal/storage"
)

// StoryService 故事层次（故事→部→章→场景）的文件存储CRUD。
// 每个故事一个目录：story.json 存层次元信息，scenes/ 下每个场景
// 一份独立文档存正文与衍生产物。
type StoryService struct {
	Storage *storage.FileStorage
	BaseDir string
}

// NewStoryService 创建故事服务
func NewStoryService(fs *storage.FileStorage, baseDir string) *StoryService {
	return &StoryService{Storage: fs, BaseDir: baseDir}
}

func (s *StoryService) storyDir(storyID string) string {
	return filepath.Join(s.BaseDir, storyID)
}

func (s *StoryService) scenesDir(storyID string) string {
	return filepath.Join(s.BaseDir, storyID, "scenes")
}

// CreateStory 创建新故事
func (s *StoryService) CreateStory(title, synopsis, language string) (*models.Story, error) {
	if title == "" {
		return nil, apperrors.NewValidationError("story title is required", nil)
	}

	now := time.Now()
	story := &models.Story{
		ID:        uuid.NewString(),
		Title:     title,
		Synopsis:  synopsis,
		Language:  language,
		Parts:     []models.Part{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.saveStory(story); err != nil {
		return nil, err
	}
	return story, nil
}

// GetStory 按ID加载故事
func (s *StoryService) GetStory(storyID string) (*models.Story, error) {
	var story models.Story
	if err := s.Storage.LoadJSONFile(s.storyDir(storyID), "story.json", &story); err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("story not found: %s", storyID), err)
	}
	return &story, nil
}

// ListStories 列出所有故事
func (s *StoryService) ListStories() ([]*models.Story, error) {
	ids, err := s.Storage.ListDirs(s.BaseDir)
	if err != nil {
		return nil, apperrors.NewProcessingError("list stories", err)
	}

	stories := make([]*models.Story, 0, len(ids))
	for _, id := range ids {
		story, err := s.GetStory(id)
		if err != nil {
			// 损坏的目录跳过，不让单个坏文档拖垮列表
			continue
		}
		stories = append(stories, story)
	}
	return stories, nil
}

// UpdateStory 保存整个故事层次
func (s *StoryService) UpdateStory(story *models.Story) error {
	if story == nil || story.ID == "" {
		return apperrors.NewValidationError("story id is required", nil)
	}
	return s.saveStory(story)
}

// DeleteStory 删除故事元信息文档。场景文档随目录存在，
// 不做递归删除，留给上层的归档流程处理。
func (s *StoryService) DeleteStory(storyID string) error {
	return s.Storage.DeleteFile(s.storyDir(storyID), "story.json")
}

func (s *StoryService) saveStory(story *models.Story) error {
	story.UpdatedAt = time.Now()
	if err := s.Storage.SaveJSONFile(s.storyDir(story.ID), "story.json", story); err != nil {
		return apperrors.NewProcessingError("save story", err)
	}
	return nil
}

// AddScene 在指定章下追加场景
func (s *StoryService) AddScene(storyID, partID, chapterID, title, summary string) (*models.Scene, error) {
	story, err := s.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	for pi := range story.Parts {
		if story.Parts[pi].ID != partID {
			continue
		}
		for ci := range story.Parts[pi].Chapters {
			ch := &story.Parts[pi].Chapters[ci]
			if ch.ID != chapterID {
				continue
			}
			scene := models.Scene{
				ID:      uuid.NewString(),
				Index:   len(ch.Scenes) + 1,
				Title:   title,
				Summary: summary,
			}
			ch.Scenes = append(ch.Scenes, scene)
			if err := s.saveStory(story); err != nil {
				return nil, err
			}
			return &scene, nil
		}
	}
	return nil, apperrors.NewNotFoundError(
		fmt.Sprintf("chapter not found: %s/%s", partID, chapterID), nil)
}

// AddPart 追加一个部
func (s *StoryService) AddPart(storyID, title string) (*models.Part, error) {
	story, err := s.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	part := models.Part{
		ID:       uuid.NewString(),
		Index:    len(story.Parts) + 1,
		Title:    title,
		Chapters: []models.Chapter{},
	}
	story.Parts = append(story.Parts, part)
	if err := s.saveStory(story); err != nil {
		return nil, err
	}
	return &part, nil
}

// AddChapter 在指定部下追加章
func (s *StoryService) AddChapter(storyID, partID, title string) (*models.Chapter, error) {
	story, err := s.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	for pi := range story.Parts {
		if story.Parts[pi].ID != partID {
			continue
		}
		chapter := models.Chapter{
			ID:     uuid.NewString(),
			Index:  len(story.Parts[pi].Chapters) + 1,
			Title:  title,
			Scenes: []models.Scene{},
		}
		story.Parts[pi].Chapters = append(story.Parts[pi].Chapters, chapter)
		if err := s.saveStory(story); err != nil {
			return nil, err
		}
		return &chapter, nil
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("part not found: %s", partID), nil)
}

// GetSceneContent 加载场景正文文档；不存在时返回空文档而非错误
func (s *StoryService) GetSceneContent(storyID, sceneID string) (*models.SceneContent, error) {
	filename := sceneID + ".json"
	if !s.Storage.FileExists(s.scenesDir(storyID), filename) {
		return &models.SceneContent{SceneID: sceneID, StoryID: storyID}, nil
	}

	var content models.SceneContent
	if err := s.Storage.LoadJSONFile(s.scenesDir(storyID), filename, &content); err != nil {
		return nil, apperrors.NewProcessingError("load scene content", err)
	}
	return &content, nil
}

// SaveSceneContent 保存场景正文文档
func (s *StoryService) SaveSceneContent(content *models.SceneContent) error {
	if content == nil || content.SceneID == "" || content.StoryID == "" {
		return apperrors.NewValidationError("scene content needs scene id and story id", nil)
	}
	content.UpdatedAt = time.Now()
	filename := content.SceneID + ".json"
	if err := s.Storage.SaveJSONFile(s.scenesDir(content.StoryID), filename, content); err != nil {
		return apperrors.NewProcessingError("save scene content", err)
	}
	return nil
}

// SetSceneText 写入场景正文
func (s *StoryService) SetSceneText(storyID, sceneID, text string) error {
	content, err := s.GetSceneContent(storyID, sceneID)
	if err != nil {
		return err
	}
	content.Text = text
	return s.SaveSceneContent(content)
}

// AttachToonplay 将达标的漫画脚本挂到场景文档上
func (s *StoryService) AttachToonplay(storyID, sceneID string, candidate *models.Candidate) error {
	content, err := s.GetSceneContent(storyID, sceneID)
	if err != nil {
		return err
	}
	content.Toonplay = candidate
	return s.SaveSceneContent(content)
}
