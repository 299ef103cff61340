// internal/services/story_service_test.go
package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
	"github.com/inklore/toonforge/internal/storage"
)

func newTestStoryService(t *testing.T) *StoryService {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	return NewStoryService(fs, filepath.Join(dir, "stories"))
}

func TestStoryHierarchyCRUD(t *testing.T) {
	svc := newTestStoryService(t)

	story, err := svc.CreateStory("归途", "一个关于回家的故事。", "zh")
	require.NoError(t, err)
	require.NotEmpty(t, story.ID)

	part, err := svc.AddPart(story.ID, "第一部")
	require.NoError(t, err)
	assert.Equal(t, 1, part.Index)

	chapter, err := svc.AddChapter(story.ID, part.ID, "第一章")
	require.NoError(t, err)

	scene, err := svc.AddScene(story.ID, part.ID, chapter.ID, "雨夜", "林远回到旧书店")
	require.NoError(t, err)
	assert.Equal(t, 1, scene.Index)

	loaded, err := svc.GetStory(story.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Parts, 1)
	require.Len(t, loaded.Parts[0].Chapters, 1)
	require.Len(t, loaded.Parts[0].Chapters[0].Scenes, 1)
	assert.Equal(t, scene.ID, loaded.Parts[0].Chapters[0].Scenes[0].ID)

	found, ch, prior := loaded.FindScene(scene.ID)
	require.NotNil(t, found)
	assert.Equal(t, chapter.ID, ch.ID)
	assert.Empty(t, prior)
}

func TestStoryCreateRequiresTitle(t *testing.T) {
	svc := newTestStoryService(t)

	_, err := svc.CreateStory("", "", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestStoryNotFound(t *testing.T) {
	svc := newTestStoryService(t)

	_, err := svc.GetStory("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))

	_, err = svc.AddChapter("missing", "part", "章")
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestSceneContentRoundTrip(t *testing.T) {
	svc := newTestStoryService(t)

	story, err := svc.CreateStory("归途", "", "zh")
	require.NoError(t, err)
	part, err := svc.AddPart(story.ID, "")
	require.NoError(t, err)
	chapter, err := svc.AddChapter(story.ID, part.ID, "")
	require.NoError(t, err)
	scene, err := svc.AddScene(story.ID, part.ID, chapter.ID, "雨夜", "")
	require.NoError(t, err)

	// 不存在时返回空文档
	content, err := svc.GetSceneContent(story.ID, scene.ID)
	require.NoError(t, err)
	assert.Empty(t, content.Text)

	require.NoError(t, svc.SetSceneText(story.ID, scene.ID, "雨夜，林远回到旧书店。"))

	toonplay := &models.Candidate{
		ID:           "cand-1",
		ArtifactType: models.ArtifactToonplay,
		Panels:       []models.Panel{{Index: 1, ShotType: models.ShotWide, Description: "开场"}},
	}
	require.NoError(t, svc.AttachToonplay(story.ID, scene.ID, toonplay))

	content, err = svc.GetSceneContent(story.ID, scene.ID)
	require.NoError(t, err)
	assert.Equal(t, "雨夜，林远回到旧书店。", content.Text)
	require.NotNil(t, content.Toonplay)
	assert.Equal(t, "cand-1", content.Toonplay.ID)
	assert.False(t, content.UpdatedAt.IsZero())
}

func TestListStories(t *testing.T) {
	svc := newTestStoryService(t)

	_, err := svc.CreateStory("归途", "", "zh")
	require.NoError(t, err)
	_, err = svc.CreateStory("远山", "", "zh")
	require.NoError(t, err)

	stories, err := svc.ListStories()
	require.NoError(t, err)
	assert.Len(t, stories, 2)
}
