// internal/services/task_service.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/models"
	"github.com/inklore/toonforge/internal/storage/resultstore"
	"github.com/inklore/toonforge/internal/utils"
)

// TaskService 把改进循环串成完整的场景生成任务：
// 装配上下文 → 跑循环 → 持久化胜出稿与迭代历史 → 回挂场景文档。
type TaskService struct {
	Loop    *LoopService
	Context *ContextService
	Stories *StoryService
	Results *resultstore.Store

	logger *utils.Logger
}

// NewTaskService 创建任务服务
func NewTaskService(loop *LoopService, contexts *ContextService, stories *StoryService, results *resultstore.Store) *TaskService {
	return &TaskService{
		Loop:    loop,
		Context: contexts,
		Stories: stories,
		Results: results,
		logger:  utils.GetLogger(),
	}
}

// SceneTaskRequest 单个场景的生成任务请求
type SceneTaskRequest struct {
	StoryID      string                   `json:"story_id"`
	SceneID      string                   `json:"scene_id"`
	ArtifactType models.ArtifactType      `json:"artifact_type"`
	Options      models.GenerationOptions `json:"options"`
	Loop         models.LoopOptions       `json:"loop"`
}

// RunSceneTask 为单个场景执行一次完整的生成任务。
// 返回的 LoopResult 已持久化；达标的 toonplay 会回挂到场景文档。
func (s *TaskService) RunSceneTask(ctx context.Context, req SceneTaskRequest, tracker *ProgressTracker) (*models.LoopResult, error) {
	nctx, err := s.Context.BuildSceneContext(req.StoryID, req.SceneID)
	if err != nil {
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		return nil, err
	}

	spec := &models.GenerationSpec{
		ArtifactType:   req.ArtifactType,
		SourceEntityID: req.SceneID,
		Options:        req.Options,
	}
	if spec.Options.Language == "" {
		if story, err := s.Stories.GetStory(req.StoryID); err == nil {
			spec.Options.Language = story.Language
		}
	}

	result, err := s.Loop.Run(ctx, spec, nctx, req.Loop, tracker)
	if err != nil {
		// Run 的各失败路径都会终结 tracker，这里兜底；终态只进一次
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		return nil, err
	}

	runID := uuid.NewString()
	if err := s.persist(ctx, req, runID, result); err != nil {
		// 结果已经产出，持久化失败只记日志不吞掉结果
		s.logger.Error("persist loop result failed", map[string]interface{}{
			"scene_id": req.SceneID,
			"run_id":   runID,
			"error":    err.Error(),
		})
	}

	if result.TerminationReason == models.TerminationPassed && req.ArtifactType == models.ArtifactToonplay {
		if err := s.Stories.AttachToonplay(req.StoryID, req.SceneID, result.FinalCandidate); err != nil {
			s.logger.Warn("attach toonplay to scene failed", map[string]interface{}{
				"scene_id": req.SceneID,
				"error":    err.Error(),
			})
		}
	}

	return result, nil
}

func (s *TaskService) persist(ctx context.Context, req SceneTaskRequest, runID string, result *models.LoopResult) error {
	if s.Results == nil {
		return nil
	}

	rec := resultstore.Record{
		EntityID:     req.SceneID,
		ArtifactType: req.ArtifactType,
		Candidate:    result.FinalCandidate,
		Evaluation:   result.FinalEvaluation,
		Metadata: map[string]string{
			"story_id":           req.StoryID,
			"run_id":             runID,
			"termination_reason": string(result.TerminationReason),
			"iterations":         fmt.Sprintf("%d", result.IterationCount),
		},
	}
	if err := s.Results.Upsert(ctx, rec); err != nil {
		return err
	}
	return s.Results.SaveHistory(ctx, req.SceneID, req.ArtifactType, runID, result.History)
}

// RunChapterTasks 并发为整章场景生成同类产物。
// 单个场景失败不中断其余场景，汇总后整体返回。
func (s *TaskService) RunChapterTasks(ctx context.Context, storyID, chapterID string, artifactType models.ArtifactType, genOpts models.GenerationOptions, loopOpts models.LoopOptions, concurrency int) (map[string]*models.LoopResult, error) {
	story, err := s.Stories.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	var scenes []models.Scene
	for pi := range story.Parts {
		for ci := range story.Parts[pi].Chapters {
			if story.Parts[pi].Chapters[ci].ID == chapterID {
				scenes = story.Parts[pi].Chapters[ci].Scenes
			}
		}
	}
	if scenes == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("chapter not found: %s", chapterID), nil)
	}

	if concurrency <= 0 {
		concurrency = 2
	}

	results := make(map[string]*models.LoopResult, len(scenes))
	failures := make(map[string]error, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	type outcome struct {
		sceneID string
		result  *models.LoopResult
		err     error
	}
	outcomes := make(chan outcome, len(scenes))

	for _, scene := range scenes {
		sceneID := scene.ID
		g.Go(func() error {
			req := SceneTaskRequest{
				StoryID:      storyID,
				SceneID:      sceneID,
				ArtifactType: artifactType,
				Options:      genOpts,
				Loop:         loopOpts,
			}
			result, err := s.RunSceneTask(gctx, req, nil)
			outcomes <- outcome{sceneID: sceneID, result: result, err: err}
			// 单场景失败不取消整组
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(outcomes)

	for o := range outcomes {
		if o.err != nil {
			failures[o.sceneID] = o.err
			continue
		}
		results[o.sceneID] = o.result
	}

	if len(failures) > 0 {
		s.logger.Warn("chapter batch finished with failures", map[string]interface{}{
			"chapter_id": chapterID,
			"failed":     len(failures),
			"succeeded":  len(results),
		})
		if len(results) == 0 {
			for id, ferr := range failures {
				return nil, apperrors.WrapError(ferr,
					fmt.Sprintf("all scenes failed, first failure at %s", id),
					apperrors.ErrorTypeError)
			}
		}
	}

	return results, nil
}

// GetResult 读取某场景最近一次持久化的胜出结果
func (s *TaskService) GetResult(ctx context.Context, sceneID string, artifactType models.ArtifactType) (*resultstore.Record, error) {
	if s.Results == nil {
		return nil, apperrors.NewProcessingError("result store not configured", nil)
	}
	rec, err := s.Results.Get(ctx, sceneID, artifactType)
	if err != nil {
		return nil, apperrors.NewProcessingError("load generation result", err)
	}
	if rec == nil {
		return nil, apperrors.NewNotFoundError(
			fmt.Sprintf("no stored result for %s/%s", sceneID, artifactType), nil)
	}
	return rec, nil
}
