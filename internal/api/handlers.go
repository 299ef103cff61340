// internal/api/handlers.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inklore/toonforge/internal/apperrors"
	"github.com/inklore/toonforge/internal/config"
	"github.com/inklore/toonforge/internal/models"
	"github.com/inklore/toonforge/internal/services"
)

// Handler API处理器
type Handler struct {
	StoryService    *services.StoryService
	TaskService     *services.TaskService
	ProgressService *services.ProgressService
	ExportService   *services.ExportService
	LLMService      *services.LLMService
}

// NewHandler 创建API处理器
func NewHandler(
	storyService *services.StoryService,
	taskService *services.TaskService,
	progressService *services.ProgressService,
	exportService *services.ExportService,
	llmService *services.LLMService,
) *Handler {
	return &Handler{
		StoryService:    storyService,
		TaskService:     taskService,
		ProgressService: progressService,
		ExportService:   exportService,
		LLMService:      llmService,
	}
}

// ===============================
// LLM配置
// ===============================

// GetLLMStatus 返回LLM服务当前状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	respondOK(c, gin.H{
		"ready":    h.LLMService.IsReady(),
		"state":    h.LLMService.GetReadyState(),
		"provider": h.LLMService.GetProviderName(),
		"model":    h.LLMService.GetDefaultModel(),
	})
}

// UpdateLLMConfig 更新LLM提供商配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		respondError(c, err)
		return
	}
	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, gin.H{"provider": req.Provider})
}

// ===============================
// 故事层次
// ===============================

// ListStories 列出所有故事
func (h *Handler) ListStories(c *gin.Context) {
	stories, err := h.StoryService.ListStories()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, stories)
}

// CreateStory 创建故事
func (h *Handler) CreateStory(c *gin.Context) {
	var req struct {
		Title    string `json:"title" binding:"required"`
		Synopsis string `json:"synopsis"`
		Language string `json:"language"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	story, err := h.StoryService.CreateStory(req.Title, req.Synopsis, req.Language)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, story)
}

// GetStory 获取故事
func (h *Handler) GetStory(c *gin.Context) {
	story, err := h.StoryService.GetStory(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, story)
}

// UpdateStory 更新整个故事层次（含角色与设定卡）
func (h *Handler) UpdateStory(c *gin.Context) {
	var story models.Story
	if err := c.BindJSON(&story); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}
	story.ID = c.Param("id")

	if err := h.StoryService.UpdateStory(&story); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, story)
}

// DeleteStory 删除故事
func (h *Handler) DeleteStory(c *gin.Context) {
	if err := h.StoryService.DeleteStory(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": c.Param("id")})
}

// AddPart 追加部
func (h *Handler) AddPart(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	part, err := h.StoryService.AddPart(c.Param("id"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, part)
}

// AddChapter 追加章
func (h *Handler) AddChapter(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	chapter, err := h.StoryService.AddChapter(c.Param("id"), c.Param("partID"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, chapter)
}

// AddScene 追加场景
func (h *Handler) AddScene(c *gin.Context) {
	var req struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
		Text    string `json:"text"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	scene, err := h.StoryService.AddScene(c.Param("id"), c.Param("partID"), c.Param("chapterID"), req.Title, req.Summary)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Text != "" {
		if err := h.StoryService.SetSceneText(c.Param("id"), scene.ID, req.Text); err != nil {
			respondError(c, err)
			return
		}
	}
	respondCreated(c, scene)
}

// SetSceneText 写入场景正文
func (h *Handler) SetSceneText(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	if err := h.StoryService.SetSceneText(c.Param("id"), c.Param("sceneID"), req.Text); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"scene_id": c.Param("sceneID")})
}

// GetSceneContent 获取场景正文与衍生产物
func (h *Handler) GetSceneContent(c *gin.Context) {
	content, err := h.StoryService.GetSceneContent(c.Param("id"), c.Param("sceneID"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, content)
}

// ===============================
// 生成任务
// ===============================

// generateRequest 生成任务的请求体；循环参数缺省取配置默认值
type generateRequest struct {
	Options       models.GenerationOptions `json:"options"`
	MaxIterations *int                     `json:"max_iterations"`
	PassThreshold *float64                 `json:"pass_threshold"`
	Mode          models.EvalMode          `json:"mode"`
}

func (r *generateRequest) loopOptions(artifactType models.ArtifactType) models.LoopOptions {
	defaults := config.GetCurrentConfig().Loop

	opts := models.LoopOptions{
		MaxIterations: defaults.MaxIterations,
		PassThreshold: defaults.PassThreshold,
		Mode:          r.Mode,
	}
	if r.MaxIterations != nil {
		opts.MaxIterations = *r.MaxIterations
	}
	if r.PassThreshold != nil {
		opts.PassThreshold = *r.PassThreshold
	} else if artifactType == models.ArtifactProseScene {
		// 散文量表是0-4，toonplay的默认阈值不能直接沿用
		opts.PassThreshold = defaults.PassThreshold * models.ProseScoreMax / models.ToonplayScoreMax
	}
	return opts
}

// GenerateToonplay 为场景启动漫画脚本生成任务，返回任务ID
func (h *Handler) GenerateToonplay(c *gin.Context) {
	h.startSceneTask(c, models.ArtifactToonplay)
}

// GenerateProse 为场景启动正文生成任务，返回任务ID
func (h *Handler) GenerateProse(c *gin.Context) {
	h.startSceneTask(c, models.ArtifactProseScene)
}

func (h *Handler) startSceneTask(c *gin.Context, artifactType models.ArtifactType) {
	var req generateRequest
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}

	storyID := c.Param("id")
	sceneID := c.Param("sceneID")
	taskID := fmt.Sprintf("%s_%s_%d", artifactType, sceneID, time.Now().UnixNano())
	tracker := h.ProgressService.CreateTracker(taskID)

	taskReq := services.SceneTaskRequest{
		StoryID:      storyID,
		SceneID:      sceneID,
		ArtifactType: artifactType,
		Options:      req.Options,
		Loop:         req.loopOptions(artifactType),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		if _, err := h.TaskService.RunSceneTask(ctx, taskReq, tracker); err != nil {
			// RunSceneTask 已通过 tracker 上报失败
			return
		}
	}()

	respondAccepted(c, gin.H{"task_id": taskID}, "生成任务已开始，请订阅进度更新")
}

// GenerateChapter 为整章场景批量生成，同步等待汇总结果
func (h *Handler) GenerateChapter(c *gin.Context) {
	var req struct {
		generateRequest
		ArtifactType models.ArtifactType `json:"artifact_type"`
		Concurrency  int                 `json:"concurrency"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("无效的请求参数", err))
		return
	}
	if req.ArtifactType == "" {
		req.ArtifactType = models.ArtifactToonplay
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Minute)
	defer cancel()

	results, err := h.TaskService.RunChapterTasks(ctx,
		c.Param("id"), c.Param("chapterID"),
		req.ArtifactType, req.Options, req.loopOptions(req.ArtifactType), req.Concurrency)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, results)
}

// GetTaskProgress 轮询任务进度
func (h *Handler) GetTaskProgress(c *gin.Context) {
	tracker, exists := h.ProgressService.GetTracker(c.Param("taskID"))
	if !exists {
		respondError(c, apperrors.NewNotFoundError("任务不存在", nil))
		return
	}
	respondOK(c, tracker.Snapshot())
}

// GetGenerationResult 读取场景最近一次的胜出结果
func (h *Handler) GetGenerationResult(c *gin.Context) {
	artifactType := models.ArtifactType(c.DefaultQuery("type", string(models.ArtifactToonplay)))
	if !artifactType.IsValid() {
		respondError(c, apperrors.NewValidationError(
			fmt.Sprintf("unknown artifact type: %q", artifactType), nil))
		return
	}

	rec, err := h.TaskService.GetResult(c.Request.Context(), c.Param("sceneID"), artifactType)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, rec)
}

// ===============================
// 导出
// ===============================

// ExportScene 导出场景的胜出产物
func (h *Handler) ExportScene(c *gin.Context) {
	artifactType := models.ArtifactType(c.DefaultQuery("type", string(models.ArtifactToonplay)))
	if !artifactType.IsValid() {
		respondError(c, apperrors.NewValidationError(
			fmt.Sprintf("unknown artifact type: %q", artifactType), nil))
		return
	}

	rec, err := h.TaskService.GetResult(c.Request.Context(), c.Param("sceneID"), artifactType)
	if err != nil {
		respondError(c, err)
		return
	}

	switch c.DefaultQuery("format", "markdown") {
	case "markdown":
		md, err := h.ExportService.ExportMarkdown(rec.Candidate)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
	case "html":
		html, err := h.ExportService.ExportHTML(rec.Candidate)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
	default:
		respondError(c, apperrors.NewValidationError("format must be markdown or html", nil))
	}
}
