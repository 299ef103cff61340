// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/inklore/toonforge/internal/di"
	"github.com/inklore/toonforge/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	container := di.GetContainer()

	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		return nil, fmt.Errorf("故事服务未正确初始化")
	}

	taskService, ok := container.Get("task").(*services.TaskService)
	if !ok {
		return nil, fmt.Errorf("任务服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	handler := NewHandler(storyService, taskService, progressService, exportService, llmService)

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// WebSocket 支持
	r.GET("/ws/progress/:taskID", handler.ProgressWebSocket)

	api := r.Group("/api")
	{
		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}

		// ===============================
		// 故事层次相关路由
		// ===============================
		storiesGroup := api.Group("/stories")
		{
			storiesGroup.GET("", handler.ListStories)
			storiesGroup.POST("", handler.CreateStory)
			storiesGroup.GET("/:id", handler.GetStory)
			storiesGroup.PUT("/:id", handler.UpdateStory)
			storiesGroup.DELETE("/:id", handler.DeleteStory)

			storiesGroup.POST("/:id/parts", handler.AddPart)
			storiesGroup.POST("/:id/parts/:partID/chapters", handler.AddChapter)
			storiesGroup.POST("/:id/parts/:partID/chapters/:chapterID/scenes", handler.AddScene)

			// 场景正文与生成
			scenesGroup := storiesGroup.Group("/:id/scenes/:sceneID")
			{
				scenesGroup.GET("", handler.GetSceneContent)
				scenesGroup.PUT("/text", handler.SetSceneText)
				scenesGroup.POST("/toonplay", handler.GenerateToonplay)
				scenesGroup.POST("/prose", handler.GenerateProse)
				scenesGroup.GET("/result", handler.GetGenerationResult)
				scenesGroup.GET("/export", handler.ExportScene)
			}

			// 整章批量生成
			storiesGroup.POST("/:id/chapters/:chapterID/generate", handler.GenerateChapter)
		}

		// ===============================
		// 任务进度
		// ===============================
		api.GET("/tasks/:taskID/progress", handler.GetTaskProgress)
	}

	return r, nil
}
