// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/inklore/toonforge/internal/config"
	"github.com/inklore/toonforge/internal/di"
	"github.com/inklore/toonforge/internal/services"
	"github.com/inklore/toonforge/internal/storage"
	"github.com/inklore/toonforge/internal/storage/resultstore"
	"github.com/inklore/toonforge/internal/utils"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器。
// 调用方必须先完成 config.InitConfig。
func InitServices(cfg *config.Config) error {
	container := di.GetContainer()
	logger := utils.GetLogger()

	// 1. 存储层
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	container.Register("storage", fileStorage)

	results, err := resultstore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("初始化结果库失败: %w", err)
	}
	container.Register("results", results)

	// 2. LLM服务：未配置时注册空服务，允许先启动后配置
	llmService, err := services.NewLLMService()
	if err != nil {
		logger.Warn("LLM service starts unconfigured", map[string]interface{}{
			"error": err.Error(),
		})
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 3. 领域服务
	storyService := services.NewStoryService(fileStorage, filepath.Join(cfg.DataDir, "stories"))
	container.Register("story", storyService)

	contextService := services.NewContextService(storyService)
	container.Register("context", contextService)

	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	exportService := services.NewExportService()
	container.Register("export", exportService)

	// 4. 改进循环
	loopCfg := config.GetCurrentConfig().Loop
	generator := services.NewGenerationService(llmService)
	evaluator := services.NewEvaluatorService(llmService, loopCfg.NarrationCeiling)
	loopService := services.NewLoopService(generator, evaluator,
		loopCfg.InfraRetries, time.Duration(loopCfg.CallTimeoutSeconds)*time.Second)
	container.Register("loop", loopService)

	taskService := services.NewTaskService(loopService, contextService, storyService, results)
	container.Register("task", taskService)

	// 5. 后台清理已完成的任务追踪器
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			progressService.CleanupCompletedTasks(time.Hour)
		}
	}()

	logger.Info("services initialized", map[string]interface{}{
		"count": len(container.GetNames()),
	})
	return nil
}

// Shutdown 释放服务持有的资源
func Shutdown() {
	container := di.GetContainer()
	if results, ok := container.Get("results").(*resultstore.Store); ok && results != nil {
		if err := results.Close(); err != nil {
			utils.GetLogger().Warn("close result store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
