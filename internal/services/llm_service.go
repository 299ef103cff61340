// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inklore/toonforge/internal/config"
	"github.com/inklore/toonforge/internal/llm"
	"github.com/inklore/toonforge/internal/utils"

	// 注册内置提供商
	_ "github.com/inklore/toonforge/internal/llm/providers/anthropic"
	_ "github.com/inklore/toonforge/internal/llm/providers/openai"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// ChatCompletionRequest 统一的补全请求格式
type ChatCompletionRequest struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Prompt       string  `json:"prompt"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// ChatCompletionResponse 统一的补全响应格式
type ChatCompletionResponse struct {
	Text         string
	FinishReason string
	TokensUsed   int
	ModelName    string
	ProviderName string
}

// ChatCompleter 供生成与评估服务使用的补全接口（测试时可替换为脚本化实现）
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
	IsReady() bool
	GetDefaultModel() string
}

// LLMService 提供统一的大语言模型调用接口
type LLMService struct {
	providerMutex      sync.RWMutex
	provider           llm.Provider
	providerName       string
	isReady            bool
	readyState         string
	activeDefaultModel string

	metrics *utils.LoopMetrics
}

// NewLLMService 创建一个新的LLM服务
func NewLLMService() (*LLMService, error) {
	service := createBaseLLMService()

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service, nil
	}

	if cfg.LLMProvider == "" || (cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] == "") {
		service.readyState = "API key not configured"
		return service, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service, nil // 返回未就绪服务而不是错误
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.activeDefaultModel = cfg.LLMConfig["default_model"]
	service.isReady = true
	service.readyState = "Ready"

	return service, nil
}

// NewEmptyLLMService 创建一个空的LLM服务实例作为后备方案
func NewEmptyLLMService() *LLMService {
	service := createBaseLLMService()
	service.providerName = "empty"
	service.readyState = "Standby Service Mode – Please configure the API key in settings"
	return service
}

func createBaseLLMService() *LLMService {
	return &LLMService{
		readyState: "Uninitialized",
		metrics:    utils.NewLoopMetrics(),
	}
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.readyState
}

// GetProviderName 返回当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.providerName
}

// GetDefaultModel 返回当前默认模型
func (s *LLMService) GetDefaultModel() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if s.activeDefaultModel != "" {
		return s.activeDefaultModel
	}
	return "gpt-4o"
}

// UpdateProvider 热更新提供者配置
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		return fmt.Errorf("切换提供者失败: %w", err)
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.activeDefaultModel = providerConfig["default_model"]
	s.isReady = true
	s.readyState = "Ready"

	return nil
}

// CreateChatCompletion 执行一次补全调用
func (s *LLMService) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	s.providerMutex.RLock()
	provider := s.provider
	providerName := s.providerName
	ready := s.isReady
	s.providerMutex.RUnlock()

	if provider == nil || !ready {
		return nil, ErrLLMNotReady
	}

	model := req.Model
	if model == "" {
		model = s.GetDefaultModel()
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Model:        model,
	})
	if err != nil {
		s.metrics.RecordError("completion", "llm")
		return nil, err
	}

	s.metrics.RecordOracleCall(providerName, resp.TokensUsed, time.Since(start))

	return &ChatCompletionResponse{
		Text:         resp.Text,
		FinishReason: resp.FinishReason,
		TokensUsed:   resp.TokensUsed,
		ModelName:    resp.ModelName,
		ProviderName: resp.ProviderName,
	}, nil
}
