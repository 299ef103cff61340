// internal/services/mock_llm_test.go
package services

import (
	"context"
	"sync"
)

// mockCompleter 按顺序返回预置回复的 ChatCompleter 实现
type mockCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []ChatCompletionRequest
	ready     bool
}

func newMockCompleter(responses ...string) *mockCompleter {
	return &mockCompleter{responses: responses, ready: true}
}

func (m *mockCompleter) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.calls)
	m.calls = append(m.calls, req)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}

	text := ""
	if idx < len(m.responses) {
		text = m.responses[idx]
	} else if len(m.responses) > 0 {
		text = m.responses[len(m.responses)-1]
	}
	return &ChatCompletionResponse{Text: text, ModelName: "mock-model", TokensUsed: 42}, nil
}

func (m *mockCompleter) IsReady() bool {
	return m.ready
}

func (m *mockCompleter) GetDefaultModel() string {
	return "mock-model"
}

func (m *mockCompleter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockCompleter) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1].Prompt
}
