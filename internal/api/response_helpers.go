// internal/api/response_helpers.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inklore/toonforge/internal/apperrors"
)

// APIResponse 统一的响应包裹
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, &APIResponse{
		Success:   true,
		Data:      data,
		Message:   "资源创建成功",
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}

func respondAccepted(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusAccepted, &APIResponse{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}

// respondError 按错误类型映射HTTP状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsValidationError(err):
		status = http.StatusBadRequest
	case apperrors.IsNotFoundError(err):
		status = http.StatusNotFound
	case apperrors.IsTimeoutError(err):
		status = http.StatusGatewayTimeout
	case apperrors.IsInfrastructureFailure(err):
		status = http.StatusBadGateway
	}

	c.JSON(status, &APIResponse{
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now(),
		RequestID: c.GetString("request_id"),
	})
}
