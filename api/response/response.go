/*
Package response - API 层统一响应处理

设计原则:
1. HTTP 状态码映射放在 API 层，实体服务只产出 Problem 码
2. 错误响应不暴露内部细节
3. 所有响应携带 RequestID 用于日志追踪

响应格式:

	成功: { success: true, data: {...}, message: "...", code: 200, request_id: "..." }
	失败: { success: false, error: "ERROR_CODE", message: "用户可见消息", code: 4xx/5xx, request_id: "..." }
*/
package response

import (
	"errors"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"entityservice/application/entityservice"
	"entityservice/domain/shared"
	"entityservice/pkg/logger"
)

// RequestIDKey gin context key of the request id
const RequestIDKey = "request_id"

// ============================================================================
// 响应结构体定义
// ============================================================================

type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"` // 错误码，不是错误详情
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type PaginatedResponse struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
	Message    string     `json:"message"`
	Code       int        `json:"code"`
	RequestID  string     `json:"request_id,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ============================================================================
// HTTP 状态码映射 (仅在 API 层)
// ============================================================================

type mapping struct {
	status int
	code   string
}

var problemMap = map[int]mapping{
	entityservice.CodeInvalidInput:       {http.StatusBadRequest, "INVALID_INPUT"},
	entityservice.CodeNotFound:           {http.StatusNotFound, "NOT_FOUND"},
	entityservice.CodeConflict:           {http.StatusConflict, "CONFLICT"},
	entityservice.CodeTranslation:        {http.StatusUnprocessableEntity, "INVALID_CRITERIA"},
	entityservice.CodeInvalidEntityType:  {http.StatusBadRequest, "INVALID_ENTITY_TYPE"},
	entityservice.CodeRepositoryNotFound: {http.StatusNotFound, "UNKNOWN_ENTITY"},
	entityservice.CodeCapability:         {http.StatusMethodNotAllowed, "OPERATION_NOT_SUPPORTED"},
	entityservice.CodeTransaction:        {http.StatusInternalServerError, "TRANSACTION_FAILED"},
}

// StatusOf HTTP status and error code of err.
func StatusOf(err error) (int, string) {
	if m, ok := problemMap[entityservice.AsProblem(err).Code()]; ok {
		return m.status, m.code
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// ============================================================================
// 辅助函数
// ============================================================================

func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// captureStack 捕获调用栈（用于错误日志）
func captureStack(skip int) []string {
	var pcs [16]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	stack := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		frame, more := frames.Next()
		if frame.Function != "" {
			stack = append(stack, frame.Function)
		}
		if !more {
			break
		}
	}
	return stack
}

// extractStack 优先提取错误发生点的堆栈，否则捕获处理点堆栈
func extractStack(err error) []string {
	var stacker shared.Stacker
	if errors.As(err, &stacker) {
		if stack := stacker.Stack(); len(stack) > 0 {
			return stack
		}
	}
	return captureStack(4)
}

// ============================================================================
// 错误处理函数
// ============================================================================

// HandleError 处理参数绑定等框架层错误
func HandleError(c *gin.Context, err error, message string, code int) {
	requestID := GetRequestID(c)

	logger.FromContext(c.Request.Context()).Warn(message,
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Int("status", code),
		zap.Error(err))

	c.JSON(code, &Response{
		Success:   false,
		Error:     "BAD_REQUEST",
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}

// HandleAppError 按 Problem 码映射 HTTP 状态码
// 5xx 记录完整错误链和堆栈，客户端只看到 "internal server error"
func HandleAppError(c *gin.Context, err error) {
	requestID := GetRequestID(c)
	status, code := StatusOf(err)

	fields := []zap.Field{
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("error_code", code),
		zap.Int("http_status", status),
		zap.Error(err),
	}

	message := entityservice.AsProblem(err).Message()
	log := logger.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error(message, append(fields, zap.Strings("stack", extractStack(err)))...)
		message = "internal server error"
	} else {
		log.Warn(message, fields...)
	}

	c.JSON(status, &Response{
		Success:   false,
		Error:     code,
		Message:   message,
		Code:      status,
		RequestID: requestID,
	})
}

// ============================================================================
// 成功响应函数
// ============================================================================

func HandleSuccess(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, &Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Code:      http.StatusOK,
		RequestID: GetRequestID(c),
	})
}

func HandleCreated(c *gin.Context, data any, message string) {
	c.JSON(http.StatusCreated, &Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Code:      http.StatusCreated,
		RequestID: GetRequestID(c),
	})
}

func HandleNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func HandlePaginated(c *gin.Context, data any, pagination Pagination, message string) {
	c.JSON(http.StatusOK, &PaginatedResponse{
		Success:    true,
		Data:       data,
		Pagination: pagination,
		Message:    message,
		Code:       http.StatusOK,
		RequestID:  GetRequestID(c),
	})
}
