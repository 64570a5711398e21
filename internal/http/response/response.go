package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/deptrack/deptrack/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// TrackResponse 采集响应结构
// attributed 与 outcome 仅在转化事件时出现；归因结果不改变 HTTP 状态
// 重复转化以 success=false 回告，其余归因失败仍视为采集成功
type TrackResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Attributed *bool  `json:"attributed,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
}

// Track 采集响应，HTTP 状态固定 200
func Track(c *gin.Context, resp TrackResponse) {
	c.JSON(http.StatusOK, resp)
}

// BadRequest 请求结构校验失败响应；required 列出缺失字段
func BadRequest(c *gin.Context, message string, required []string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":    message,
		"required": required,
	})
}

// Forbidden 鉴权失败响应
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, gin.H{
		"error": message,
	})
}

// TooManyRequests 限流响应；reset_time 为窗口重置的 Unix 秒
func TooManyRequests(c *gin.Context, reset time.Time) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "rate limit exceeded",
		"reset_time": reset.Unix(),
	})
}

// Unauthorized 管理端令牌校验失败响应
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}

// InternalError 内部错误响应；不向外透出错误细节
func InternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":     "internal server error",
		"timestamp": time.Now().Unix(),
	})
}

// SetRateLimitHeaders 回显限流状态；所有 /api/v1/track 响应都携带
func SetRateLimitHeaders(c *gin.Context, rate ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(rate.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(rate.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(rate.Reset.Unix(), 10))
}
