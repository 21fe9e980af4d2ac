package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/almoner-platform/almoner-allocation/internal/metrics"
)

// Metrics HTTP 指标采集中间件
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		// FullPath 带 :param 占位符，避免指标基数膨胀；未命中路由时回退原始路径
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
			if len(path) > 100 {
				path = "/..."
			}
		}

		metrics.RecordHTTPRequest(c.Request.Method, path, status, duration)
	}
}
