package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
)

// MetricsMiddleware counts requests per route template in CloudWatch. It is
// a no-op when the client is nil or disabled.
func MetricsMiddleware(metricsClient *awspkg.MetricsClient, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !metricsClient.IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)
		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dimensions := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusCodeToRange(statusCode),
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metricsClient.RecordLatency(ctx, awspkg.MetricHTTPLatency, duration, dimensions)
			for _, name := range countersFor(statusCode) {
				_ = metricsClient.RecordCount(ctx, name, dimensions)
			}
		}()
	}
}

func countersFor(statusCode int) []string {
	switch {
	case statusCode >= 500:
		return []string{awspkg.MetricHTTPRequests, awspkg.MetricHTTPErrors, awspkg.MetricHTTP5xx}
	case statusCode >= 400:
		return []string{awspkg.MetricHTTPRequests, awspkg.MetricHTTPErrors, awspkg.MetricHTTP4xx}
	default:
		return []string{awspkg.MetricHTTPRequests}
	}
}

func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
