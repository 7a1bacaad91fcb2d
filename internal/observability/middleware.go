package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// routeLabel keeps metric cardinality bounded: unmatched requests share one label.
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}

// responseStatus reports 101 for handshakes that were hijacked by the
// upgrader, since gin never sees the switching-protocols line.
func responseStatus(c *gin.Context) int {
	status := c.Writer.Status()
	if status == http.StatusOK && websocket.IsWebSocketUpgrade(c.Request) {
		return http.StatusSwitchingProtocols
	}
	return status
}

// RequestLogger emits one line per HTTP request. Probe routes log at debug.
func RequestLogger(logger zerolog.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := responseStatus(c)
		route := routeLabel(c)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			if _, ok := skip[route]; ok {
				event = logger.Debug()
			} else {
				event = logger.Info()
			}
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP())
		if channel := c.GetHeader("channelid"); channel != "" {
			event = event.Str("channel", channel)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Msg("http_request")
	}
}

// RequestMetricsMiddleware records per-route HTTP metrics. Accepted handshakes
// are recorded as 101 once the gate hands the socket to the hub.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, routeLabel(c), responseStatus(c), time.Since(start))
	}
}
