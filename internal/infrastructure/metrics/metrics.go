package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var sessionStates = []string{"disconnected", "connecting", "connected", "ready", "error"}

var (
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mail_assistant_session_state",
			Help: "Current chat session state (1 for the active state, 0 otherwise).",
		},
		[]string{"state"},
	)
	reconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mail_assistant_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_assistant_ws_frames_total",
			Help: "Total number of websocket frames by direction and kind.",
		},
		[]string{"direction", "kind"},
	)
	framesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_assistant_ws_frames_dropped_total",
			Help: "Inbound frames that could not be parsed or routed.",
		},
		[]string{"reason"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mail_assistant_outbound_queue_depth",
			Help: "Messages waiting for the session to become ready.",
		},
	)
	controlRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_assistant_control_requests_total",
			Help: "Total number of control API requests.",
		},
		[]string{"method", "route", "status"},
	)
	controlRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_assistant_control_request_duration_seconds",
			Help:    "Control API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		sessionState,
		reconnectAttemptsTotal,
		framesTotal,
		framesDroppedTotal,
		queueDepth,
		controlRequestsTotal,
		controlRequestDuration,
	)
}

// SetSessionState 只保留一个状态为 1
func SetSessionState(state string) {
	for _, s := range sessionStates {
		if s == state {
			sessionState.WithLabelValues(s).Set(1)
		} else {
			sessionState.WithLabelValues(s).Set(0)
		}
	}
}

func IncReconnectAttempt() {
	reconnectAttemptsTotal.Inc()
}

func IncInboundFrame(kind string) {
	framesTotal.WithLabelValues("in", kind).Inc()
}

func IncOutboundFrame(kind string) {
	framesTotal.WithLabelValues("out", kind).Inc()
}

func IncDroppedFrame(reason string) {
	framesDroppedTotal.WithLabelValues(reason).Inc()
}

func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// HTTPMetricsMiddleware 控制 API 的请求计数与耗时
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		controlRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		controlRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
