package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_http_requests_total",
			Help: "Total number of HTTP requests processed by the barter service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barter_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "barter_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	reconcilePassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_reconcile_passes_total",
			Help: "Reconciliation passes by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	matchStrategyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barter_match_strategy_total",
			Help: "Transaction matches by winning strategy.",
		},
		[]string{"strategy"},
	)
	counterpartyWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_counterparty_write_failures_total",
			Help: "Confirmations persisted locally but not into the counterparty record.",
		},
	)
	completionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "barter_exchange_completions_total",
			Help: "Exchanges observed reaching completion.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		reconcilePassesTotal,
		matchStrategyTotal,
		counterpartyWriteFailuresTotal,
		completionsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

// IncReconcilePass counts one reconciliation pass; kind is confirm, passive
// or cross_merge.
func IncReconcilePass(kind, outcome string) {
	reconcilePassesTotal.WithLabelValues(kind, outcome).Inc()
}

func IncMatchStrategy(strategy string) {
	matchStrategyTotal.WithLabelValues(strategy).Inc()
}

func IncCounterpartyWriteFailure() {
	counterpartyWriteFailuresTotal.Inc()
}

func IncCompletion() {
	completionsTotal.Inc()
}
