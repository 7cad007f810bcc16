// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent/hitl"
	"github.com/BaSui01/stageflow/workflow"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Workflow 指标
	workflowRunsTotal    *prometheus.CounterVec
	workflowRunDuration  *prometheus.HistogramVec
	workflowActiveGauge  prometheus.Gauge
	agentExecutionsTotal *prometheus.CounterVec
	agentExecutionTime   *prometheus.HistogramVec

	// 审批指标
	approvalsTotal *prometheus.CounterVec
	approvalWait   *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

var (
	_ workflow.Recorder = (*Collector)(nil)
	_ hitl.Recorder     = (*Collector)(nil)
)

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Workflow 指标
	c.workflowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"workflow_type", "status"},
	)

	c.workflowRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"workflow_type"},
	)

	c.workflowActiveGauge = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Number of workflow runs in progress",
		},
	)

	c.agentExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions",
		},
		[]string{"agent_id", "status"},
	)

	c.agentExecutionTime = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_id"},
	)

	// 审批指标
	c.approvalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Total number of resolved approval requests",
		},
		[]string{"status"},
	)

	c.approvalWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "approval_wait_seconds",
			Help:      "Time from approval request to decision in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 3600, 86400},
		},
		[]string{"status"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔀 Workflow 指标记录
// =============================================================================

// RecordWorkflow 记录一次工作流运行
func (c *Collector) RecordWorkflow(workflowType string, success bool, duration time.Duration) {
	c.workflowRunsTotal.WithLabelValues(workflowType, outcome(success)).Inc()
	c.workflowRunDuration.WithLabelValues(workflowType).Observe(duration.Seconds())
}

// RecordAgent 记录 Agent 执行
func (c *Collector) RecordAgent(agentID string, success bool, duration time.Duration) {
	c.agentExecutionsTotal.WithLabelValues(agentID, outcome(success)).Inc()
	c.agentExecutionTime.WithLabelValues(agentID).Observe(duration.Seconds())
}

// SetActiveWorkflows 设置运行中的工作流数量
func (c *Collector) SetActiveWorkflows(n int) {
	c.workflowActiveGauge.Set(float64(n))
}

// =============================================================================
// 🙋 审批指标记录
// =============================================================================

// RecordApproval 记录审批结果与等待时间
func (c *Collector) RecordApproval(status string, wait time.Duration) {
	c.approvalsTotal.WithLabelValues(status).Inc()
	c.approvalWait.WithLabelValues(status).Observe(wait.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
