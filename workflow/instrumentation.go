package workflow

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/stageflow/agent"
)

const instrumentationName = "github.com/BaSui01/stageflow/workflow"

// Recorder receives run-level observations, typically backed by Prometheus.
type Recorder interface {
	RecordWorkflow(workflowType string, success bool, d time.Duration)
	RecordAgent(agentID string, success bool, d time.Duration)
	SetActiveWorkflows(n int)
}

// instruments wraps the OTel tracer and meter used by the engine. With
// telemetry disabled the global providers are noop.
type instruments struct {
	tracer   trace.Tracer
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	// 指标创建失败时退化为 noop，不影响执行
	in.runs, _ = meter.Int64Counter("stageflow.workflow.runs",
		metric.WithDescription("Total number of workflow runs"),
		metric.WithUnit("{run}"))
	in.duration, _ = meter.Float64Histogram("stageflow.workflow.duration",
		metric.WithDescription("Workflow run duration"),
		metric.WithUnit("s"))
	return in
}

func (in *instruments) start(ctx context.Context, def Definition, executionID, sessionID string) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", def.ID),
			attribute.String("workflow.type", string(def.Type)),
			attribute.String("workflow.execution_id", executionID),
			attribute.String("session.id", sessionID),
		))
}

func (in *instruments) finish(ctx context.Context, def Definition, success bool, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow.type", string(def.Type)),
		attribute.Bool("success", success),
	)
	if in.runs != nil {
		in.runs.Add(ctx, 1, attrs)
	}
	if in.duration != nil {
		in.duration.Record(ctx, d.Seconds(), attrs)
	}
}

// recordAgents reports every member result. Loop keys are folded back to
// the agent id.
func recordAgents(rec Recorder, res *Result) {
	res.AgentResults.Each(func(key string, r *agent.Result) {
		id, _, _ := strings.Cut(key, "_iter")
		rec.RecordAgent(id, r.Success, r.Metrics.Duration)
	})
}
