package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "quoth"

// Metrics holds all Quoth metric instruments.
type Metrics struct {
	ToolCalls        metric.Int64Counter
	SearchesServed   metric.Int64Counter
	SearchFallbacks  metric.Int64Counter
	SearchLatency    metric.Float64Histogram
	ChunksEmbedded   metric.Int64Counter
	ChunksReused     metric.Int64Counter
	ProposalsCreated metric.Int64Counter
	BusMessages      metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("quoth.toolcalls",
		metric.WithDescription("Number of MCP tool calls"))
	if err != nil {
		return nil, err
	}

	m.SearchesServed, err = meter.Int64Counter("quoth.searches.served",
		metric.WithDescription("Number of semantic searches served"))
	if err != nil {
		return nil, err
	}

	m.SearchFallbacks, err = meter.Int64Counter("quoth.searches.fallback",
		metric.WithDescription("Number of searches served by keyword fallback"))
	if err != nil {
		return nil, err
	}

	m.SearchLatency, err = meter.Float64Histogram("quoth.search.duration_seconds",
		metric.WithDescription("Search pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.ChunksEmbedded, err = meter.Int64Counter("quoth.index.chunks_embedded",
		metric.WithDescription("Chunks embedded during incremental sync"))
	if err != nil {
		return nil, err
	}

	m.ChunksReused, err = meter.Int64Counter("quoth.index.chunks_reused",
		metric.WithDescription("Chunks reused as-is during incremental sync"))
	if err != nil {
		return nil, err
	}

	m.ProposalsCreated, err = meter.Int64Counter("quoth.proposals.created",
		metric.WithDescription("Proposals persisted for approval"))
	if err != nil {
		return nil, err
	}

	m.BusMessages, err = meter.Int64Counter("quoth.bus.messages",
		metric.WithDescription("Agent bus messages accepted"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
