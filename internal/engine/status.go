package engine

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// EngineState is the process's overall health.
type EngineState string

const (
	StateRunning EngineState = "RUNNING"
	StateDegraded EngineState = "DEGRADED"
	StateHalted EngineState = "HALTED"
)

// EngineStatusSnapshot is a point-in-time view of the whole process,
// returned by Engine.Status and renderable via tablewriter. It is not
// published on the engine.status event bus topic.
type EngineStatusSnapshot struct {
	Status EngineState
	ActiveChains []int64
	DiscoveryRate float64 // pairs/hour, trailing window
	QueueDepth int
	BreakerState string
}

// FastLaneStatusSnapshot is a point-in-time view of one chain's fast-lane
// worker pool.
type FastLaneStatusSnapshot struct {
	ChainID int64
	QueueDepth int
	ActiveWorkers int
	AvgExecutionTimeMs float64
	SuccessRate float64
}

// RenderEngineStatus writes s as a table to w.
func RenderEngineStatus(w io.Writer, s EngineStatusSnapshot) {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	table.Append("status", string(s.Status))
	table.Append("active_chains", fmt.Sprintf("%v", s.ActiveChains))
	table.Append("discovery_rate_per_hour", fmt.Sprintf("%.1f", s.DiscoveryRate))
	table.Append("queue_depth", fmt.Sprintf("%d", s.QueueDepth))
	table.Append("breaker_state", s.BreakerState)
	table.Render()
}

// RenderFastLaneStatus writes one row per chain's fast-lane snapshot.
func RenderFastLaneStatus(w io.Writer, snaps []FastLaneStatusSnapshot) {
	table := tablewriter.NewWriter(w)
	table.Header("Chain", "Queue Depth", "Active Workers", "Avg Exec ms", "Success Rate")
	for _, s := range snaps {
		table.Append(
			fmt.Sprintf("%d", s.ChainID),
			fmt.Sprintf("%d", s.QueueDepth),
			fmt.Sprintf("%d", s.ActiveWorkers),
			fmt.Sprintf("%.1f", s.AvgExecutionTimeMs),
			fmt.Sprintf("%.1f%%", s.SuccessRate*100),
		)
	}
	table.Render()
}
