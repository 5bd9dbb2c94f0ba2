package engine

import (
	"context"
	"time"

	"github.com/dexsentinel/engine/internal/domain"
)

// ThoughtLogEntry is one recommendation or assessment worth narrating.
// The actual narrative generator lives outside this package; this hook
// point exists purely so one can be plugged in later.
type ThoughtLogEntry struct {
	PairID domain.PairID
	Source string // "risk_engine" or "smart_lane_pipeline"
	Recommendation string
	Reasoning []string
	RecordedAt time.Time
}

// ThoughtLogSink receives a ThoughtLogEntry after the Smart-Lane Pipeline
// produces a recommendation for a new pair; the Risk Engine's assessments
// are not recorded separately. Implementations must not block the
// caller for long; the default NoopThoughtLogSink does nothing.
type ThoughtLogSink interface {
	Record(ctx context.Context, entry ThoughtLogEntry) error
}

// NoopThoughtLogSink discards every entry.
type NoopThoughtLogSink struct{}

// Record implements ThoughtLogSink.
func (NoopThoughtLogSink) Record(ctx context.Context, entry ThoughtLogEntry) error { return nil }
