// Package telemetry holds the process-wide inline metrics registry: bounded
// windows of recent latency observations plus monotonic counters, sliced by
// trigger type. Writes are non-blocking and never fail observably; telemetry
// errors are dropped. Reads compute percentiles on demand over a copy.
package telemetry

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// Registry is the inline telemetry registry. A single instance is injected
// through the dispatcher and worker; tests substitute a fresh one.
type Registry struct {
	windowSize    int
	blockWarnRate float64
	logger        *slog.Logger

	// Mutations are serialized per trigger.
	triggers map[config.TriggerType]*triggerState
}

type triggerState struct {
	mu sync.Mutex

	ackLatencies    *ring
	resultLatencies *ring
	accuracyDeltas  *ring
	recentBlocks    *ring // 1.0 per block, windowed for the alerting rate

	permissionBlocks       int64
	permissionBlocksByChat map[config.ChatType]int64
	failuresByReason       map[config.FailureReason]int64
}

// ring is a bounded append-only window of float64 samples.
type ring struct {
	buf  []float64
	next int
	full bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]float64, 0, size)}
}

func (r *ring) add(v float64) {
	if cap(r.buf) == 0 {
		return
	}
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, v)
		return
	}
	r.full = true
	r.buf[r.next] = v
	r.next = (r.next + 1) % cap(r.buf)
}

func (r *ring) values() []float64 {
	out := make([]float64, len(r.buf))
	copy(out, r.buf)
	return out
}

func (r *ring) len() int { return len(r.buf) }

// NewRegistry creates a telemetry registry with the given per-trigger window
// size and permission-block warning rate.
func NewRegistry(inline *config.InlineConfig) *Registry {
	r := &Registry{
		windowSize:    inline.TelemetryWindowSize,
		blockWarnRate: inline.PermissionBlockWarnRate,
		logger:        slog.Default().With("component", "telemetry"),
		triggers:      make(map[config.TriggerType]*triggerState, 4),
	}
	for _, t := range config.AllTriggerTypes() {
		r.triggers[t] = &triggerState{
			ackLatencies:           newRing(r.windowSize),
			resultLatencies:        newRing(r.windowSize),
			accuracyDeltas:         newRing(r.windowSize),
			recentBlocks:           newRing(r.windowSize),
			permissionBlocksByChat: make(map[config.ChatType]int64),
			failuresByReason:       make(map[config.FailureReason]int64),
		}
	}
	return r
}

func (r *Registry) state(trigger config.TriggerType) *triggerState {
	if s, ok := r.triggers[trigger]; ok {
		return s
	}
	// Unknown trigger: drop silently, writers must not fail.
	return nil
}

// RecordAckLatency records a webhook acknowledgement latency observation.
func (r *Registry) RecordAckLatency(trigger config.TriggerType, ms float64) {
	s := r.state(trigger)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackLatencies.add(ms)
}

// RecordResultLatency records an enqueue-to-result latency observation.
func (r *Registry) RecordResultLatency(trigger config.TriggerType, ms float64) {
	s := r.state(trigger)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultLatencies.add(ms)
}

// RecordPermissionBlock records a platform delivery refusal. A warning is
// logged when the per-trigger block rate in the current window exceeds the
// configured threshold (alerting hook).
func (r *Registry) RecordPermissionBlock(trigger config.TriggerType, chatType config.ChatType) {
	s := r.state(trigger)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.permissionBlocks++
	s.permissionBlocksByChat[chatType]++
	s.recentBlocks.add(1)
	blocks := s.recentBlocks.len()
	samples := s.resultLatencies.len()
	s.mu.Unlock()

	rate := float64(blocks) / math.Max(1, float64(blocks+samples))
	if rate > r.blockWarnRate {
		r.logger.Warn("permission_block rate above threshold",
			"inline_trigger", string(trigger),
			"chat_type", string(chatType),
			"window_blocks", blocks,
			"window_rate", rate,
			"threshold", r.blockWarnRate)
	}
}

// RecordFailure increments the failure counter for the given reason.
func (r *Registry) RecordFailure(trigger config.TriggerType, reason config.FailureReason) {
	s := r.state(trigger)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failuresByReason[reason]++
}

// RecordAccuracyDelta records an absolute percentage delta between an
// estimate and known ground truth.
func (r *Registry) RecordAccuracyDelta(trigger config.TriggerType, pct float64) {
	s := r.state(trigger)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accuracyDeltas.add(math.Abs(pct))
}

// Snapshot returns a consistent copy-on-read projection. With an empty
// trigger it merges all triggers; otherwise it is scoped to one.
func (r *Registry) Snapshot(trigger config.TriggerType) *models.InlineMetricsSnapshot {
	snap := &models.InlineMetricsSnapshot{
		PermissionBlocksBy: make(map[config.ChatType]int64),
		FailureReasons:     make(map[config.FailureReason]int64),
	}

	var acks, results, deltas []float64
	for t, s := range r.triggers {
		if trigger != "" && t != trigger {
			continue
		}
		s.mu.Lock()
		acks = append(acks, s.ackLatencies.values()...)
		results = append(results, s.resultLatencies.values()...)
		deltas = append(deltas, s.accuracyDeltas.values()...)
		snap.PermissionBlocks += s.permissionBlocks
		for ct, n := range s.permissionBlocksByChat {
			snap.PermissionBlocksBy[ct] += n
		}
		for reason, n := range s.failuresByReason {
			snap.FailureReasons[reason] += n
		}
		s.mu.Unlock()
	}

	snap.SampleSize = len(results)
	snap.AckP95Ms = P95(acks)
	snap.ResultP95Ms = P95(results)
	snap.AccuracyDeltaSamples = len(deltas)
	snap.AvgAccuracyDeltaPct = mean(deltas)
	return snap
}

// Reset clears all windows and counters. Test hook only.
func (r *Registry) Reset() {
	for _, s := range r.triggers {
		s.mu.Lock()
		s.ackLatencies = newRing(r.windowSize)
		s.resultLatencies = newRing(r.windowSize)
		s.accuracyDeltas = newRing(r.windowSize)
		s.recentBlocks = newRing(r.windowSize)
		s.permissionBlocks = 0
		s.permissionBlocksByChat = make(map[config.ChatType]int64)
		s.failuresByReason = make(map[config.FailureReason]int64)
		s.mu.Unlock()
	}
}

// P95 computes the 95th percentile by sorting a copy of the samples.
// With fewer than 5 samples it returns the max; empty input yields 0.
func P95(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)
	if n < 5 {
		return sorted[n-1]
	}
	idx := int(math.Ceil(0.95*float64(n))) - 1
	return sorted[idx]
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
