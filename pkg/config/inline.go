package config

import "time"

// InlineConfig contains tunables for the inline-analysis pipeline.
type InlineConfig struct {
	// AckTarget is the SLA target for webhook acknowledgement latency.
	AckTarget time.Duration

	// AccuracyTolerancePct is the ± tolerance used for accuracy-delta reporting.
	AccuracyTolerancePct float64

	// PermissionNoticeTTL is how long a "we already told this user" marker lives.
	PermissionNoticeTTL time.Duration

	// MediaGroupWindow is how long the aggregator waits for album siblings
	// after the first update arrives.
	MediaGroupWindow time.Duration

	// MediaGroupQuiet is the minimum idle period before an open buffer
	// may finalize inside the window.
	MediaGroupQuiet time.Duration

	// MediaGroupEviction drops a buffer that never finalized (malformed album).
	MediaGroupEviction time.Duration

	// TelemetryWindowSize is the per-trigger latency sample window.
	TelemetryWindowSize int

	// PermissionBlockWarnRate triggers a warning log when the per-trigger
	// block rate in the current window exceeds this fraction.
	PermissionBlockWarnRate float64
}

// DefaultInlineConfig returns the built-in inline pipeline defaults.
func DefaultInlineConfig() *InlineConfig {
	return &InlineConfig{
		AckTarget:               3 * time.Second,
		AccuracyTolerancePct:    5.0,
		PermissionNoticeTTL:     24 * time.Hour,
		MediaGroupWindow:        200 * time.Millisecond,
		MediaGroupQuiet:         50 * time.Millisecond,
		MediaGroupEviction:      2 * time.Second,
		TelemetryWindowSize:     100,
		PermissionBlockWarnRate: 0.5,
	}
}
