// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Merge code metrics
	IncMergeCodeIssued()
	IncMergeCodeRedeemed(outcome string) // outcome: "success", "invalid", "self_merge", "stale", "error"

	// Merge job metrics
	IncMergeCompleted(status string) // status: job status after the run
	ObserveMergeDuration(duration time.Duration)
	AddMergedResources(kind string, n int)
	IncMergeItemFailed(kind, status string)

	// Identity metrics
	IncCollisionCheck(found bool)

	// Conversion metrics
	IncConversion(status string)

	// Event stream metrics
	IncEventPublished(status string) // status: "success" or "dropped"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
