package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncMergeCodeIssued()                         {}
func (n *NoopRecorder) IncMergeCodeRedeemed(outcome string)         {}
func (n *NoopRecorder) IncMergeCompleted(status string)             {}
func (n *NoopRecorder) ObserveMergeDuration(duration time.Duration) {}
func (n *NoopRecorder) AddMergedResources(kind string, count int)   {}
func (n *NoopRecorder) IncMergeItemFailed(kind, status string)      {}
func (n *NoopRecorder) IncCollisionCheck(found bool)                {}
func (n *NoopRecorder) IncConversion(status string)                 {}
func (n *NoopRecorder) IncEventPublished(status string)             {}
