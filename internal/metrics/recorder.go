package metrics

import "time"

// ResultLabel enumerates operation outcomes for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultNoop     ResultLabel = "noop"
	ResultRejected ResultLabel = "rejected"
	ResultConflict ResultLabel = "conflict"
	ResultFailed   ResultLabel = "failed"
)

// Recorder defines observability hooks for edits, commits and sync.
// Implementations may forward to Prometheus or discard everything.
type Recorder interface {
	IncSaveResult(result ResultLabel)
	ObserveSaveOperations(n int)
	ObserveCommitDuration(strategy string, d time.Duration, result ResultLabel)
	IncSyncResult(result ResultLabel)
	ObserveStatusRefresh(d time.Duration)
	SetRelation(relation string, behindBy, aheadBy int)
	IncRemoteHeadCheck(changed bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not wired).
type NoopRecorder struct{}

func (NoopRecorder) IncSaveResult(ResultLabel)                                 {}
func (NoopRecorder) ObserveSaveOperations(int)                                 {}
func (NoopRecorder) ObserveCommitDuration(string, time.Duration, ResultLabel) {}
func (NoopRecorder) IncSyncResult(ResultLabel)                                 {}
func (NoopRecorder) ObserveStatusRefresh(time.Duration)                        {}
func (NoopRecorder) SetRelation(string, int, int)                              {}
func (NoopRecorder) IncRemoteHeadCheck(bool)                                   {}
