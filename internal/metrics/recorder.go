package metrics

import "time"

// Stage names a timed step of a build.
type Stage string

const (
	StageVersionCheck Stage = "version_check"
	StageLockWait     Stage = "lock_wait"
	StageCompile      Stage = "compile"
	StageRestore      Stage = "restore"
)

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// BuildOutcomeLabel is the final status of one Build call.
type BuildOutcomeLabel string

const (
	BuildOutcomeNotNeeded BuildOutcomeLabel = "not_needed"
	BuildOutcomeSuccess   BuildOutcomeLabel = "success"
	BuildOutcomeFailed    BuildOutcomeLabel = "failed" // compiler reported errors
	BuildOutcomeError     BuildOutcomeLabel = "error"  // anything else went wrong
)

// Recorder defines observability hooks for build and stage metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveStageDuration(stage Stage, d time.Duration)
	IncStageResult(stage Stage, result ResultLabel)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcomeLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(Stage, time.Duration) {}
func (NoopRecorder) IncStageResult(Stage, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)        {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)         {}
