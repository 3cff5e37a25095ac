package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObserveStageDuration(StageCompile, time.Second)
		r.IncStageResult(StageCompile, ResultFailed)
		r.ObserveBuildDuration(time.Second)
		r.IncBuildOutcome(BuildOutcomeSuccess)
	})
}
