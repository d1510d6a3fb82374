package metrics

import (
	"errors"
	"maps"
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
	obserrors "github.com/rohittupe/prediction-service/internal/observability/errors"
	"github.com/rohittupe/prediction-service/internal/observability/statsd"
)

// Outcome tags shared by the job runner and the reaper.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Stages a prediction job passes through.
const (
	StageScheduled = "scheduled"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

const (
	MetricJobLifecycle = "prediction.job.lifecycle"
	MetricJobElapsed   = "prediction.job.elapsed"
	MetricJobsInFlight = "prediction.jobs.in_flight"
)

// JobEvent is one stage change of a prediction job.
type JobEvent struct {
	Stage   string
	Outcome string
	Elapsed time.Duration
	Cause   error
}

// OutcomeOf maps the error returned by a store transition to an outcome tag.
// A job that another writer already finished counts as skipped.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrJobAlreadyTerminal):
		return OutcomeSkipped
	default:
		return OutcomeFailed
	}
}

// RecordJob counts ev under MetricJobLifecycle and, when it carries a
// duration, times it under MetricJobElapsed. A nil sink records nothing.
func RecordJob(sink statsd.Sink, ev JobEvent) {
	if sink == nil {
		return
	}
	tags := map[string]string{"stage": ev.Stage, "outcome": ev.Outcome}
	if ev.Outcome == OutcomeFailed && ev.Cause != nil {
		if class := obserrors.Classify(ev.Cause); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(MetricJobLifecycle, 1, tags)
	if ev.Elapsed <= 0 {
		return
	}
	sink.Timing(MetricJobElapsed, ev.Elapsed, CloneTags(tags))
}

// CloneTags copies tags so a sink that retains the map cannot see later writes.
func CloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	return maps.Clone(tags)
}
