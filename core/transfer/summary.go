package transfer

import (
	"errors"
	"sort"
	"time"

	"github.com/vbrik/cta-data-relay/core/reconcile"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Summary aggregates the results of one run.
type Summary struct {
	Direction reconcile.Direction
	DryRun    bool
	Planned   int
	Done      int
	// AlreadyPresent counts done items whose destination already held the object.
	AlreadyPresent int
	Failed         int
	Cancelled      int
	Bytes          int64
	Elapsed        time.Duration
	Failures       []*StageError
}

// OK reports whether every planned item completed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Cancelled == 0
}

// FailedKeys returns the sorted keys of items that did not complete.
func (s *Summary) FailedKeys() []string {
	keys := make([]string, len(s.Failures))
	for i, f := range s.Failures {
		keys[i] = f.Key
	}
	return keys
}

func summarize(direction reconcile.Direction, results []Result, elapsed time.Duration) *Summary {
	s := &Summary{Direction: direction, Planned: len(results), Elapsed: elapsed}
	for _, r := range results {
		switch {
		case r.Err == nil:
			s.Done++
			s.Bytes += r.Bytes
			if r.AlreadyPresent {
				s.AlreadyPresent++
			}
		case errors.Is(r.Err, ErrCancelled):
			s.Cancelled++
			s.Failures = append(s.Failures, r.Err)
		default:
			s.Failed++
			s.Failures = append(s.Failures, r.Err)
		}
	}
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].Key < s.Failures[j].Key })
	return s
}

func dryRunSummary(direction reconcile.Direction, plan *reconcile.Plan) *Summary {
	return &Summary{Direction: direction, DryRun: true, Planned: len(plan.Pending())}
}

// Log writes the summary and every failure.
func (s *Summary) Log(l *zap.Logger) {
	fields := []zap.Field{
		zap.String("direction", string(s.Direction)),
		zap.Bool("dry_run", s.DryRun),
		zap.Int("planned", s.Planned),
		zap.Int("done", s.Done),
		zap.Int("already_present", s.AlreadyPresent),
		zap.Int("failed", s.Failed),
		zap.Int("cancelled", s.Cancelled),
		zap.String("bytes", humanize.IBytes(uint64(s.Bytes))),
		zap.Duration("elapsed", s.Elapsed),
	}
	for _, f := range s.Failures {
		l.Warn("item failed",
			zap.String("key", f.Key),
			zap.String("stage", string(f.Stage)),
			zap.NamedError("kind", f.Kind),
			zap.Error(f.Err),
		)
	}
	if s.OK() {
		l.Info("run complete", fields...)
	} else {
		l.Error("run incomplete", fields...)
	}
}
