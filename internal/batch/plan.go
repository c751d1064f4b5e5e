// Package batch packs an ordered list of resolved configurations into
// scheduler array slots. Slot i holds configs [i*PerJob, (i+1)*PerJob), so the
// last slot may be short.
package batch

import (
	"errors"
	"fmt"

	"github.com/kingrea/gridlaunch/internal/grid"
)

// ErrInvalidPerJob indicates a per-job parallelism below one.
var ErrInvalidPerJob = errors.New("batch: per_job must be >= 1")

// Plan is an immutable assignment of configs to array slots.
type Plan struct {
	configs []grid.ResolvedConfig
	perJob  int
}

// New builds a plan. The config slice is copied.
func New(configs []grid.ResolvedConfig, perJob int) (Plan, error) {
	if perJob < 1 {
		return Plan{}, fmt.Errorf("%w (got %d)", ErrInvalidPerJob, perJob)
	}
	return Plan{
		configs: append([]grid.ResolvedConfig(nil), configs...),
		perJob:  perJob,
	}, nil
}

// Len returns the number of configs in the plan.
func (p Plan) Len() int { return len(p.configs) }

// PerJob returns how many configs share one slot.
func (p Plan) PerJob() int { return p.perJob }

// NumJobs is ceil(Len/PerJob).
func (p Plan) NumJobs() int {
	if p.perJob < 1 {
		return 0
	}
	return (len(p.configs) + p.perJob - 1) / p.perJob
}

// IsArray reports whether the plan needs an array submission.
func (p Plan) IsArray() bool { return p.NumJobs() > 1 }

// Configs returns a copy of the ordered configs.
func (p Plan) Configs() []grid.ResolvedConfig {
	return append([]grid.ResolvedConfig(nil), p.configs...)
}

// SlotOf returns the slot that runs config index i.
func (p Plan) SlotOf(i int) int {
	return i / p.perJob
}

// Slot returns the configs assigned to slot s, or nil when s is out of range.
func (p Plan) Slot(s int) []grid.ResolvedConfig {
	if s < 0 || s >= p.NumJobs() {
		return nil
	}
	start := s * p.perJob
	end := start + p.perJob
	if end > len(p.configs) {
		end = len(p.configs)
	}
	return append([]grid.ResolvedConfig(nil), p.configs[start:end]...)
}

// Slots returns every slot in order.
func (p Plan) Slots() [][]grid.ResolvedConfig {
	n := p.NumJobs()
	slots := make([][]grid.ResolvedConfig, 0, n)
	for s := 0; s < n; s++ {
		slots = append(slots, p.Slot(s))
	}
	return slots
}
