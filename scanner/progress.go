package scanner

import (
	"go.uber.org/zap"

	"mcwizard/notify"
)

// Phase names a stage of a scan. Phases run in declaration order.
type Phase string

const (
	PhaseEnumerate Phase = "enumerate"
	PhaseAnalyze   Phase = "analyze"
	PhaseModels    Phase = "models"
	PhaseAssets    Phase = "assets"
	PhaseFallback  Phase = "fallback"
	PhaseFinalize  Phase = "finalize"
	PhaseComplete  Phase = "complete"
)

// Progress is one status update of a running scan.
type Progress struct {
	Phase   Phase          `json:"phase" yaml:"phase"`
	Message string         `json:"message,omitempty" yaml:"message,omitempty"`
	Percent int            `json:"percent" yaml:"percent"`
	Details map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// reporter keeps percent non-decreasing for the lifetime of one scan.
type reporter struct {
	sink notify.Sink[Progress]
	log  *zap.SugaredLogger
	last int
}

func (r *reporter) emit(phase Phase, percent int, message string) {
	r.emitDetails(phase, percent, message, nil)
}

// emitDetails is emit with structured counters attached for richer views.
func (r *reporter) emitDetails(phase Phase, percent int, message string, details map[string]any) {
	if percent < r.last {
		percent = r.last
	}
	if percent > 100 {
		percent = 100
	}
	r.last = percent
	notify.Deliver(r.log, r.sink, Progress{Phase: phase, Message: message, Percent: percent, Details: details})
}
