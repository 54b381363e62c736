package strategy

import "context"

// Regime labels recognized by the engine. The advisor may emit any label; only
// RegimeNoEdge carries gating semantics.
const (
	RegimeNoEdge  = "NO_EDGE"
	RegimeUnknown = "UNKNOWN"
)

// Advice is one regime assessment.
type Advice struct {
	Regime     string
	Confidence float64
}

// Advisor is an opaque market-regime classifier consulted before trend
// entries. The engine treats it as a black box: in shadow mode its output is
// telemetry only, in active mode a NO_EDGE regime vetoes the entry.
type Advisor interface {
	Assess(ctx context.Context, symbol string) (Advice, error)
}

// NullAdvisor always reports UNKNOWN with zero confidence, so neither shadow
// nor active mode ever blocks on it.
type NullAdvisor struct{}

func (NullAdvisor) Assess(context.Context, string) (Advice, error) {
	return Advice{Regime: RegimeUnknown}, nil
}
