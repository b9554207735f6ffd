package priority

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/errors"
)

// Phase is the state of a ranking run.
type Phase string

const (
	PhaseInit          Phase = "INIT"
	PhaseTargetScored  Phase = "TARGET_SCORED"
	PhaseFiltered      Phase = "FILTERED"
	PhasePopularScored Phase = "POPULAR_SCORED"
	PhaseSorted        Phase = "SORTED"
	PhaseDone          Phase = "DONE"
)

var phaseOrder = []Phase{
	PhaseInit,
	PhaseTargetScored,
	PhaseFiltered,
	PhasePopularScored,
	PhaseSorted,
	PhaseDone,
}

func (p Phase) next() (Phase, bool) {
	for i, ph := range phaseOrder {
		if ph == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

// machine enforces that a run visits every phase in order.
type machine struct {
	phase Phase
}

func (m *machine) advance(to Phase) error {
	want, ok := m.next()
	if !ok || to != want {
		return fmt.Errorf("%w: illegal phase transition %s -> %s", apperrors.ErrInternal, m.phase, to)
	}
	m.phase = to
	return nil
}

func (m *machine) next() (Phase, bool) {
	return m.phase.next()
}
