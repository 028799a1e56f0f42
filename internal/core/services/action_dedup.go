package services

import (
	"sync"

	"github.com/AgentToolkit/agent-mentor/internal/core/domain"
)

// ActionDeduper collapses actions with equal code identity across
// concurrently processed traces. The first writer wins for a given
// code_id; later traces observe the canonical action.
type ActionDeduper struct {
	mu             sync.Mutex
	codeIDToAction map[string]*domain.Action
}

func NewActionDeduper() *ActionDeduper {
	return &ActionDeduper{codeIDToAction: make(map[string]*domain.Action)}
}

// Canonical returns the canonical action for the candidate's code id,
// registering the candidate when the code id is new.
func (d *ActionDeduper) Canonical(candidate *domain.Action) *domain.Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.codeIDToAction[candidate.CodeID]; ok {
		return existing
	}
	d.codeIDToAction[candidate.CodeID] = candidate
	return candidate
}

// Len reports how many distinct code ids are registered.
func (d *ActionDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.codeIDToAction)
}
