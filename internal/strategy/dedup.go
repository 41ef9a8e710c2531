package strategy

import (
	"sync"

	"trading-signalv1/internal/model"
)

// Deduper remembers the last emitted action so the same signal is not
// repeated for the same closed bar.
type Deduper interface {
	// Observe records an emitted actionable decision.
	Observe(a model.Action, bar model.BarID)
	// LastDecisionFor returns the action emitted for bar, if any.
	LastDecisionFor(bar model.BarID) (model.Action, bool)
	// Reset forgets everything; called at session start.
	Reset()
}

// MemoryDeduper keeps one (action, bar) pair in memory. It does not survive
// a restart.
type MemoryDeduper struct {
	mu     sync.Mutex
	action model.Action
	bar    model.BarID
	set    bool
}

// NewMemoryDeduper returns an empty in-memory deduper.
func NewMemoryDeduper() *MemoryDeduper { return &MemoryDeduper{} }

func (d *MemoryDeduper) Observe(a model.Action, bar model.BarID) {
	d.mu.Lock()
	d.action, d.bar, d.set = a, bar, true
	d.mu.Unlock()
}

func (d *MemoryDeduper) LastDecisionFor(bar model.BarID) (model.Action, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.set || d.bar != bar {
		return model.ActionHold, false
	}
	return d.action, true
}

func (d *MemoryDeduper) Reset() {
	d.mu.Lock()
	d.action, d.bar, d.set = model.ActionHold, 0, false
	d.mu.Unlock()
}

// NoopDeduper never suppresses anything. Useful for stateless harnesses.
type NoopDeduper struct{}

func (NoopDeduper) Observe(model.Action, model.BarID) {}
func (NoopDeduper) LastDecisionFor(model.BarID) (model.Action, bool) {
	return model.ActionHold, false
}
func (NoopDeduper) Reset() {}
