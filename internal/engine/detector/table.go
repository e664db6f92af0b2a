package detector

import (
	"Go2NetGuard/internal/model"
	"sync/atomic"
)

type actionEntry struct {
	verdict    atomic.Uint32
	lastAttack atomic.Int64
}

// Entry is a point-in-time copy of one category's action state.
type Entry struct {
	Category   model.Category
	Verdict    model.Verdict
	LastAttack int64 // 0 if the category never breached
}

// ActionTable maps every category to its current verdict. Lanes read it
// without locking; only the aggregation leader writes it. An entry that was
// never written reads as Pass.
type ActionTable struct {
	entries [model.NumCategories]actionEntry
}

// NewActionTable returns a table with every category passing.
func NewActionTable() *ActionTable {
	return &ActionTable{}
}

// Verdict returns the category's verdict. Out-of-range categories pass.
func (t *ActionTable) Verdict(c model.Category) model.Verdict {
	if !c.Valid() {
		return model.Pass
	}
	return model.Verdict(t.entries[c].verdict.Load())
}

// LastAttack returns the time of the category's last breach, 0 if none.
func (t *ActionTable) LastAttack(c model.Category) int64 {
	if !c.Valid() {
		return 0
	}
	return t.entries[c].lastAttack.Load()
}

// Entry copies one category's state.
func (t *ActionTable) Entry(c model.Category) Entry {
	return Entry{Category: c, Verdict: t.Verdict(c), LastAttack: t.LastAttack(c)}
}

// States copies every category's state in index order.
func (t *ActionTable) States() [model.NumCategories]Entry {
	var out [model.NumCategories]Entry
	for i := range out {
		out[i] = t.Entry(model.Category(i))
	}
	return out
}

// disable records a breach at now and returns the previous verdict.
func (t *ActionTable) disable(c model.Category, now int64) model.Verdict {
	e := &t.entries[c]
	e.lastAttack.Store(now)
	return model.Verdict(e.verdict.Swap(uint32(model.Drop)))
}

// enable returns the category to Pass and reports the previous verdict.
func (t *ActionTable) enable(c model.Category) model.Verdict {
	return model.Verdict(t.entries[c].verdict.Swap(uint32(model.Pass)))
}
