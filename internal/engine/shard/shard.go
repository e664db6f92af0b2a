package shard

import (
	"Go2NetGuard/internal/model"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type counter struct {
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// Counters is the counter block owned by a single lane. Only that lane adds
// to it; the aggregator drains it with an atomic swap, so increments racing a
// drain land in either this window or the next, never nowhere.
type Counters struct {
	_ cpu.CacheLinePad
	c [model.NumCategories]counter
	_ cpu.CacheLinePad
}

// Record adds one frame of n bytes to category c.
func (s *Counters) Record(c model.Category, n uint64) {
	if !c.Valid() {
		c = model.CategoryUnknown
	}
	s.c[c].packets.Add(1)
	s.c[c].bytes.Add(n)
}

// Load reads category c without resetting it.
func (s *Counters) Load(c model.Category) model.Counter {
	return model.Counter{
		Packets: s.c[c].packets.Load(),
		Bytes:   s.c[c].bytes.Load(),
	}
}

func (s *Counters) drain(c model.Category) model.Counter {
	return model.Counter{
		Packets: s.c[c].packets.Swap(0),
		Bytes:   s.c[c].bytes.Swap(0),
	}
}

// Visitor observes each lane's drained counters during Collect.
type Visitor func(lane int, c model.Category, cnt model.Counter)

// Set holds one Counters block per lane. The lane count is fixed at creation
// and bounds every loop over lanes.
type Set struct {
	lanes []Counters
}

// NewSet allocates counter blocks for maxLanes lanes.
func NewSet(maxLanes int) *Set {
	if maxLanes < 1 {
		maxLanes = 1
	}
	return &Set{lanes: make([]Counters, maxLanes)}
}

// Lanes returns the fixed lane count.
func (s *Set) Lanes() int {
	return len(s.lanes)
}

// Index folds any lane id onto a shard index. Counters are atomic, so a
// folded id may share a block with the lane it lands on.
func (s *Set) Index(lane int) int {
	return int(uint(lane) % uint(len(s.lanes)))
}

// Lane returns the counter block for the given lane id.
func (s *Set) Lane(lane int) *Counters {
	return &s.lanes[s.Index(lane)]
}

// Record adds one frame of n bytes to the lane's counter for c.
func (s *Set) Record(lane int, c model.Category, n uint64) {
	s.Lane(lane).Record(c, n)
}

// Collect sums every lane into a snapshot and resets each lane's counters.
// It must only be called by the current window leader.
func (s *Set) Collect(visit Visitor) model.Snapshot {
	var snap model.Snapshot
	for lane := range s.lanes {
		block := &s.lanes[lane]
		for i := 0; i < model.NumCategories; i++ {
			cnt := block.drain(model.Category(i))
			snap[i].Packets += cnt.Packets
			snap[i].Bytes += cnt.Bytes
			if visit != nil {
				visit(lane, model.Category(i), cnt)
			}
		}
	}
	return snap
}
