package model

import (
	"fmt"
	"time"
)

// Category is the coarse protocol bucket a frame is counted and gated under.
// The set is closed; NumCategories never changes at runtime.
type Category uint8

const (
	CategoryEthernet Category = iota
	CategoryIPv4
	CategoryIPv6
	CategoryICMP
	CategoryTCP
	CategoryUDP
	CategoryIPOther
	CategoryFrameOther
	CategoryUnknown

	NumCategories = int(CategoryUnknown) + 1
)

var categoryNames = [NumCategories]string{
	CategoryEthernet:   "ethernet-other",
	CategoryIPv4:       "ipv4",
	CategoryIPv6:       "ipv6",
	CategoryICMP:       "icmp",
	CategoryTCP:        "tcp",
	CategoryUDP:        "udp",
	CategoryIPOther:    "ip-other",
	CategoryFrameOther: "frame-other",
	CategoryUnknown:    "unknown",
}

func (c Category) String() string {
	if int(c) < NumCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	return int(c) < NumCategories
}

// ParseCategory maps a category name back to its value.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", name)
}

// Categories returns every category in index order.
func Categories() [NumCategories]Category {
	var all [NumCategories]Category
	for i := range all {
		all[i] = Category(i)
	}
	return all
}

// Verdict is the per-frame outcome enforced by the host. The zero value is Pass,
// so any state that was never written fails open.
type Verdict uint8

const (
	Pass Verdict = iota
	Drop
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "PASS"
	case Drop:
		return "DROP"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// Counter is a packet/byte pair accumulated over one window.
type Counter struct {
	Packets uint64
	Bytes   uint64
}

// Snapshot holds the sum of every lane's counters for one aggregation pass.
type Snapshot [NumCategories]Counter

// Total sums the snapshot over all categories.
func (s *Snapshot) Total() Counter {
	var t Counter
	for i := range s {
		t.Packets += s[i].Packets
		t.Bytes += s[i].Bytes
	}
	return t
}

// Transition describes what a single aggregation pass did to a category.
type Transition uint8

const (
	TransitionNone Transition = iota
	TransitionAttackStarted
	TransitionAttackContinued
	TransitionAttackStopped
	TransitionCooldown
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionAttackStarted:
		return "attack_started"
	case TransitionAttackContinued:
		return "attack_continued"
	case TransitionAttackStopped:
		return "attack_stopped"
	case TransitionCooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("transition(%d)", uint8(t))
	}
}

// CategoryReport is the detector's outcome for one category in one window.
type CategoryReport struct {
	Category          Category
	Packets           uint64
	Bytes             uint64
	PPS               uint64
	BPS               uint64
	Attack            bool
	Verdict           Verdict
	Transition        Transition
	LastAttack        int64 // monotonic ns, 0 if never attacked
	CooldownRemaining time.Duration
}

// WindowReport is emitted once per aggregation pass by the leader lane.
type WindowReport struct {
	// ID is assigned when the report enters the report pipeline.
	ID string
	// WindowStart and WindowEnd are monotonic host nanoseconds.
	WindowStart int64
	WindowEnd   int64
	// Time is the wall-clock time the report was created.
	Time       time.Time
	Lanes      int
	Leader     int
	Categories [NumCategories]CategoryReport
}

// Transitions returns only the categories whose verdict changed in this window.
func (r *WindowReport) Transitions() []CategoryReport {
	var out []CategoryReport
	for _, c := range r.Categories {
		if c.Transition == TransitionAttackStarted || c.Transition == TransitionAttackStopped {
			out = append(out, c)
		}
	}
	return out
}
