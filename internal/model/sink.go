package model

import "time"

// Sink receives the engine's diagnostics. It is purely informational; nothing
// written to it feeds back into a verdict. Implementations are called from the
// packet path and must not block.
type Sink interface {
	// Level returns the active debug level (0 silences everything).
	Level() int
	Attack(c Category, pps, bps uint64)
	AttackStopped(c Category)
	Cooldown(c Category, remaining time.Duration)
	Rate(c Category, pps, bps uint64)
	LaneSum(lane int, c Category, packets, bytes uint64)
	Packet(c Category, v Verdict, malformed bool)
}

// NopSink discards all diagnostics.
type NopSink struct{}

func (NopSink) Level() int                            { return 0 }
func (NopSink) Attack(Category, uint64, uint64)       {}
func (NopSink) AttackStopped(Category)                {}
func (NopSink) Cooldown(Category, time.Duration)      {}
func (NopSink) Rate(Category, uint64, uint64)         {}
func (NopSink) LaneSum(int, Category, uint64, uint64) {}
func (NopSink) Packet(Category, Verdict, bool)        {}
