package detector

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/model"
	"time"
)

// Limits are the fixed detection tunables.
type Limits struct {
	Window   time.Duration
	Cooldown time.Duration
	PPSLimit uint64
	BPSLimit uint64
}

// LimitsFromConfig converts validated engine configuration.
func LimitsFromConfig(cfg config.EngineConfig) Limits {
	return Limits{
		Window:   cfg.WindowDuration(),
		Cooldown: cfg.Cooldown(),
		PPSLimit: cfg.PPSLimit,
		BPSLimit: cfg.BPSLimit,
	}
}

// Rates converts a window's totals to per-second rates. The division
// truncates, so 799 packets over 2s is 399 pps.
func Rates(c model.Counter, windowSeconds uint64) (pps, bps uint64) {
	if windowSeconds == 0 {
		windowSeconds = 1
	}
	return c.Packets / windowSeconds, c.Bytes / windowSeconds
}

// Detector applies the threshold and hysteresis rule to each aggregated
// window and writes the result into an ActionTable.
type Detector struct {
	limits        Limits
	windowSeconds uint64
	table         *ActionTable
	sink          model.Sink
}

// New creates a detector writing to table. A nil sink discards diagnostics.
func New(limits Limits, table *ActionTable, sink model.Sink) *Detector {
	if sink == nil {
		sink = model.NopSink{}
	}
	secs := uint64(limits.Window / time.Second)
	if secs == 0 {
		secs = 1
	}
	return &Detector{limits: limits, windowSeconds: secs, table: table, sink: sink}
}

// Limits returns the detector's tunables.
func (d *Detector) Limits() Limits {
	return d.limits
}

// Table returns the action table the detector writes.
func (d *Detector) Table() *ActionTable {
	return d.table
}

// Breach reports whether the rates exceed either limit.
func (d *Detector) Breach(pps, bps uint64) bool {
	return pps > d.limits.PPSLimit || bps > d.limits.BPSLimit
}

// Evaluate runs the rule for every category against one window's snapshot.
// Only the aggregation leader calls it.
func (d *Detector) Evaluate(snap *model.Snapshot, now int64) [model.NumCategories]model.CategoryReport {
	var out [model.NumCategories]model.CategoryReport
	level := d.sink.Level()
	for i := 0; i < model.NumCategories; i++ {
		c := model.Category(i)
		pps, bps := Rates(snap[i], d.windowSeconds)
		if level >= 2 {
			d.sink.Rate(c, pps, bps)
		}
		rep := model.CategoryReport{
			Category: c,
			Packets:  snap[i].Packets,
			Bytes:    snap[i].Bytes,
			PPS:      pps,
			BPS:      bps,
		}
		d.evaluate(&rep, now, level)
		out[i] = rep
	}
	return out
}

func (d *Detector) evaluate(rep *model.CategoryReport, now int64, level int) {
	c := rep.Category
	if d.Breach(rep.PPS, rep.BPS) {
		prev := d.table.disable(c, now)
		rep.Attack = true
		rep.Verdict = model.Drop
		rep.LastAttack = now
		rep.CooldownRemaining = d.limits.Cooldown
		if prev == model.Drop {
			rep.Transition = model.TransitionAttackContinued
		} else {
			rep.Transition = model.TransitionAttackStarted
		}
		if level >= 1 {
			d.sink.Attack(c, rep.PPS, rep.BPS)
		}
		return
	}

	last := d.table.LastAttack(c)
	rep.LastAttack = last
	quiet := time.Duration(now - last)
	if last == 0 || quiet > d.limits.Cooldown {
		if d.table.enable(c) == model.Drop {
			rep.Transition = model.TransitionAttackStopped
			if level >= 1 {
				d.sink.AttackStopped(c)
			}
		}
		rep.Verdict = model.Pass
		return
	}

	// Clean window inside the cooldown: the table keeps its verdict.
	rep.Verdict = d.table.Verdict(c)
	if rep.Verdict == model.Drop {
		rep.Transition = model.TransitionCooldown
		rep.CooldownRemaining = d.limits.Cooldown - quiet
		if level >= 1 {
			d.sink.Cooldown(c, rep.CooldownRemaining)
		}
	}
}
