// Package guard wires the classifier, lane shards, window leader election and
// detector into the per-frame entry point.
package guard

import (
	"Go2NetGuard/internal/config"
	"Go2NetGuard/internal/engine/detector"
	"Go2NetGuard/internal/engine/protocol"
	"Go2NetGuard/internal/engine/shard"
	"Go2NetGuard/internal/engine/window"
	"Go2NetGuard/internal/model"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

// Reporter accepts window reports from the aggregation leader. Enqueue must
// not block.
type Reporter interface {
	Enqueue(report *model.WindowReport) bool
}

// Options configures an Engine.
type Options struct {
	Limits   detector.Limits
	MaxLanes int
	Link     protocol.LinkType
	Sink     model.Sink
	Reporter Reporter
}

type lane struct {
	classifier *protocol.Classifier
	_          cpu.CacheLinePad
}

// Engine decides PASS or DROP for every frame. Process may be called from
// MaxLanes goroutines at once, provided each lane id is used by one goroutine
// at a time. Lane ids outside 0..MaxLanes-1 are tolerated: they classify on a
// private classifier and are counted by StrayFrames.
type Engine struct {
	lanes    []lane
	shards   *shard.Set
	timer    *window.Timer
	gate     window.Gate
	table    *detector.ActionTable
	detector *detector.Detector
	sink     model.Sink
	reporter Reporter
	link     protocol.LinkType

	aggregations atomic.Uint64
	strayFrames  atomic.Uint64
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.MaxLanes < 1 {
		opts.MaxLanes = 1
	}
	if opts.Sink == nil {
		opts.Sink = model.NopSink{}
	}
	table := detector.NewActionTable()
	e := &Engine{
		lanes:    make([]lane, opts.MaxLanes),
		shards:   shard.NewSet(opts.MaxLanes),
		timer:    window.NewTimer(opts.Limits.Window),
		table:    table,
		detector: detector.New(opts.Limits, table, opts.Sink),
		sink:     opts.Sink,
		reporter: opts.Reporter,
		link:     opts.Link,
	}
	for i := range e.lanes {
		e.lanes[i].classifier = protocol.NewClassifier(opts.Link)
	}
	return e
}

// NewFromConfig creates an engine from validated configuration.
func NewFromConfig(cfg config.EngineConfig, sink model.Sink, reporter Reporter) (*Engine, error) {
	link, err := protocol.ParseLinkType(cfg.LinkType)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return New(Options{
		Limits:   detector.LimitsFromConfig(cfg),
		MaxLanes: cfg.MaxLanes,
		Link:     link,
		Sink:     sink,
		Reporter: reporter,
	}), nil
}

// Process classifies one frame on the given lane at host time now and
// returns its verdict. The frame's length is counted toward the rate.
func (e *Engine) Process(frame []byte, laneID int, now int64) model.Verdict {
	return e.ProcessLen(frame, len(frame), laneID, now)
}

// ProcessLen is Process for hosts that capture fewer bytes than were on the
// wire; wireLen is what counts toward the byte rate.
func (e *Engine) ProcessLen(frame []byte, wireLen int, laneID int, now int64) model.Verdict {
	// Until the first window starts there is no rate to judge by.
	if e.timer.Start() == 0 {
		e.timer.Init(now)
		return model.Pass
	}

	idx := e.shards.Index(laneID)
	var res protocol.Result
	if laneID >= 0 && laneID < len(e.lanes) {
		res = e.lanes[laneID].classifier.Classify(frame)
	} else {
		// A lane id outside 0..MaxLanes-1 breaks the host contract. Its frames
		// still count (shards are atomic) but never touch a live lane's
		// classifier.
		e.strayFrames.Add(1)
		res = protocol.NewClassifier(e.link).Classify(frame)
	}
	if wireLen < len(frame) {
		wireLen = len(frame)
	}
	e.shards.Lane(idx).Record(res.Category, uint64(wireLen))

	e.maybeAggregate(idx, now)

	v := model.Drop
	if !res.Malformed {
		v = e.table.Verdict(res.Category)
	}
	if e.sink.Level() >= 3 {
		e.sink.Packet(res.Category, v, res.Malformed)
	}
	return v
}

// Tick runs the expiry check without a frame, so windows still close when
// traffic stops. It reports whether this call aggregated.
func (e *Engine) Tick(laneID int, now int64) bool {
	if e.timer.Start() == 0 {
		e.timer.Init(now)
		return false
	}
	return e.maybeAggregate(e.shards.Index(laneID), now)
}

func (e *Engine) maybeAggregate(leader int, now int64) bool {
	start, ok := window.Lead(e.timer, &e.gate, now)
	if !ok {
		return false
	}
	defer e.gate.Release()

	var visit shard.Visitor
	if e.sink.Level() >= 3 {
		visit = func(lane int, c model.Category, cnt model.Counter) {
			if cnt.Packets > 0 {
				e.sink.LaneSum(lane, c, cnt.Packets, cnt.Bytes)
			}
		}
	}
	snap := e.shards.Collect(visit)
	cats := e.detector.Evaluate(&snap, now)
	e.aggregations.Add(1)

	if e.reporter != nil {
		e.reporter.Enqueue(&model.WindowReport{
			WindowStart: start,
			WindowEnd:   now,
			Time:        time.Now(),
			Lanes:       len(e.lanes),
			Leader:      leader,
			Categories:  cats,
		})
	}
	return true
}

// Verdict returns the current verdict for a category.
func (e *Engine) Verdict(c model.Category) model.Verdict {
	return e.table.Verdict(c)
}

// States copies the action table.
func (e *Engine) States() [model.NumCategories]detector.Entry {
	return e.table.States()
}

// Limits returns the detection tunables.
func (e *Engine) Limits() detector.Limits {
	return e.detector.Limits()
}

// Lanes returns the fixed lane count.
func (e *Engine) Lanes() int {
	return len(e.lanes)
}

// WindowStart returns the current window's start, 0 before warm-up.
func (e *Engine) WindowStart() int64 {
	return e.timer.Start()
}

// StrayFrames returns how many frames arrived with a lane id outside
// 0..MaxLanes-1.
func (e *Engine) StrayFrames() uint64 {
	return e.strayFrames.Load()
}

// Aggregations returns how many windows have been closed.
func (e *Engine) Aggregations() uint64 {
	return e.aggregations.Load()
}
