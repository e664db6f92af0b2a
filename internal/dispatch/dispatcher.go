package dispatch

import (
	"Go2NetGuard/internal/engine/window"
	"Go2NetGuard/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
)

// Processor is the verdict engine the dispatcher drives.
type Processor interface {
	ProcessLen(frame []byte, wireLen int, lane int, now int64) model.Verdict
	Tick(lane int, now int64) bool
}

// Frame is one captured frame.
type Frame struct {
	Data      []byte
	WireLen   int
	Timestamp time.Time
}

// Options configures a Dispatcher.
type Options struct {
	Lanes     int
	QueueSize int
	// TickInterval closes windows during silence; 0 disables the ticker.
	TickInterval time.Duration
	// Clock supplies engine time. Ignored when CaptureTime is set.
	Clock window.Clock
	// CaptureTime uses frame timestamps as engine time, for replays.
	CaptureTime bool
	Forwarder   Forwarder
	Seed        uint32
}

// LaneStats counts frames handled by one lane.
type LaneStats struct {
	Lane    int    `json:"lane"`
	Frames  uint64 `json:"frames"`
	Bytes   uint64 `json:"bytes"`
	Passed  uint64 `json:"passed"`
	Dropped uint64 `json:"dropped"`
	// ForwardErrors counts passed frames the forwarder rejected.
	ForwardErrors uint64 `json:"forward_errors"`
}

// Stats is a point-in-time copy of the dispatcher counters.
type Stats struct {
	Lanes []LaneStats `json:"lanes"`
	Total LaneStats   `json:"total"`
	Ticks uint64      `json:"ticks"`
}

type lane struct {
	id     int
	frames chan Frame

	count     atomic.Uint64
	bytes     atomic.Uint64
	passed    atomic.Uint64
	dropped   atomic.Uint64
	fwdErrors atomic.Uint64
}

// Dispatcher is a reference host: it steers frames onto lane goroutines,
// asks the engine for a verdict and forwards what passed.
type Dispatcher struct {
	proc  Processor
	opts  Options
	lanes []*lane

	wg       sync.WaitGroup
	tickerWg sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	ticks    atomic.Uint64
}

// New creates a dispatcher. Call Start before submitting frames.
func New(proc Processor, opts Options) *Dispatcher {
	if opts.Lanes < 1 {
		opts.Lanes = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.Clock == nil {
		opts.Clock = window.NewMonotonicClock()
	}
	d := &Dispatcher{proc: proc, opts: opts, done: make(chan struct{})}
	for i := 0; i < opts.Lanes; i++ {
		d.lanes = append(d.lanes, &lane{id: i, frames: make(chan Frame, opts.QueueSize)})
	}
	return d
}

// Start launches the lane goroutines and the idle ticker.
func (d *Dispatcher) Start() {
	d.wg.Add(len(d.lanes))
	for _, l := range d.lanes {
		go d.runLane(l)
	}
	if d.opts.TickInterval > 0 && !d.opts.CaptureTime {
		d.tickerWg.Add(1)
		go d.runTicker()
	}
	log.Printf("Dispatcher started with %d lanes.", len(d.lanes))
}

func (d *Dispatcher) now(f Frame) int64 {
	if d.opts.CaptureTime && !f.Timestamp.IsZero() {
		return f.Timestamp.UnixNano()
	}
	return d.opts.Clock.Now()
}

func (d *Dispatcher) runLane(l *lane) {
	defer d.wg.Done()
	for f := range l.frames {
		wireLen := f.WireLen
		if wireLen < len(f.Data) {
			wireLen = len(f.Data)
		}
		v := d.proc.ProcessLen(f.Data, wireLen, l.id, d.now(f))
		l.count.Add(1)
		l.bytes.Add(uint64(wireLen))
		if v == model.Drop {
			l.dropped.Add(1)
			continue
		}
		l.passed.Add(1)
		if d.opts.Forwarder != nil {
			if err := d.opts.Forwarder.Forward(f); err != nil {
				l.fwdErrors.Add(1)
			}
		}
	}
}

func (d *Dispatcher) runTicker() {
	defer d.tickerWg.Done()
	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.proc.Tick(0, d.opts.Clock.Now())
			d.ticks.Add(1)
		case <-d.done:
			return
		}
	}
}

// Submit steers a frame to its lane, waiting while the lane queue is full.
func (d *Dispatcher) Submit(ctx context.Context, f Frame) error {
	l := d.lanes[Steer(f.Data, len(d.lanes), d.opts.Seed)]
	select {
	case l.frames <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run reads src until it is exhausted or ctx is cancelled. io.EOF ends the
// run without error.
func (d *Dispatcher) Run(ctx context.Context, src gopacket.PacketDataSource) error {
	var read uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("Capture source exhausted after %d frames.", read)
				return nil
			}
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		read++
		if err := d.Submit(ctx, Frame{Data: data, WireLen: ci.Length, Timestamp: ci.Timestamp}); err != nil {
			return err
		}
	}
}

type timeout interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}

// Stop drains the lane queues and stops the ticker. Frames submitted after
// Stop panic, so the capture loop must be finished first.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.tickerWg.Wait()
		for _, l := range d.lanes {
			close(l.frames)
		}
		d.wg.Wait()
		log.Println("Dispatcher stopped.")
	})
}

// Stats copies the lane counters.
func (d *Dispatcher) Stats() Stats {
	s := Stats{Lanes: make([]LaneStats, 0, len(d.lanes)), Ticks: d.ticks.Load()}
	s.Total.Lane = -1
	for _, l := range d.lanes {
		ls := LaneStats{
			Lane:          l.id,
			Frames:        l.count.Load(),
			Bytes:         l.bytes.Load(),
			Passed:        l.passed.Load(),
			Dropped:       l.dropped.Load(),
			ForwardErrors: l.fwdErrors.Load(),
		}
		s.Lanes = append(s.Lanes, ls)
		s.Total.Frames += ls.Frames
		s.Total.Bytes += ls.Bytes
		s.Total.Passed += ls.Passed
		s.Total.Dropped += ls.Dropped
		s.Total.ForwardErrors += ls.ForwardErrors
	}
	return s
}
