package logging

import (
	"Go2NetGuard/internal/model"
	"io"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Sink writes engine diagnostics through a standard logger.
//
//	level 0: silent
//	level 1: attack start, attack stop, cooldown wait
//	level 2: per-category rates every window
//	level 3: per-lane sums and per-packet verdicts
//
// Per-packet lines are throttled so a flood cannot flood the log as well.
type Sink struct {
	logger  *log.Logger
	level   int
	packets *rate.Limiter

	suppressed atomic.Uint64
}

// NewSink creates a diagnostics sink. packetRate caps level 3 per-packet
// lines per second; zero or less disables them.
func NewSink(w io.Writer, level int, packetRate float64) *Sink {
	if level < 0 {
		level = 0
	}
	if level > 3 {
		level = 3
	}
	s := &Sink{
		logger: log.New(w, "[nsguard] ", log.LstdFlags|log.Lmicroseconds),
		level:  level,
	}
	if packetRate > 0 {
		burst := int(packetRate)
		if burst < 1 {
			burst = 1
		}
		s.packets = rate.NewLimiter(rate.Limit(packetRate), burst)
	}
	return s
}

func (s *Sink) Level() int { return s.level }

func (s *Sink) Attack(c model.Category, pps, bps uint64) {
	s.logger.Printf("ATTACK: category=%s pps=%d bps=%d, dropping", c, pps, bps)
}

func (s *Sink) AttackStopped(c model.Category) {
	s.logger.Printf("Attack stopped: category=%s, passing again", c)
}

func (s *Sink) Cooldown(c model.Category, remaining time.Duration) {
	s.logger.Printf("Waiting for attack timeout for %d s: category=%s", int64(remaining/time.Second), c)
}

func (s *Sink) Rate(c model.Category, pps, bps uint64) {
	if pps == 0 && bps == 0 {
		return
	}
	s.logger.Printf("Rate: category=%s pps=%d bps=%d", c, pps, bps)
}

func (s *Sink) LaneSum(lane int, c model.Category, packets, bytes uint64) {
	s.logger.Printf("Lane %d: category=%s packets=%d bytes=%d", lane, c, packets, bytes)
}

func (s *Sink) Packet(c model.Category, v model.Verdict, malformed bool) {
	if s.packets == nil {
		return
	}
	if !s.packets.Allow() {
		s.suppressed.Add(1)
		return
	}
	if n := s.suppressed.Swap(0); n > 0 {
		s.logger.Printf("Packet: category=%s verdict=%s malformed=%v (%d lines suppressed)", c, v, malformed, n)
		return
	}
	s.logger.Printf("Packet: category=%s verdict=%s malformed=%v", c, v, malformed)
}

// Suppressed returns the per-packet lines dropped since the last one written.
func (s *Sink) Suppressed() uint64 {
	return s.suppressed.Load()
}
