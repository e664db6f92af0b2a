package shard

import (
	"Go2NetGuard/internal/model"
	"sync"
	"testing"
)

func TestSet_CollectSumsAndResets(t *testing.T) {
	s := NewSet(4)
	s.Record(0, model.CategoryTCP, 100)
	s.Record(1, model.CategoryTCP, 200)
	s.Record(3, model.CategoryUDP, 60)

	var visited int
	snap := s.Collect(func(lane int, c model.Category, cnt model.Counter) {
		if cnt.Packets > 0 {
			visited++
		}
	})

	if got := snap[model.CategoryTCP]; got.Packets != 2 || got.Bytes != 300 {
		t.Errorf("Expected tcp {2 300}, got %+v", got)
	}
	if got := snap[model.CategoryUDP]; got.Packets != 1 || got.Bytes != 60 {
		t.Errorf("Expected udp {1 60}, got %+v", got)
	}
	if visited != 3 {
		t.Errorf("Expected 3 non-empty lane counters to be visited, got %d", visited)
	}

	again := s.Collect(nil)
	if total := again.Total(); total.Packets != 0 || total.Bytes != 0 {
		t.Errorf("Expected counters to be reset after Collect, got %+v", total)
	}
}

func TestSet_FoldsLaneIDs(t *testing.T) {
	s := NewSet(4)
	if s.Index(5) != 1 {
		t.Errorf("Expected lane 5 to fold onto shard 1, got %d", s.Index(5))
	}
	if idx := s.Index(-1); idx < 0 || idx >= s.Lanes() {
		t.Errorf("Negative lane folded out of range: %d", idx)
	}
	s.Record(6, model.CategoryICMP, 10)
	if got := s.Lane(2).Load(model.CategoryICMP); got.Packets != 1 {
		t.Errorf("Expected folded record on shard 2, got %+v", got)
	}
}

func TestSet_InvalidCategoryCountsAsUnknown(t *testing.T) {
	s := NewSet(1)
	s.Record(0, model.Category(200), 1)
	snap := s.Collect(nil)
	if snap[model.CategoryUnknown].Packets != 1 {
		t.Errorf("Expected out-of-range category to land in unknown, got %+v", snap[model.CategoryUnknown])
	}
}

func TestSet_ConcurrentLanesNoLostUpdates(t *testing.T) {
	const (
		lanes   = 8
		perLane = 20000
	)
	s := NewSet(lanes)

	var wg sync.WaitGroup
	wg.Add(lanes)
	for lane := 0; lane < lanes; lane++ {
		go func(lane int) {
			defer wg.Done()
			for i := 0; i < perLane; i++ {
				s.Record(lane, model.CategoryUDP, 64)
			}
		}(lane)
	}

	// Drain while the lanes are still writing.
	var collected model.Counter
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		snap := s.Collect(nil)
		collected.Packets += snap[model.CategoryUDP].Packets
		collected.Bytes += snap[model.CategoryUDP].Bytes
	}
	final := s.Collect(nil)
	collected.Packets += final[model.CategoryUDP].Packets
	collected.Bytes += final[model.CategoryUDP].Bytes

	if collected.Packets != lanes*perLane {
		t.Errorf("Expected %d packets across all drains, got %d", lanes*perLane, collected.Packets)
	}
	if collected.Bytes != lanes*perLane*64 {
		t.Errorf("Expected %d bytes across all drains, got %d", lanes*perLane*64, collected.Bytes)
	}
}
