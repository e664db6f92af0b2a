package report

import (
	"Go2NetGuard/internal/model"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// WriterStats counts what happened to reports handed to one writer.
type WriterStats struct {
	Name    string `json:"name"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

type writerQueue struct {
	writer  model.Writer
	reports chan *model.WindowReport

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// Pipeline fans window reports out to writers. Every writer has its own
// bounded queue and goroutine, so a slow writer only loses its own reports.
// Enqueue takes no locks; the report channels are never closed, so a late
// Enqueue racing Stop cannot panic.
type Pipeline struct {
	// queues is replaced wholesale by Add and only read by Enqueue.
	queues atomic.Pointer[[]*writerQueue]
	wg     sync.WaitGroup
	done   chan struct{}

	mu      sync.Mutex // serialises Add, Start and Stop
	started bool
	stopped atomic.Bool

	enqueued atomic.Uint64
}

// NewPipeline creates a pipeline with a queue of queueSize reports per writer.
func NewPipeline(queueSize int, writers []model.Writer) *Pipeline {
	if queueSize <= 0 {
		queueSize = 64
	}
	p := &Pipeline{done: make(chan struct{})}
	queues := make([]*writerQueue, 0, len(writers))
	for _, w := range writers {
		queues = append(queues, &writerQueue{
			writer:  w,
			reports: make(chan *model.WindowReport, queueSize),
		})
	}
	p.queues.Store(&queues)
	return p
}

func (p *Pipeline) loadQueues() []*writerQueue {
	return *p.queues.Load()
}

// Add registers another writer. It must be called before Start.
func (p *Pipeline) Add(w model.Writer, queueSize int) {
	if queueSize <= 0 {
		queueSize = 64
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped.Load() {
		log.Printf("Report pipeline already started, ignoring writer %s.", w.Name())
		return
	}
	old := p.loadQueues()
	queues := make([]*writerQueue, len(old), len(old)+1)
	copy(queues, old)
	queues = append(queues, &writerQueue{writer: w, reports: make(chan *model.WindowReport, queueSize)})
	p.queues.Store(&queues)
}

// Start launches one goroutine per writer.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped.Load() {
		return
	}
	p.started = true
	queues := p.loadQueues()
	p.wg.Add(len(queues))
	for _, q := range queues {
		go p.run(q)
		log.Printf("Started report writer: %s", q.writer.Name())
	}
}

func (p *Pipeline) run(q *writerQueue) {
	defer p.wg.Done()
	for {
		select {
		case report := <-q.reports:
			p.write(q, report)
		case <-p.done:
			// Drain what was queued before Stop.
			for {
				select {
				case report := <-q.reports:
					p.write(q, report)
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) write(q *writerQueue, report *model.WindowReport) {
	if err := q.writer.Write(report); err != nil {
		q.failed.Add(1)
		log.Printf("Report writer %s failed: %v", q.writer.Name(), err)
		return
	}
	q.written.Add(1)
}

// Enqueue hands a report to every writer without blocking. A writer whose
// queue is full loses this report. It returns false if any writer dropped it.
func (p *Pipeline) Enqueue(report *model.WindowReport) bool {
	if p.stopped.Load() {
		return false
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	p.enqueued.Add(1)

	ok := true
	for _, q := range p.loadQueues() {
		select {
		case q.reports <- report:
		default:
			q.dropped.Add(1)
			ok = false
		}
	}
	return ok
}

// Stop lets the writers drain their queues, waits for them and closes
// writers that hold resources.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped.Swap(true) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	started := p.started
	p.mu.Unlock()

	if started {
		p.wg.Wait()
	}
	for _, q := range p.loadQueues() {
		if c, ok := q.writer.(model.Closer); ok {
			if err := c.Close(); err != nil {
				log.Printf("Error closing report writer %s: %v", q.writer.Name(), err)
			}
		}
	}
	log.Println("Report pipeline stopped.")
}

// Enqueued returns how many reports were offered to the pipeline.
func (p *Pipeline) Enqueued() uint64 {
	return p.enqueued.Load()
}

// Stats returns per-writer counters.
func (p *Pipeline) Stats() []WriterStats {
	queues := p.loadQueues()
	out := make([]WriterStats, 0, len(queues))
	for _, q := range queues {
		out = append(out, WriterStats{
			Name:    q.writer.Name(),
			Written: q.written.Load(),
			Failed:  q.failed.Load(),
			Dropped: q.dropped.Load(),
		})
	}
	return out
}

// Dropped sums reports lost to full queues across writers.
func (p *Pipeline) Dropped() uint64 {
	var n uint64
	for _, s := range p.Stats() {
		n += s.Dropped
	}
	return n
}
