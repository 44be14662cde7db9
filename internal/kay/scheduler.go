package kay

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Scheduler runs a fixed pool of workers, each with its own run queue of
// actor identifiers. New work goes to the least-loaded worker; idle workers
// steal from their peers before parking. The process callback is invoked at
// most once at a time per scheduled identifier, which the owning System
// guarantees by enqueueing each actor only while its in-flight guard is held.
type Scheduler struct {
	workers []*schedulerWorker
	process func(ActorID)
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex   sync.Mutex
	running bool
}

type schedulerWorker struct {
	id    int
	queue chan ActorID
}

// NewScheduler builds a scheduler with the given worker count and per-worker
// queue depth. The process callback is invoked from worker goroutines.
func NewScheduler(workers, queueDepth int, process func(ActorID), log *logrus.Entry) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 256
	}

	s := &Scheduler{
		process: process,
		log:     log,
	}
	for i := 0; i < workers; i++ {
		s.workers = append(s.workers, &schedulerWorker{
			id:    i,
			queue: make(chan ActorID, queueDepth),
		})
	}
	return s
}

// Start launches the worker goroutines.
func (s *Scheduler) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	for _, w := range s.workers {
		s.wg.Add(1)
		go s.run(w)
	}
	s.log.WithField("workers", len(s.workers)).Debug("scheduler started")
}

// Stop cancels the workers and waits for them to exit. Queued work that has
// not started is abandoned.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mutex.Unlock()

	s.wg.Wait()
	s.log.Debug("scheduler stopped")
}

// Enqueue hands an actor to the least-loaded worker. The call never blocks
// the sender: when every queue is full the handoff completes from a spawned
// goroutine instead.
func (s *Scheduler) Enqueue(id ActorID) {
	target := s.workers[0]
	for _, w := range s.workers[1:] {
		if len(w.queue) < len(target.queue) {
			target = w
		}
	}

	select {
	case target.queue <- id:
	default:
		go func() {
			select {
			case target.queue <- id:
			case <-s.ctx.Done():
			}
		}()
	}
}

func (s *Scheduler) run(w *schedulerWorker) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case id := <-w.queue:
			s.process(id)
		default:
			if id, ok := s.steal(w); ok {
				s.process(id)
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			case id := <-w.queue:
				s.process(id)
			}
		}
	}
}

// steal takes one queued actor from any other worker.
func (s *Scheduler) steal(self *schedulerWorker) (ActorID, bool) {
	for _, w := range s.workers {
		if w.id == self.id {
			continue
		}
		select {
		case id := <-w.queue:
			return id, true
		default:
		}
	}
	return 0, false
}
