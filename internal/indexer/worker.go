package indexer

import "sync"

// worker is the serialized execution context for everything that touches
// the index. Tasks run one at a time, in post order, on a single
// goroutine; the index itself carries no locking because it is only ever
// reachable from here.
type worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newWorker() *worker {
	w := &worker{done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// post enqueues fn for execution. It returns false if the worker has
// been closed.
func (w *worker) post(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.queue = append(w.queue, fn)
	w.cond.Signal()
	return true
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		fn := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		fn()
	}
}

// close stops accepting new tasks, runs everything already queued, and
// waits for the loop to exit.
func (w *worker) close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}
