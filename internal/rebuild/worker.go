package rebuild

import (
	"context"
	"sync/atomic"

	"github.com/roach88/parcad/internal/document"
)

// DeliverFunc receives the result of the latest request.
type DeliverFunc func(id uint64, res *Result)

// Worker runs rebuilds off the interactive path.
//
// Every Submit gets a new, strictly increasing request id. Only the result of
// the latest request is delivered: queued requests that have been superseded
// are skipped, and a pass that finishes after a newer Submit is discarded.
// Passes are never aborted mid-kernel.
//
// CRITICAL PATTERNS:
//   - Run is the single consumer; call it from exactly one goroutine
//   - Submit may be called from any goroutine
type Worker struct {
	orch    *Orchestrator
	queue   *requestQueue
	latest  atomic.Uint64
	deliver DeliverFunc

	delivered atomic.Uint64
	discarded atomic.Uint64
}

// NewWorker creates a worker that delivers results to deliver.
func NewWorker(orch *Orchestrator, deliver DeliverFunc) *Worker {
	return &Worker{
		orch:    orch,
		queue:   newRequestQueue(),
		deliver: deliver,
	}
}

// Submit queues a pass and returns its request id. It returns 0 if the
// worker has stopped.
func (w *Worker) Submit(snap *document.Snapshot, mode Mode) uint64 {
	id := w.latest.Add(1)
	if !w.queue.Enqueue(Request{ID: id, Snapshot: snap, Mode: mode}) {
		return 0
	}
	return id
}

// Watch submits a pass over doc's current state and another after every
// update doc commits or applies, so a pass still running when the document
// changes is superseded and its result discarded. It returns the id of the
// first request.
func (w *Worker) Watch(doc *document.Document, mode Mode) uint64 {
	doc.OnUpdate(func(_ []byte, local bool) {
		id := w.Submit(doc.Snapshot(), mode)
		w.orch.logger.Debug("document changed", "request", id, "local", local)
	})
	return w.Submit(doc.Snapshot(), mode)
}

// Latest returns the id of the most recent request.
func (w *Worker) Latest() uint64 {
	return w.latest.Load()
}

// Stats returns how many results were delivered and discarded as stale.
func (w *Worker) Stats() (delivered, discarded uint64) {
	return w.delivered.Load(), w.discarded.Load()
}

// Run processes requests until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	log := w.orch.logger
	log.Debug("rebuild worker starting")

	for {
		req, ok := w.queue.TryDequeue()
		if ok {
			w.process(ctx, req)
			continue
		}

		select {
		case <-ctx.Done():
			log.Debug("rebuild worker stopping: context cancelled")
			w.queue.Close()
			return ctx.Err()

		case <-w.queue.Wait():
			// the signal channel is closed with the queue
			if w.queue.Len() == 0 && w.queue.Closed() {
				log.Debug("rebuild worker stopping: queue closed")
				return nil
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, req Request) {
	if req.ID < w.latest.Load() {
		w.discarded.Add(1)
		w.orch.logger.Debug("stale rebuild request skipped", "request", req.ID)
		return
	}
	res := w.orch.Rebuild(ctx, req.Snapshot, req.Mode)
	if req.ID != w.latest.Load() {
		w.discarded.Add(1)
		w.orch.logger.Debug("stale rebuild result discarded", "request", req.ID)
		return
	}
	w.delivered.Add(1)
	if w.deliver != nil {
		w.deliver(req.ID, res)
	}
}

// Stop closes the queue; Run returns once it is drained.
func (w *Worker) Stop() {
	w.queue.Close()
}
