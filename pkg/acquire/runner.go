package acquire

import (
	"context"
	"time"

	"github.com/cperrin88/acquire/pkg/acqconfig"
	"github.com/cperrin88/acquire/pkg/errsink"
	"github.com/cperrin88/acquire/pkg/method"
	"github.com/cperrin88/acquire/pkg/protocol"
)

// maxRestarts bounds how often a scheme's method is reopened after dying
// mid-run before its items are given up on.
const maxRestarts = 3

// pollInterval is the longest the loop sleeps between readiness checks; it
// bounds how late a back-off deadline can fire.
const pollInterval = 500 * time.Millisecond

// Runner owns one queue per access scheme and multiplexes the workers
// serving them over a single readiness loop. It implements Enqueuer, so
// workers route retries and redirects back through it.
type Runner struct {
	conf *acqconfig.Config
	sink *errsink.Sink
	log  Progress

	queues   map[string]*Queue
	workers  map[string]*Worker
	configs  map[string]*MethodConfig
	dead     map[string]bool
	restarts map[string]int
}

// NewRunner creates an empty engine. The progress sink may be nil.
func NewRunner(conf *acqconfig.Config, log Progress, sink *errsink.Sink) *Runner {
	return &Runner{
		conf:     conf,
		sink:     sink,
		log:      log,
		queues:   map[string]*Queue{},
		workers:  map[string]*Worker{},
		configs:  map[string]*MethodConfig{},
		dead:     map[string]bool{},
		restarts: map[string]int{},
	}
}

// Add schedules an item for fetching.
func (r *Runner) Add(it Item) {
	r.Enqueue(it.GetDesc())
}

// Enqueue routes a request into the queue of its access scheme, creating
// the queue on first use.
func (r *Runner) Enqueue(desc *ItemDesc) {
	scheme := uriScheme(desc.URI)
	q, ok := r.queues[scheme]
	if !ok {
		q = NewQueue(scheme, r)
		r.queues[scheme] = q
	}
	desc.Owner.Base().Status = StatusIdle
	q.Add(desc)
}

// MethodConfigFor returns the (possibly still unnegotiated) configuration
// record of a scheme.
func (r *Runner) MethodConfigFor(scheme string) *MethodConfig {
	cfg, ok := r.configs[scheme]
	if !ok {
		cfg = NewMethodConfig(scheme)
		r.configs[scheme] = cfg
	}
	return cfg
}

// Run drives every queue until all items settled or the context ends.
// Failures never abort the loop; they land on the error sink and the item
// statuses.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		for _, w := range r.workers {
			w.Shutdown()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allEmpty := true
		for scheme, q := range r.queues {
			if q.Empty() {
				continue
			}
			allEmpty = false
			w := r.ensureWorker(scheme, q)
			if w == nil {
				continue
			}
			r.cycle(q, w)
		}
		if allEmpty {
			return nil
		}

		var readFds, writeFds []int
		for _, w := range r.workers {
			if w.InReady && w.ReadFd() >= 0 {
				readFds = append(readFds, w.ReadFd())
			}
			if w.OutReady && w.WriteFd() >= 0 {
				writeFds = append(writeFds, w.WriteFd())
			}
		}

		ready, err := method.Poll(readFds, writeFds, r.pollTimeout())
		if err != nil {
			return r.sink.Errorf("waiting for method I/O: %v", err)
		}

		for scheme, w := range r.snapshotWorkers() {
			if w.WriteFd() >= 0 && ready.Write[w.WriteFd()] {
				if err := w.OutFdReady(); err != nil {
					r.workerDied(scheme, w)
					continue
				}
			}
			if w.ReadFd() >= 0 && ready.Read[w.ReadFd()] {
				if err := w.InFdReady(); err != nil {
					r.workerDied(scheme, w)
				}
			}
		}
	}
}

// pollTimeout shortens the poll sleep so back-off deadlines fire on time.
func (r *Runner) pollTimeout() time.Duration {
	timeout := pollInterval
	now := time.Now()
	for _, q := range r.queues {
		at, ok := q.NextReadyAt()
		if !ok {
			continue
		}
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		if d < timeout {
			timeout = d
		}
	}
	return timeout
}

func (r *Runner) snapshotWorkers() map[string]*Worker {
	out := make(map[string]*Worker, len(r.workers))
	for k, v := range r.workers {
		out[k] = v
	}
	return out
}

// ensureWorker returns the running worker for a scheme, starting one if
// needed. When the method cannot start, every pending item of the queue is
// failed instead.
func (r *Runner) ensureWorker(scheme string, q *Queue) *Worker {
	if w, ok := r.workers[scheme]; ok {
		return w
	}
	if r.dead[scheme] {
		r.failAll(q, "method "+scheme+" is not available")
		return nil
	}

	w := NewWorker(q, r.MethodConfigFor(scheme), r.log, r.conf, r.sink)
	if err := w.Start(); err != nil {
		w.Shutdown()
		r.dead[scheme] = true
		r.failAll(q, err.Error())
		return nil
	}
	r.workers[scheme] = w
	return w
}

// cycle hands pending items of the queue to the worker, keeping to one
// outstanding request unless the method negotiated pipelining.
func (r *Runner) cycle(q *Queue, w *Worker) {
	depth := 1
	if w.Config().Pipeline {
		depth = r.conf.FindI("Acquire::Max-Pipeline-Depth", 10)
	}
	now := time.Now()
	for q.InFlight(w) < depth {
		itm := q.NextPending(now)
		if itm == nil {
			return
		}
		itm.Worker = w
		if !w.QueueItem(itm) {
			r.workerDied(q.Name, w)
			return
		}
	}
}

// workerDied removes a dead worker, releases its items for redispatch and
// retires the scheme once the restart budget is spent.
func (r *Runner) workerDied(scheme string, w *Worker) {
	w.Shutdown()
	delete(r.workers, scheme)

	q, ok := r.queues[scheme]
	if !ok {
		return
	}
	for _, itm := range q.Items() {
		if itm.Worker == w {
			itm.Worker = nil
		}
	}

	r.restarts[scheme]++
	if r.restarts[scheme] > maxRestarts {
		r.dead[scheme] = true
		r.failAll(q, "method "+scheme+" keeps dying, giving up")
	}
}

// failAll settles every queued item of a queue as failed.
func (r *Runner) failAll(q *Queue, reason string) {
	msg := protocol.NewMessage(protocol.CodeURIFailure, "URI Failure")
	msg.Set("Message", reason)
	cfg := r.MethodConfigFor(q.Name)
	for _, itm := range q.Items() {
		q.ItemDone(itm)
		for _, o := range itm.Owners {
			savedDesc := *o.GetDesc()
			if !o.IsDoomed() {
				o.Failed(msg, cfg)
			}
			if r.log != nil {
				r.log.Fail(&savedDesc)
			}
		}
	}
}
