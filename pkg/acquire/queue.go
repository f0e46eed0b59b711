package acquire

import (
	"time"

	"github.com/cperrin88/acquire/pkg/hashes"
)

// QItem is one URI in flight: the unit a worker fetches. Several owners may
// ride on it; they all share the URI but keep their own destinations and
// expectations.
type QItem struct {
	URI         string
	Description string
	TotalSize   uint64
	CurrentSize uint64
	ResumePoint uint64
	Owners      []Item
	Worker      *Worker
}

// AddOwner attaches another request to this URI.
func (q *QItem) AddOwner(it Item) {
	q.Owners = append(q.Owners, it)
}

// ExpectedHashes returns the first owner's expectation; co-owners of one
// URI agree on the content by construction.
func (q *QItem) ExpectedHashes() hashes.HashList {
	if len(q.Owners) == 0 {
		return hashes.HashList{}
	}
	return q.Owners[0].ExpectedHashes()
}

// ReadyAt returns the latest FetchAfter among the owners; before that point
// the item must not be handed to a worker.
func (q *QItem) ReadyAt() time.Time {
	var at time.Time
	for _, o := range q.Owners {
		if fa := o.Base().FetchAfter; fa.After(at) {
			at = fa
		}
	}
	return at
}

// Queue holds the items destined for one access scheme and the worker
// serving them.
type Queue struct {
	// Name is the access scheme this queue feeds.
	Name string
	// Owner is the engine that re-schedules items on retry and redirect.
	Owner Enqueuer

	items []*QItem
}

// NewQueue creates an empty queue for the access scheme.
func NewQueue(name string, owner Enqueuer) *Queue {
	return &Queue{Name: name, Owner: owner}
}

// Add merges a request into the queue: a pending item with the same URI
// gains an owner, anything else becomes a new item.
func (q *Queue) Add(desc *ItemDesc) *QItem {
	for _, itm := range q.items {
		if itm.URI == desc.URI {
			itm.AddOwner(desc.Owner)
			return itm
		}
	}
	itm := &QItem{
		URI:         desc.URI,
		Description: desc.Description,
		Owners:      []Item{desc.Owner},
	}
	q.items = append(q.items, itm)
	return itm
}

// FindItem returns the in-flight item with the given URI held by the given
// worker, or nil.
func (q *Queue) FindItem(uri string, w *Worker) *QItem {
	for _, itm := range q.items {
		if itm.URI == uri && itm.Worker == w {
			return itm
		}
	}
	return nil
}

// ItemDone removes a finished item from the queue.
func (q *Queue) ItemDone(itm *QItem) {
	for i, cand := range q.items {
		if cand == itm {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	itm.Worker = nil
}

// NextPending returns the first item that is not yet assigned to a worker
// and whose back-off window has passed, or nil.
func (q *Queue) NextPending(now time.Time) *QItem {
	for _, itm := range q.items {
		if itm.Worker == nil && !itm.ReadyAt().After(now) {
			return itm
		}
	}
	return nil
}

// NextReadyAt returns the earliest back-off deadline among unassigned
// items, and whether one exists.
func (q *Queue) NextReadyAt() (time.Time, bool) {
	var at time.Time
	found := false
	for _, itm := range q.items {
		if itm.Worker != nil {
			continue
		}
		ready := itm.ReadyAt()
		if !found || ready.Before(at) {
			at = ready
			found = true
		}
	}
	return at, found
}

// InFlight counts items currently assigned to the worker.
func (q *Queue) InFlight(w *Worker) int {
	n := 0
	for _, itm := range q.items {
		if itm.Worker == w {
			n++
		}
	}
	return n
}

// Empty reports whether nothing is queued or in flight.
func (q *Queue) Empty() bool { return len(q.items) == 0 }

// Items returns the queued items, pending and in flight.
func (q *Queue) Items() []*QItem {
	out := make([]*QItem, len(q.items))
	copy(out, q.items)
	return out
}
