// Package fanout pushes committed log events to live subscribers.
// Delivery is strictly after durability: the log publishes only once a
// mutation's batch has synced. Events for one group always land on the
// same worker, so each subscriber sees that group's events in commit
// order; a subscriber that cannot keep up is dropped and catches up by
// paging.
package fanout

import (
	"encoding/json"
	"hash/fnv"
	"sync"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
	"chatsync/pkg/models"
	"chatsync/pkg/subs"
)

type Event struct {
	Kind string         `json:"type"`
	Msg  models.Message `json:"message"`
}

type Dispatcher struct {
	reg    *subs.Registry
	queues []chan Event
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(reg *subs.Registry, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{reg: reg, queues: make([]chan Event, workers)}
	for i := range d.queues {
		d.queues[i] = make(chan Event, queueSize)
	}
	return d
}

func (d *Dispatcher) Start() {
	for i := range d.queues {
		d.wg.Add(1)
		go d.worker(d.queues[i])
	}
	logger.Info("fanout_started", "workers", len(d.queues), "queue_size", cap(d.queues[0]))
}

// Stop drains the queues and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Publish enqueues a committed event. It never blocks the caller: when
// the owning worker's queue is full the event is dropped and counted,
// and subscribers recover the gap by paging.
func (d *Dispatcher) Publish(kind string, msg models.Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q := d.queues[shard(msg.Group, len(d.queues))]
	select {
	case q <- Event{Kind: kind, Msg: msg}:
		metrics.PublishedTotal.Inc()
	default:
		metrics.DroppedTotal.Inc()
		logger.Warn("fanout_queue_full", "group", msg.Group, "kind", kind)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) worker(q chan Event) {
	defer d.wg.Done()
	for ev := range q {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	conns := d.reg.Subscribers(ev.Msg.Group)
	if len(conns) == 0 {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("fanout_marshal_failed", "group", ev.Msg.Group, "error", err)
		return
	}
	for _, c := range conns {
		if c.TrySend(payload) {
			metrics.DeliveredTotal.Inc()
			continue
		}
		metrics.DroppedTotal.Inc()
		logger.Warn("slow_subscriber_dropped", "conn", c.ID(), "user", c.User(), "group", ev.Msg.Group)
		d.reg.Drop(c.ID())
		c.Kick("delivery buffer overflow")
	}
}

func shard(group string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(group))
	return int(h.Sum32()) % n
}
