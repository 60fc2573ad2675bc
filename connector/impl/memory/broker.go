package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValerySidorin/ackd/internal/connector/util"
	"github.com/ValerySidorin/ackd/model"
)

// Broker is a set of named in-process queues with at-least-once delivery.
type Broker struct {
	queues map[string]*Queue
	mu     sync.Mutex
}

// Default is the broker used by connectors built from configuration.
var Default = NewBroker()

func NewBroker() *Broker {
	return &Broker{queues: make(map[string]*Queue)}
}

// Queue returns the named queue, creating it on first use.
func (b *Broker) Queue(name string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = &Queue{
			name:     name,
			inflight: make(map[string]delivery),
			notify:   make(chan struct{}, 1),
		}
		b.queues[name] = q
	}

	return q
}

type delivery struct {
	msg      model.Message
	deadline time.Time
}

type Queue struct {
	name     string
	ready    []model.Message
	inflight map[string]delivery
	msgSeq   uint64
	ackSeq   uint64
	mu       sync.Mutex

	notify chan struct{}
}

func (q *Queue) Publish(data []byte, attrs map[string]string) string {
	q.mu.Lock()
	q.msgSeq++
	id := util.SeqID(q.msgSeq)
	q.ready = append(q.ready, model.Message{
		ID:          id,
		Data:        data,
		Attributes:  attrs,
		PublishTime: time.Now(),
	})
	q.mu.Unlock()

	q.signal()
	return id
}

// Len returns the number of ready and in-flight messages.
func (q *Queue) Len() (ready, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.ready), len(q.inflight)
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) pop(now time.Time, ackDeadline time.Duration) (model.Message, string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return model.Message{}, "", false
	}

	msg := q.ready[0]
	q.ready[0] = model.Message{}
	q.ready = q.ready[1:]

	q.ackSeq++
	ackID := fmt.Sprintf("%s-%d", q.name, q.ackSeq)

	d := delivery{msg: msg}
	if ackDeadline > 0 {
		d.deadline = now.Add(ackDeadline)
	}
	q.inflight[ackID] = d

	return msg, ackID, true
}

func (q *Queue) ack(ackID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[ackID]; !ok {
		return false
	}
	delete(q.inflight, ackID)

	return true
}

func (q *Queue) requeue(ackID string) bool {
	q.mu.Lock()
	d, ok := q.inflight[ackID]
	if ok {
		delete(q.inflight, ackID)
		q.ready = append(q.ready, d.msg)
	}
	q.mu.Unlock()

	if ok {
		q.signal()
	}
	return ok
}

func (q *Queue) extend(ackID string, deadline time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	d, ok := q.inflight[ackID]
	if !ok {
		return false
	}
	if !d.deadline.IsZero() {
		d.deadline = deadline
		q.inflight[ackID] = d
	}

	return true
}

// expire moves deliveries whose deadline has passed back to the ready list.
func (q *Queue) expire(now time.Time) int {
	q.mu.Lock()
	var n int
	for ackID, d := range q.inflight {
		if !d.deadline.IsZero() && !now.Before(d.deadline) {
			delete(q.inflight, ackID)
			q.ready = append(q.ready, d.msg)
			n++
		}
	}
	q.mu.Unlock()

	if n > 0 {
		q.signal()
	}
	return n
}
