package core

import (
	"context"
	"sync"

	"github.com/vovakirdan/wiredispatch/internal/metrics"
)

// DeliverFunc delivers one packet to its channel.
type DeliverFunc func(ctx context.Context, p Packet)

// Sender is an unbounded FIFO of outbound packets drained by a single
// goroutine. Each packet is fully delivered before the next one is popped.
type Sender struct {
	mu      sync.Mutex
	cond    *sync.Cond
	head    *queueItem
	tail    *queueItem
	depth   int
	closed  bool
	deliver DeliverFunc
	metrics *metrics.Metrics
}

type queueItem struct {
	packet  Packet
	barrier chan struct{} // non-nil for Flush markers
	stop    bool
	next    *queueItem
}

// NewSender creates a Sender that hands each drained packet to deliver.
func NewSender(deliver DeliverFunc, m *metrics.Metrics) *Sender {
	if m == nil {
		m = metrics.New(nil)
	}
	s := &Sender{deliver: deliver, metrics: m}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue appends p to the tail of the queue. It never delivers inline.
// Returns false if the sender has been stopped and p was discarded.
func (s *Sender) Enqueue(p Packet) bool {
	if !s.push(&queueItem{packet: p}) {
		return false
	}
	s.metrics.Enqueued.Inc()
	return true
}

// Flush waits until every packet enqueued before the call has been
// delivered.
func (s *Sender) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !s.push(&queueItem{barrier: barrier}) {
		return ErrSenderClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of queued items.
func (s *Sender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// Run drains the queue until ctx is cancelled. Packets enqueued before the
// cancellation are still delivered; later ones are discarded.
func (s *Sender) Run(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		s.stop()
	}()

	// Delivery keeps working while the tail of the queue is drained after
	// cancellation.
	deliverCtx := context.WithoutCancel(ctx)
	for s.drainOne(deliverCtx) {
	}
}

// drainOne blocks for the next item and processes it. It returns false once
// the stop marker is reached.
func (s *Sender) drainOne(ctx context.Context) bool {
	s.mu.Lock()
	for s.head == nil {
		s.cond.Wait()
	}
	curr := s.head
	s.head = curr.next
	if curr == s.tail {
		s.tail = nil
	}
	if !curr.stop && curr.barrier == nil {
		s.depth--
		s.metrics.QueueDepth.Set(float64(s.depth))
	}
	s.mu.Unlock()

	switch {
	case curr.stop:
		return false
	case curr.barrier != nil:
		close(curr.barrier)
	default:
		s.deliver(ctx, curr.packet)
		s.metrics.Delivered.Inc()
	}
	return true
}

func (s *Sender) push(item *queueItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.tail != nil {
		s.tail.next = item
	} else {
		s.head = item
	}
	s.tail = item
	if item.barrier == nil {
		s.depth++
		s.metrics.QueueDepth.Set(float64(s.depth))
	}
	s.cond.Signal()
	return true
}

func (s *Sender) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	item := &queueItem{stop: true}
	if s.tail != nil {
		s.tail.next = item
	} else {
		s.head = item
	}
	s.tail = item
	s.closed = true
	s.cond.Broadcast()
}
