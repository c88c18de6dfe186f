package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lexcodex/quill/diffview"
)

// Verdict is the operator's answer at the approval gate.
type Verdict string

const (
	// VerdictYes authorizes the apply.
	VerdictYes Verdict = "yes"
	// VerdictNo discards the plan; nothing is written.
	VerdictNo Verdict = "no"
	// VerdictRetry discards the plan and re-runs the pipeline with an
	// edited instruction.
	VerdictRetry Verdict = "retry"
)

// Request is one pending approval: the rendered diffs awaiting review.
type Request struct {
	ID          string
	Summary     string
	Diffs       []*diffview.Diff
	RequestedAt time.Time
	State       string
}

// Decision resolves a request.
type Decision struct {
	RequestID   string
	Verdict     Verdict
	Instruction string // replacement instruction for VerdictRetry
	DecidedAt   time.Time
}

// Approved reports whether this decision authorizes writing to disk.
func (d *Decision) Approved() bool {
	return d != nil && d.Verdict == VerdictYes
}

// EventType describes the lifecycle stage of an approval request.
type EventType string

const (
	EventRequested EventType = "requested"
	EventResolved  EventType = "resolved"
	EventExpired   EventType = "expired"
)

// Event is emitted whenever a request is created, resolved, or expires.
type Event struct {
	Type     EventType
	Request  *Request
	Decision *Decision
	Error    string
}

// Broker coordinates the blocking approval gate between the agent pipeline
// and the operator's UI. Exactly one request is outstanding at a time in
// practice (the session is single-flight), but the broker does not rely on
// that.
type Broker struct {
	timeout  time.Duration
	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string]chan Decision
	subs     map[int]chan Event
	subSeq   int
	seq      int
	clock    func() time.Time
}

// NewBroker builds a broker with the supplied timeout.
func NewBroker(timeout time.Duration) *Broker {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Broker{
		timeout:  timeout,
		requests: make(map[string]*Request),
		waiters:  make(map[string]chan Decision),
		subs:     make(map[int]chan Event),
		clock:    time.Now,
	}
}

// Subscribe returns a channel receiving approval lifecycle events. Call the
// returned cancel function to unsubscribe.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.subSeq
	b.subSeq++
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		sub, ok := b.subs[id]
		if ok {
			delete(b.subs, id)
		}
		b.mu.Unlock()
		if ok {
			close(sub)
		}
	}
	return ch, cancel
}

func (b *Broker) broadcast(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Await registers the request and blocks until the operator decides, the
// context is cancelled, or the timeout elapses. Cancellation before a
// decision touches nothing: the coordinator only runs on a yes verdict.
func (b *Broker) Await(ctx context.Context, req Request) (*Decision, error) {
	if len(req.Diffs) == 0 {
		return nil, errors.New("approval request without diffs")
	}
	b.mu.Lock()
	b.seq++
	req.ID = fmt.Sprintf("approval-%d", b.seq)
	req.RequestedAt = b.clock()
	req.State = "pending"
	waitCh := make(chan Decision, 1)
	b.requests[req.ID] = &req
	b.waiters[req.ID] = waitCh
	b.mu.Unlock()
	b.broadcast(Event{Type: EventRequested, Request: &req})

	drop := func() {
		b.mu.Lock()
		delete(b.requests, req.ID)
		delete(b.waiters, req.ID)
		b.mu.Unlock()
	}

	// A decision delivered just before cancellation or expiry still wins:
	// the operator already answered and dropping it would misreport the
	// request as expired.
	settle := func() (*Decision, bool) {
		select {
		case decision, ok := <-waitCh:
			if !ok {
				return nil, false
			}
			drop()
			b.broadcast(Event{Type: EventResolved, Request: &req, Decision: &decision})
			return &decision, true
		default:
			return nil, false
		}
	}

	select {
	case decision := <-waitCh:
		drop()
		b.broadcast(Event{Type: EventResolved, Request: &req, Decision: &decision})
		return &decision, nil
	case <-ctx.Done():
		if decision, ok := settle(); ok {
			return decision, nil
		}
		drop()
		b.broadcast(Event{Type: EventExpired, Request: &req, Error: ctx.Err().Error()})
		return nil, ctx.Err()
	case <-time.After(b.timeout):
		if decision, ok := settle(); ok {
			return decision, nil
		}
		drop()
		b.broadcast(Event{Type: EventExpired, Request: &req, Error: "timed out"})
		return nil, fmt.Errorf("approval request %s timed out", req.ID)
	}
}

// Resolve delivers the operator's decision to the waiting pipeline.
func (b *Broker) Resolve(decision Decision) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[decision.RequestID]
	if !ok {
		return fmt.Errorf("request %s not found", decision.RequestID)
	}
	switch decision.Verdict {
	case VerdictYes, VerdictNo, VerdictRetry:
	default:
		return fmt.Errorf("unknown verdict %q", decision.Verdict)
	}
	req.State = string(decision.Verdict)
	decision.DecidedAt = b.clock()
	if waiter, ok := b.waiters[decision.RequestID]; ok {
		waiter <- decision
		close(waiter)
		delete(b.waiters, decision.RequestID)
	}
	return nil
}

// Pending returns outstanding requests, for the UI to render.
func (b *Broker) Pending() []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	var pending []*Request
	for _, req := range b.requests {
		if req.State == "pending" {
			pending = append(pending, req)
		}
	}
	return pending
}
