package sandbox

import (
	"context"
	"encoding/json"
	"sync"
)

// deliverFunc posts one response into the owning VM. ok=false carries an
// error payload of the form {"message": ...}.
type deliverFunc func(id int64, ok bool, payload string)

// Bridge correlates sandbox requests with host responses. Multiple
// requests may be in flight concurrently; each resolves exactly once,
// and nothing is ever delivered after Teardown.
type Bridge struct {
	host    *Host
	deliver deliverFunc
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	pending map[int64]struct{}
	nextID  int64
	closed  bool
}

// NewBridge wires a host capability set to a delivery function.
func NewBridge(host *Host, deliver deliverFunc) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		host:    host,
		deliver: deliver,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[int64]struct{}),
	}
}

// Send validates one raw message, assigns it a request id and starts its
// handler. The id is returned synchronously so the caller can register
// its continuation before the response can possibly arrive.
func (b *Bridge) Send(raw string) (int64, error) {
	req, err := parseRequest(raw)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, context.Canceled
	}
	b.nextID++
	id := b.nextID
	b.pending[id] = struct{}{}
	b.mu.Unlock()

	// Handlers run concurrently so one slow fetch never blocks the
	// rest of the in-flight requests.
	go func() {
		result, err := b.host.handle(b.ctx, req)
		if err != nil {
			b.complete(id, false, errorPayload(err))
			return
		}
		payload, err := encodeResult(result)
		if err != nil {
			b.complete(id, false, errorPayload(err))
			return
		}
		b.complete(id, true, payload)
	}()

	return id, nil
}

// complete delivers a response unless the request already resolved or
// the bridge was torn down in the meantime.
func (b *Bridge) complete(id int64, ok bool, payload string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, live := b.pending[id]; !live {
		b.mu.Unlock()
		return
	}
	delete(b.pending, id)
	b.mu.Unlock()

	b.deliver(id, ok, payload)
}

// Teardown cancels in-flight handlers and fails every pending request
// as cancelled. After it returns no response is delivered, so a request
// from a dead instance can never reach its successor.
func (b *Bridge) Teardown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	ids := make([]int64, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.pending = make(map[int64]struct{})
	b.mu.Unlock()

	b.cancel()
	for _, id := range ids {
		b.deliver(id, false, errorPayload(context.Canceled))
	}
}

func errorPayload(err error) string {
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	return string(data)
}
