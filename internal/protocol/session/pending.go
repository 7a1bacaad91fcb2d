package session

import (
	"sync"
)

// Call is one outstanding request slot. It completes exactly once; later
// completions are ignored.
type Call struct {
	ID uint64

	done chan struct{}
	once sync.Once
	resp *Response
	err  error
}

func newCall(id uint64) *Call {
	return &Call{ID: id, done: make(chan struct{})}
}

func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result is valid once Done is closed.
func (c *Call) Result() (*Response, error) {
	<-c.done
	return c.resp, c.err
}

func (c *Call) complete(resp *Response, err error) bool {
	completed := false
	c.once.Do(func() {
		c.resp = resp
		c.err = err
		completed = true
		close(c.done)
	})
	return completed
}

// PendingTable maps correlation ids to outstanding calls. Registration may
// race with resolution from the read loop.
type PendingTable struct {
	mu     sync.Mutex
	calls  map[uint64]*Call
	closed error
}

func NewPendingTable() *PendingTable {
	return &PendingTable{
		calls: make(map[uint64]*Call),
	}
}

// Register adds a slot for id. It fails once the table has been closed by FailAll.
func (t *PendingTable) Register(id uint64) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	if _, exists := t.calls[id]; exists {
		return nil, ErrDuplicateID
	}
	c := newCall(id)
	t.calls[id] = c
	return c, nil
}

// Resolve completes and removes the slot for id. It returns false when no
// slot exists, which covers late, duplicate and cancelled responses.
func (t *PendingTable) Resolve(id uint64, resp *Response) bool {
	c := t.take(id)
	if c == nil {
		return false
	}
	return c.complete(resp, nil)
}

// Fail completes the slot for id with err.
func (t *PendingTable) Fail(id uint64, err error) bool {
	c := t.take(id)
	if c == nil {
		return false
	}
	return c.complete(nil, err)
}

// Remove drops the slot for id without completing it.
func (t *PendingTable) Remove(id uint64) bool {
	return t.take(id) != nil
}

// FailAll completes every slot with err and rejects further registrations.
func (t *PendingTable) FailAll(err error) int {
	t.mu.Lock()
	if t.closed == nil {
		t.closed = err
	}
	calls := t.calls
	t.calls = make(map[uint64]*Call)
	t.mu.Unlock()

	for _, c := range calls {
		c.complete(nil, err)
	}
	return len(calls)
}

func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *PendingTable) take(id uint64) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	if !ok {
		return nil
	}
	delete(t.calls, id)
	return c
}
