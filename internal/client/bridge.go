// Package client is the interactive side of the chat protocol: a bridge that
// pairs each issued request with its reply, the listener that reads and
// renders server lines, and the Client that ties them to a connection.
package client

import (
	"context"
	"sync"
	"time"

	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
)

// Action selects the phrasing used when rendering OK and ERROR.
type Action byte

const (
	None Action = iota
	Register
	Leave
)

var ActionMap = map[Action]string{
	None:     "NONE",
	Register: "REGISTER",
	Leave:    "LEAVE",
}

func (a Action) String() string {
	return ActionMap[a]
}

// Pending is one outstanding request. It completes exactly once, either with
// a matching reply or with an error when the connection ends. Completion is
// recorded, so waiting after the reply arrived returns at once.
type Pending struct {
	action  Action
	expects []protocol.ReplyType
	done    chan struct{}
	once    sync.Once
	reply   protocol.Reply
	err     error
}

func (p *Pending) Action() Action { return p.action }

func (p *Pending) Done() <-chan struct{} { return p.done }

func (p *Pending) accepts(t protocol.ReplyType) bool {
	if len(p.expects) == 0 {
		return true
	}
	for _, expected := range p.expects {
		if expected == t {
			return true
		}
	}
	return false
}

func (p *Pending) complete(reply protocol.Reply, err error) {
	p.once.Do(func() {
		p.reply = reply
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the request completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (protocol.Reply, error) {
	select {
	case <-p.done:
		return p.reply, p.err
	case <-ctx.Done():
		return protocol.Reply{}, ctx.Err()
	}
}

// WaitFor waits at most d. It reports whether the request completed.
func (p *Pending) WaitFor(d time.Duration) (protocol.Reply, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.reply, true
	case <-timer.C:
		return protocol.Reply{}, false
	}
}

// Bridge holds at most one pending request.
type Bridge struct {
	mu      sync.Mutex
	pending *Pending
	closed  error
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Begin registers a request before its line is written. With no expected
// reply types any incoming line completes it.
func (b *Bridge) Begin(action Action, expects ...protocol.ReplyType) (*Pending, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed != nil {
		return nil, b.closed
	}
	if b.pending != nil {
		return nil, e.ErrRequestPending
	}
	b.pending = &Pending{
		action:  action,
		expects: expects,
		done:    make(chan struct{}),
	}
	return b.pending, nil
}

// Peek returns the action of the pending request, None if there is none.
func (b *Bridge) Peek() Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return None
	}
	return b.pending.action
}

// Resolve completes the pending request if it accepts reply and resets the
// bridge to None. It reports whether a request was completed.
func (b *Bridge) Resolve(reply protocol.Reply) bool {
	b.mu.Lock()
	p := b.pending
	if p == nil || !p.accepts(reply.Type) {
		b.mu.Unlock()
		return false
	}
	b.pending = nil
	b.mu.Unlock()

	p.complete(reply, nil)
	return true
}

// Cancel drops p if it is still the pending request.
func (b *Bridge) Cancel(p *Pending) {
	b.mu.Lock()
	if b.pending == p {
		b.pending = nil
	}
	b.mu.Unlock()
	p.complete(protocol.Reply{}, context.Canceled)
}

// Close fails the pending request with err and rejects later ones.
func (b *Bridge) Close(err error) {
	b.mu.Lock()
	p := b.pending
	b.pending = nil
	if b.closed == nil {
		b.closed = err
	}
	b.mu.Unlock()

	if p != nil {
		p.complete(protocol.Reply{}, err)
	}
}
