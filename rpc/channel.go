// Package rpc turns the search host's asynchronous message stream into ordinary
// request/response calls, matching replies to requests by correlation id.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giygas/medicaments-search/logging"
	"github.com/giygas/medicaments-search/metrics"
	"github.com/giygas/medicaments-search/protocol"
)

// DefaultTimeout bounds every call that gets no response
const DefaultTimeout = 5 * time.Second

// Transport is the duplex link to a host. Post must not block: a host that
// cannot accept more work reports it as an error. Responses must be closed once
// the host has stopped, Terminate included.
type Transport interface {
	Post(req protocol.Request) error
	Responses() <-chan protocol.Response
	Terminate()
}

// Call is one request awaiting its response. Done receives the call exactly
// once, when it reaches a terminal state.
type Call struct {
	Type          protocol.MessageType
	CorrelationID string
	Payload       json.RawMessage // response payload on success
	Error         error
	Done          chan *Call

	createdAt time.Time
	timer     *time.Timer
}

// Option configures a Channel
type Option func(*Channel)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithIDGenerator replaces the correlation id generator
func WithIDGenerator(gen func() string) Option {
	return func(c *Channel) {
		c.newID = gen
	}
}

// Channel correlates requests posted to a Transport with the responses it
// emits. The pending set is owned by the Channel and dies with it.
type Channel struct {
	transport Transport
	timeout   time.Duration
	newID     func() string

	mu      sync.Mutex
	pending map[string]*Call
	closed  bool

	closeOnce    sync.Once
	dispatchDone chan struct{}
}

// NewChannel starts dispatching responses from t
func NewChannel(t Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:    t,
		timeout:      DefaultTimeout,
		newID:        newCorrelationID,
		pending:      make(map[string]*Call),
		dispatchDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatch()
	return c
}

// newCorrelationID is unique among pending calls: a timestamp plus a random suffix
func newCorrelationID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())
}

// Go posts a command and returns immediately. The result arrives on call.Done.
func (c *Channel) Go(typ protocol.MessageType, payload any) *Call {
	call := &Call{
		Type:      typ,
		Done:      make(chan *Call, 1),
		createdAt: time.Now(),
	}

	req := protocol.Request{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.finish(call, nil, protocol.NewError(protocol.KindMalformedPayload, "failed to encode payload", err))
			return call
		}
		req.Payload = data
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.finish(call, nil, protocol.NewError(protocol.KindHostUnavailable, "channel closed", nil))
		return call
	}

	id := c.newID()
	for {
		if _, taken := c.pending[id]; !taken {
			break
		}
		id = c.newID()
	}
	call.CorrelationID = id
	req.CorrelationID = id

	c.pending[id] = call
	call.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	metrics.RPCPending.Inc()
	c.mu.Unlock()

	if err := c.transport.Post(req); err != nil {
		if c.take(id) != nil {
			if protocol.KindOf(err) == protocol.KindInternal {
				err = protocol.NewError(protocol.KindHostUnavailable, "failed to post request", err)
			}
			c.finish(call, nil, err)
		}
	}
	return call
}

// Send posts a command and waits for its response, decoding the payload into
// out when out is non-nil. Cancelling ctx stops waiting; a late response is
// then discarded as stale.
func (c *Channel) Send(ctx context.Context, typ protocol.MessageType, payload any, out any) error {
	call := c.Go(typ, payload)

	select {
	case <-call.Done:
	case <-ctx.Done():
		if c.take(call.CorrelationID) != nil {
			c.finish(call, nil, ctx.Err())
		}
		<-call.Done
	}

	if call.Error != nil {
		return call.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(call.Payload, out); err != nil {
		return protocol.NewError(protocol.KindMalformedPayload, fmt.Sprintf("failed to decode %s response", typ), err)
	}
	return nil
}

// Pending returns the number of calls still waiting for a response
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close terminates the host and rejects every pending call with HostUnavailable
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.failAll(protocol.NewError(protocol.KindHostUnavailable, "channel closed", nil))
		c.transport.Terminate()
		<-c.dispatchDone
	})
	return nil
}

func (c *Channel) dispatch() {
	defer close(c.dispatchDone)

	for resp := range c.transport.Responses() {
		call := c.take(resp.CorrelationID)
		if call == nil {
			metrics.RPCStaleResponses.Inc()
			logging.Debug("Discarding stale search host response",
				"type", resp.Type,
				"correlation_id", resp.CorrelationID,
			)
			continue
		}

		if resp.Failed() {
			c.finish(call, nil, resp.Err())
		} else {
			c.finish(call, resp.Payload, nil)
		}
	}

	// The host stopped, nothing pending can be answered any more
	c.failAll(protocol.NewError(protocol.KindHostUnavailable, "search host stopped", nil))
}

func (c *Channel) expire(id string) {
	call := c.take(id)
	if call == nil {
		return
	}
	logging.Warn("Search host request timed out",
		"type", call.Type,
		"correlation_id", id,
		"timeout", c.timeout,
	)
	c.finish(call, nil, protocol.NewError(protocol.KindTimeout, fmt.Sprintf("no response within %s", c.timeout), nil))
}

// take removes and returns the pending call for id. Exactly one of the
// response, timeout, cancellation and teardown paths gets a non-nil call.
func (c *Channel) take(id string) *Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	call, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	if call.timer != nil {
		call.timer.Stop()
	}
	metrics.RPCPending.Dec()
	return call
}

func (c *Channel) failAll(err error) {
	c.mu.Lock()
	c.closed = true
	calls := make([]*Call, 0, len(c.pending))
	for id, call := range c.pending {
		delete(c.pending, id)
		if call.timer != nil {
			call.timer.Stop()
		}
		metrics.RPCPending.Dec()
		calls = append(calls, call)
	}
	c.mu.Unlock()

	for _, call := range calls {
		c.finish(call, nil, err)
	}
}

func (c *Channel) finish(call *Call, payload json.RawMessage, err error) {
	call.Payload = payload
	call.Error = err

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, protocol.ErrTimeout):
		outcome = metrics.OutcomeTimeout
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.RPCTotals.WithLabelValues(string(call.Type), outcome).Inc()
	metrics.RPCDuration.WithLabelValues(string(call.Type)).Observe(time.Since(call.createdAt).Seconds())

	call.Done <- call
}
