// Package worker runs the search engine on its own goroutine. Callers talk to it
// only through JSON-encoded protocol messages, so the index is never shared.
package worker

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/logging"
	"github.com/giygas/medicaments-search/protocol"
	"github.com/giygas/medicaments-search/search"
)

const defaultBuffer = 64

// CommandHook runs on the host goroutine before each command. Returning false
// drops the command without a response.
type CommandHook func(req protocol.Request) bool

// Option configures a Host
type Option func(*Host)

// WithSearchOptions selects the index keys and matcher used by INIT
func WithSearchOptions(opts search.Options) Option {
	return func(h *Host) {
		h.searchOpts = opts
	}
}

// WithBuffer sets the inbound and outbound queue sizes
func WithBuffer(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithCommandHook installs a hook, mostly useful to delay or drop commands in tests
func WithCommandHook(hook CommandHook) Option {
	return func(h *Host) {
		h.hook = hook
	}
}

// Host owns a search.Engine and serves commands one at a time, in arrival order
type Host struct {
	searchOpts search.Options
	buffer     int
	hook       CommandHook

	inbound   chan protocol.Request
	responses chan protocol.Response
	done      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once

	// only touched by the loop goroutine
	engine *search.Engine
}

// NewHost starts a host goroutine. It holds no data until the first INIT.
func NewHost(opts ...Option) *Host {
	h := &Host{
		searchOpts: search.CompactOptions(),
		buffer:     defaultBuffer,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.inbound = make(chan protocol.Request, h.buffer)
	h.responses = make(chan protocol.Response, h.buffer)

	go h.loop()
	return h
}

// Post queues a command without blocking. It fails with HostUnavailable once
// the host is terminated or when the inbound queue is full.
func (h *Host) Post(req protocol.Request) error {
	select {
	case <-h.done:
		return protocol.NewError(protocol.KindHostUnavailable, "search host terminated", nil)
	default:
	}

	select {
	case h.inbound <- req:
		return nil
	default:
		return protocol.NewError(protocol.KindHostUnavailable,
			fmt.Sprintf("search host queue full (%d commands waiting)", h.buffer), nil)
	}
}

// Responses delivers one response per processed command. It is closed when the
// host stops.
func (h *Host) Responses() <-chan protocol.Response {
	return h.responses
}

// Terminate stops the host. Queued commands are dropped without responses.
func (h *Host) Terminate() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	<-h.stopped
}

// Terminated is closed once the host goroutine has exited
func (h *Host) Terminated() <-chan struct{} {
	return h.stopped
}

func (h *Host) loop() {
	defer close(h.stopped)
	defer close(h.responses)

	for {
		select {
		case <-h.done:
			return
		case req := <-h.inbound:
			if h.hook != nil && !h.hook(req) {
				continue
			}

			resp := h.handle(req)

			select {
			case h.responses <- resp:
			case <-h.done:
				return
			}
		}
	}
}

// handle turns every outcome of a command, panics included, into a response
func (h *Host) handle(req protocol.Request) (resp protocol.Response) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Search host recovered from panic",
				"type", req.Type,
				"correlation_id", req.CorrelationID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = protocol.Fail(req, protocol.NewError(protocol.KindInternal, fmt.Sprintf("panic: %v", r), nil))
		}
	}()

	payload, err := h.dispatch(req)
	if err != nil {
		logging.Debug("Search host command failed",
			"type", req.Type,
			"correlation_id", req.CorrelationID,
			"kind", protocol.KindOf(err),
			"error", err,
		)
		return protocol.Fail(req, err)
	}

	resp, err = protocol.Succeed(req, payload)
	if err != nil {
		return protocol.Fail(req, protocol.NewError(protocol.KindInternal, "failed to encode response", err))
	}

	logging.Debug("Search host command done",
		"type", req.Type,
		"correlation_id", req.CorrelationID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp
}

func (h *Host) dispatch(req protocol.Request) (any, error) {
	switch req.Type {
	case protocol.Init:
		return h.init(req.Payload)
	case protocol.Search:
		return h.search(req.Payload)
	case protocol.GetByID:
		return h.getByID(req.Payload)
	case protocol.GetStats:
		return h.engine.Stats()
	default:
		return nil, protocol.Malformed("unknown command type %q", req.Type)
	}
}

func (h *Host) init(raw json.RawMessage) (protocol.InitResult, error) {
	var records []entities.Medication
	if err := decode(raw, &records); err != nil {
		return protocol.InitResult{}, err
	}
	if len(records) == 0 {
		return protocol.InitResult{}, protocol.Malformed("INIT requires at least one record")
	}

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return protocol.InitResult{}, protocol.Malformed("record %d (id %q): %v", i, rec.ID, err)
		}
	}

	start := time.Now()
	engine, duplicates := search.NewEngine(records, h.searchOpts)
	h.engine = engine

	logging.Info("Search index built",
		"records", engine.Len(),
		"duplicates", duplicates,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return protocol.InitResult{Success: true, Count: engine.Len(), Duplicates: duplicates}, nil
}

func (h *Host) search(raw json.RawMessage) ([]entities.Medication, error) {
	var p protocol.SearchPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}

	var filters entities.SearchFilters
	if p.Filters != nil {
		filters = *p.Filters
	}

	return h.engine.Query(p.Query, filters, p.Limit)
}

func (h *Host) getByID(raw json.RawMessage) (*entities.Medication, error) {
	var p protocol.GetByIDPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, protocol.Malformed("GET_BY_ID requires an id")
	}

	rec, ok, err := h.engine.Get(p.ID)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func decode(raw json.RawMessage, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return protocol.Malformed("missing payload")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return protocol.NewError(protocol.KindMalformedPayload, "invalid payload", err)
	}
	return nil
}
