// Package workqueue runs background requests and hands their responses back
// to the thread that calls ProcessResponses.
package workqueue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-terrain/internal/logger"
)

// RequestID identifies a submitted request.
type RequestID uint64

// Request is a unit of background work.
type Request struct {
	ID         RequestID
	Channel    uint16
	Type       uint16
	Data       any
	RetryCount int

	aborted atomic.Bool
}

// Abort marks the request so it is skipped if it has not started.
func (r *Request) Abort() { r.aborted.Store(true) }

// Aborted reports whether Abort was called.
func (r *Request) Aborted() bool { return r.aborted.Load() }

// Response carries the result of a request back to the owning thread.
type Response struct {
	Request  *Request
	Success  bool
	Messages string
	Data     any
}

// RequestHandler executes requests, usually on a worker goroutine.
type RequestHandler interface {
	CanHandleRequest(req *Request, q *Queue) bool
	HandleRequest(req *Request, q *Queue) *Response
}

// ResponseHandler consumes responses on the thread calling ProcessResponses.
type ResponseHandler interface {
	CanHandleResponse(res *Response, q *Queue) bool
	HandleResponse(res *Response, q *Queue)
}

// Options configures a Queue.
type Options struct {
	// Workers is the number of background goroutines. Zero runs requests
	// inside ProcessResponses on the calling thread.
	Workers int
	// Backlog is the request channel capacity.
	Backlog int
}

// DefaultOptions returns a single worker with a modest backlog.
func DefaultOptions() Options {
	return Options{Workers: 1, Backlog: 1024}
}

// Stats reports queue activity.
type Stats struct {
	Submitted   uint64
	Processed   uint64
	Failed      uint64
	InFlight    int64
	MaxInFlight int64
}

// Queue dispatches requests to handlers registered per channel.
type Queue struct {
	opts Options
	log  *zap.Logger

	mu               sync.Mutex
	channels         map[string]uint16
	requestHandlers  map[uint16][]RequestHandler
	responseHandlers map[uint16][]ResponseHandler
	responses        []*Response
	deferred         []*Request // used when Workers == 0

	ch      chan *Request
	sendMu  sync.RWMutex // held for reading while sending on ch
	wg      sync.WaitGroup
	once    sync.Once
	started atomic.Bool
	closed  atomic.Bool

	nextID      atomic.Uint64
	submitted   atomic.Uint64
	processed   atomic.Uint64
	failed      atomic.Uint64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// New creates a queue. Call Start before submitting asynchronous work.
func New(opts Options) *Queue {
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultOptions().Backlog
	}
	return &Queue{
		opts:             opts,
		log:              logger.Named("workqueue"),
		channels:         make(map[string]uint16),
		requestHandlers:  make(map[uint16][]RequestHandler),
		responseHandlers: make(map[uint16][]ResponseHandler),
		ch:               make(chan *Request, opts.Backlog),
	}
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.loop()
		}()
	}
	q.log.Debug("work queue started", zap.Int("workers", q.opts.Workers))
}

// Shutdown stops the workers after the backlog drains.
func (q *Queue) Shutdown() {
	q.once.Do(func() {
		q.sendMu.Lock()
		q.closed.Store(true)
		close(q.ch)
		q.sendMu.Unlock()
		q.wg.Wait()
		q.log.Debug("work queue stopped",
			zap.Uint64("processed", q.processed.Load()),
			zap.Uint64("failed", q.failed.Load()))
	})
}

// Channel returns the numeric id for a named channel, creating it on first use.
func (q *Queue) Channel(name string) uint16 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if id, ok := q.channels[name]; ok {
		return id
	}
	id := uint16(len(q.channels) + 1)
	q.channels[name] = id
	return id
}

// AddRequestHandler registers h for requests on channel ch.
func (q *Queue) AddRequestHandler(ch uint16, h RequestHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requestHandlers[ch] = append(q.requestHandlers[ch], h)
}

// RemoveRequestHandler unregisters h from channel ch.
func (q *Queue) RemoveRequestHandler(ch uint16, h RequestHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	hs := q.requestHandlers[ch]
	for i, x := range hs {
		if x == h {
			q.requestHandlers[ch] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// AddResponseHandler registers h for responses on channel ch.
func (q *Queue) AddResponseHandler(ch uint16, h ResponseHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responseHandlers[ch] = append(q.responseHandlers[ch], h)
}

// RemoveResponseHandler unregisters h from channel ch.
func (q *Queue) RemoveResponseHandler(ch uint16, h ResponseHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	hs := q.responseHandlers[ch]
	for i, x := range hs {
		if x == h {
			q.responseHandlers[ch] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// AddRequest submits work. A synchronous request is handled and its response
// delivered before AddRequest returns.
func (q *Queue) AddRequest(ch, typ uint16, data any, retryCount int, synchronous bool) RequestID {
	req := &Request{
		ID:         RequestID(q.nextID.Add(1)),
		Channel:    ch,
		Type:       typ,
		Data:       data,
		RetryCount: retryCount,
	}
	q.submitted.Add(1)
	q.submit(req, synchronous)
	return req.ID
}

func (q *Queue) submit(req *Request, synchronous bool) {
	if synchronous {
		q.processResponse(q.processRequest(req))
		return
	}
	if q.enqueue(req) {
		return
	}
	q.mu.Lock()
	q.deferred = append(q.deferred, req)
	q.mu.Unlock()
}

// enqueue hands req to the workers. It reports false when there are none,
// or once Shutdown has closed the channel.
func (q *Queue) enqueue(req *Request) bool {
	if q.opts.Workers == 0 || !q.started.Load() {
		return false
	}
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed.Load() {
		return false
	}
	q.ch <- req
	return true
}

// AbortRequestsByChannel aborts every queued request on channel ch.
func (q *Queue) AbortRequestsByChannel(ch uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.deferred {
		if r.Channel == ch {
			r.Abort()
		}
	}
}

func (q *Queue) loop() {
	for req := range q.ch {
		res := q.processRequest(req)
		q.mu.Lock()
		q.responses = append(q.responses, res)
		q.mu.Unlock()
	}
}

func (q *Queue) processRequest(req *Request) (res *Response) {
	n := q.inFlight.Add(1)
	for {
		m := q.maxInFlight.Load()
		if n <= m || q.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	defer q.inFlight.Add(-1)
	defer q.processed.Add(1)

	if req.Aborted() {
		return &Response{Request: req, Messages: "aborted"}
	}

	q.mu.Lock()
	handlers := append([]RequestHandler(nil), q.requestHandlers[req.Channel]...)
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("request handler panicked",
				zap.Uint64("id", uint64(req.ID)), zap.Any("panic", r))
			res = &Response{Request: req, Messages: fmt.Sprint(r)}
		}
	}()

	for _, h := range handlers {
		if !h.CanHandleRequest(req, q) {
			continue
		}
		if res := h.HandleRequest(req, q); res != nil {
			return res
		}
	}
	return &Response{Request: req, Messages: "no handler accepted the request"}
}

func (q *Queue) processResponse(res *Response) {
	if !res.Success {
		q.failed.Add(1)
		if res.Request.RetryCount > 0 && !res.Request.Aborted() {
			res.Request.RetryCount--
			q.log.Debug("retrying request",
				zap.Uint64("id", uint64(res.Request.ID)),
				zap.String("reason", res.Messages))
			q.submit(res.Request, false)
			return
		}
	}

	q.mu.Lock()
	handlers := append([]ResponseHandler(nil), q.responseHandlers[res.Request.Channel]...)
	q.mu.Unlock()

	for _, h := range handlers {
		if h.CanHandleResponse(res, q) {
			h.HandleResponse(res, q)
			return
		}
	}
	q.log.Debug("dropping response without handler", zap.Uint64("id", uint64(res.Request.ID)))
}

// ProcessResponses delivers completed responses to their handlers and returns
// how many were delivered. With no workers it first runs queued requests.
func (q *Queue) ProcessResponses() int {
	q.mu.Lock()
	deferred := q.deferred
	q.deferred = nil
	q.mu.Unlock()

	for _, req := range deferred {
		if q.enqueue(req) {
			continue
		}
		res := q.processRequest(req)
		q.mu.Lock()
		q.responses = append(q.responses, res)
		q.mu.Unlock()
	}

	q.mu.Lock()
	pending := q.responses
	q.responses = nil
	q.mu.Unlock()

	for _, res := range pending {
		q.processResponse(res)
	}
	return len(pending)
}

// Idle reports whether nothing is queued, running or awaiting delivery.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deferred) == 0 && len(q.responses) == 0 && len(q.ch) == 0 && q.inFlight.Load() == 0
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted:   q.submitted.Load(),
		Processed:   q.processed.Load(),
		Failed:      q.failed.Load(),
		InFlight:    q.inFlight.Load(),
		MaxInFlight: q.maxInFlight.Load(),
	}
}
