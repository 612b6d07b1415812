// Package reactor implements the single-writer request/reply concurrency
// skeleton that owns a Profile and multiplexes command requests against
// inbound gossip (spec.md §4.G). It generalises the teacher's plain HTTP
// request handling into the Rust original's ReactorSender/ReplySender
// request-channel pattern (original_source's lib/src/reactor/ctrl.rs),
// expressed with Go channels instead of an enum-keyed mpsc pair.
package reactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/distrox/distrox/gossip"
	"github.com/distrox/distrox/profile"
)

var log = logging.Logger("distrox/reactor")

// State is the Reactor's lifecycle state (spec.md §4.G's state machine).
type State int

const (
	StateInitialising State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitialising:
		return "Initialising"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Request is any command the Reactor accepts. Concrete requests are
// PingRequest, PostTextRequest, PublishMeRequest, ConnectRequest and
// ExitRequest below; a richer gossip-handling strategy may define its
// own alongside them (spec.md §4.G's "plus strategy-specific requests").
type Request interface {
	isRequest()
}

type PingRequest struct{ reply chan PingReply }
type PostTextRequest struct {
	Text  string
	reply chan PostTextReply
}
type PublishMeRequest struct{ reply chan PublishMeReply }
type ConnectRequest struct {
	Addr  string
	reply chan ConnectReply
}
type ExitRequest struct{ reply chan ExitReply }

func (PingRequest) isRequest()      {}
func (PostTextRequest) isRequest()  {}
func (PublishMeRequest) isRequest() {}
func (ConnectRequest) isRequest()   {}
func (ExitRequest) isRequest()      {}

// Reply kinds, one per Request kind.

type PingReply struct{}

// PostTextReply carries either a CID (success) or an error (failure);
// spec.md requires a reply is sent even on failure, never just dropped.
type PostTextReply struct {
	CID cid.Cid
	Err error
}

// PublishStatus is PublishMeReply's result tag.
type PublishStatus int

const (
	PublishOK PublishStatus = iota
	PublishNoHead
	PublishErr
)

type PublishMeReply struct {
	Status PublishStatus
	Err    error
}

type ConnectReply struct{ Err error }

type ExitReply struct{}

// ErrCancelled is returned to any request still in flight when shutdown
// drains the queue (spec.md §5's Cancellation).
var ErrCancelled = fmt.Errorf("reactor: request cancelled by shutdown")

// ErrHandlerCrashed is surfaced in place of a panicking handler's reply
// (spec.md §4.G's Fault handling; §7's Internal error kind).
var ErrHandlerCrashed = fmt.Errorf("reactor: handler crashed")

// Reactor is the sole writer of a Profile. All mutation flows through
// Submit; the fields below must never be touched directly by another
// goroutine (spec.md §4.G, §5's Shared resources).
type Reactor struct {
	mu      sync.RWMutex
	profile *profile.Profile

	requests chan Request
	topic    string
	strategy gossip.HandlingStrategy

	state      State
	stateMu    sync.Mutex
	publishInt time.Duration
}

// State returns the Reactor's current lifecycle state.
func (r *Reactor) State() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

// New constructs a Reactor owning p. strategy defaults to
// gossip.LogHandlingStrategy{} if nil. The Reactor does not start
// processing until Run is called.
func New(p *profile.Profile, topic string, strategy gossip.HandlingStrategy) *Reactor {
	if strategy == nil {
		strategy = gossip.LogHandlingStrategy{}
	}
	return &Reactor{
		profile:    p,
		requests:   make(chan Request, 8),
		topic:      topic,
		strategy:   strategy,
		state:      StateInitialising,
		publishInt: 500 * time.Millisecond,
	}
}

func (r *Reactor) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Submit enqueues req for processing and is safe to call from any
// goroutine. It blocks only if the Reactor's request buffer is full.
func (r *Reactor) Submit(ctx context.Context, req Request) error {
	select {
	case r.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping submits a liveness check and waits for Pong.
func (r *Reactor) Ping(ctx context.Context) error {
	req := PingRequest{reply: make(chan PingReply, 1)}
	if err := r.Submit(ctx, req); err != nil {
		return err
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PostText submits a post and waits for the resulting CID or error.
func (r *Reactor) PostText(ctx context.Context, text string) (cid.Cid, error) {
	req := PostTextRequest{Text: text, reply: make(chan PostTextReply, 1)}
	if err := r.Submit(ctx, req); err != nil {
		return cid.Undef, err
	}
	select {
	case rep := <-req.reply:
		return rep.CID, rep.Err
	case <-ctx.Done():
		return cid.Undef, ctx.Err()
	}
}

// PublishMe submits a PublishMe command and waits for its status.
func (r *Reactor) PublishMe(ctx context.Context) (PublishStatus, error) {
	req := PublishMeRequest{reply: make(chan PublishMeReply, 1)}
	if err := r.Submit(ctx, req); err != nil {
		return PublishErr, err
	}
	select {
	case rep := <-req.reply:
		return rep.Status, rep.Err
	case <-ctx.Done():
		return PublishErr, ctx.Err()
	}
}

// Connect submits a Connect command and waits for its result.
func (r *Reactor) Connect(ctx context.Context, addr string) error {
	req := ConnectRequest{Addr: addr, reply: make(chan ConnectReply, 1)}
	if err := r.Submit(ctx, req); err != nil {
		return err
	}
	select {
	case rep := <-req.reply:
		return rep.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exit requests shutdown and waits for the Reactor to acknowledge it.
func (r *Reactor) Exit(ctx context.Context) error {
	req := ExitRequest{reply: make(chan ExitReply, 1)}
	if err := r.Submit(ctx, req); err != nil {
		return err
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the Reactor's main loop until ctx is cancelled or an Exit
// request is processed: a fair, cooperative select over command requests
// and gossip events, periodically re-publishing HEAD (spec.md §4.G, §6's
// "loop publishing own HEAD every ≈500 ms"). It owns ingress and closes
// it on return.
func (r *Reactor) Run(ctx context.Context) error {
	sub, err := r.profile.Client().Store().PubSubSubscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribing to gossip topic %q: %w", r.topic, err)
	}
	ingress := gossip.NewIngress(sub, gossip.LogDecodeErrorStrategy{})
	defer ingress.Close()

	r.setState(StateRunning)
	log.Infow("reactor running", "topic", r.topic)

	gossipCh := make(chan gossipEvent)
	gossipCtx, cancelGossip := context.WithCancel(ctx)
	defer cancelGossip()
	go r.pumpGossip(gossipCtx, ingress, gossipCh)

	ticker := time.NewTicker(r.publishInt)
	defer ticker.Stop()

	running := true
	for running {
		select {
		case <-ctx.Done():
			running = false
		case req := <-r.requests:
			running = r.dispatch(ctx, req)
		case ev := <-gossipCh:
			r.handleGossipEvent(ctx, ev)
		case <-ticker.C:
			r.tickPublish(ctx)
		}
	}

	r.setState(StateStopping)
	r.drainPending()
	r.setState(StateTerminated)
	log.Infow("reactor terminated")
	return nil
}

type gossipEvent struct {
	from peer.ID
	env  gossip.Envelope
	err  error
}

// pumpGossip bridges the blocking Ingress.Next into the Run select loop.
func (r *Reactor) pumpGossip(ctx context.Context, in *gossip.Ingress, out chan<- gossipEvent) {
	for {
		from, env, err := in.Next(ctx)
		select {
		case out <- gossipEvent{from: from, env: env, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleGossipEvent dispatches a decoded envelope to the configured
// HandlingStrategy, filtering out the peer's own publications first
// (spec.md §4.F's Self-loop suppression, §8's Testable Property 6). A
// panicking strategy is recovered and logged; the Reactor keeps running.
func (r *Reactor) handleGossipEvent(ctx context.Context, ev gossipEvent) {
	if ev.err != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("gossip handler crashed", "from", ev.from, "panic", rec)
		}
	}()
	store := r.profile.Client().Store()
	if gossip.IsSelf(store, ev.from) {
		return
	}
	r.strategy.Handle(ctx, ev.from, ev.env)
}

func (r *Reactor) dispatch(ctx context.Context, req Request) (keepRunning bool) {
	keepRunning = true
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("handler crashed", "panic", rec)
			replyCrash(req)
		}
	}()

	switch rq := req.(type) {
	case PingRequest:
		rq.reply <- PingReply{}
	case PostTextRequest:
		r.handlePostText(ctx, rq)
	case PublishMeRequest:
		r.handlePublishMe(ctx, rq)
	case ConnectRequest:
		r.handleConnect(ctx, rq)
	case ExitRequest:
		rq.reply <- ExitReply{}
		keepRunning = false
	}
	return keepRunning
}

func (r *Reactor) handlePostText(ctx context.Context, rq PostTextRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.profile.PostText(ctx, rq.Text)
	rq.reply <- PostTextReply{CID: c, Err: err}
}

func (r *Reactor) handlePublishMe(ctx context.Context, rq PublishMeRequest) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	head := r.profile.Head()
	if head == nil {
		rq.reply <- PublishMeReply{Status: PublishNoHead, Err: gossip.ErrNoHead}
		return
	}
	err := gossip.PublishOwnState(ctx, r.profile.Client().Store(), r.topic, *head)
	if err != nil {
		rq.reply <- PublishMeReply{Status: PublishErr, Err: err}
		return
	}
	rq.reply <- PublishMeReply{Status: PublishOK}
}

func (r *Reactor) handleConnect(ctx context.Context, rq ConnectRequest) {
	err := r.profile.Client().Store().Connect(ctx, rq.Addr)
	rq.reply <- ConnectReply{Err: err}
}

func (r *Reactor) tickPublish(ctx context.Context) {
	r.mu.RLock()
	head := r.profile.Head()
	r.mu.RUnlock()
	if head == nil {
		return
	}
	if err := gossip.PublishOwnState(ctx, r.profile.Client().Store(), r.topic, *head); err != nil {
		log.Debugw("periodic HEAD publish failed", "error", err)
	}
}

// drainPending replies Cancelled to any request still queued once the
// Reactor has stopped selecting on r.requests (spec.md §5's Cancellation).
func (r *Reactor) drainPending() {
	for {
		select {
		case req := <-r.requests:
			replyCancelled(req)
		default:
			return
		}
	}
}

func replyCancelled(req Request) {
	switch rq := req.(type) {
	case PingRequest:
		rq.reply <- PingReply{}
	case PostTextRequest:
		rq.reply <- PostTextReply{Err: ErrCancelled}
	case PublishMeRequest:
		rq.reply <- PublishMeReply{Status: PublishErr, Err: ErrCancelled}
	case ConnectRequest:
		rq.reply <- ConnectReply{Err: ErrCancelled}
	case ExitRequest:
		rq.reply <- ExitReply{}
	}
}

func replyCrash(req Request) {
	switch rq := req.(type) {
	case PingRequest:
		rq.reply <- PingReply{}
	case PostTextRequest:
		rq.reply <- PostTextReply{Err: ErrHandlerCrashed}
	case PublishMeRequest:
		rq.reply <- PublishMeReply{Status: PublishErr, Err: ErrHandlerCrashed}
	case ConnectRequest:
		rq.reply <- ConnectReply{Err: ErrHandlerCrashed}
	case ExitRequest:
		rq.reply <- ExitReply{}
	}
}
