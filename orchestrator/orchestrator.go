// Package orchestrator implements the C6 event-loop: a single cooperative
// loop goroutine plus one companion goroutine injecting periodic beat
// ticks, coordinated with golang.org/x/sync/errgroup the same way the
// teacher coordinates its session event loop and background workers with
// sync.WaitGroup, generalized to errgroup because the loop, beat and
// signal-handling goroutines here each report an error that should stop
// the others.
package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibrb-io/aorta/buffer"
	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/errors"
	xlog "github.com/ibrb-io/aorta/log"
	"github.com/ibrb-io/aorta/message"
	"github.com/ibrb-io/aorta/publisher"
	"github.com/ibrb-io/aorta/transport/amqp1"
)

// routeEngine is the surface Orchestrator needs from a rule set: a pure
// (message) -> destinations function. *router.Engine satisfies it directly;
// *router.Watcher also satisfies it by delegating to whichever Engine is
// currently active, so a router daemon can hot-swap rules without the
// orchestrator needing to re-fetch anything.
type routeEngine interface {
	Route(m message.Message) []string
}

// Mode selects which responsibilities the orchestrator takes on. Router
// mode additionally wires C4 routing on top of everything publisher mode
// does.
type Mode int

const (
	// ModePublisher only forwards durably-queued messages to upstream
	// sender links.
	ModePublisher Mode = iota
	// ModeRouter additionally accepts inbound messages, routes them, and
	// re-enqueues a copy per matched destination.
	ModeRouter
)

const (
	defaultPublisherBeatHz = 10
	defaultRouterBeatHz    = 20
	defaultFlushLimit      = 64
)

// sender is the surface Orchestrator needs from a sending link: enough to
// drive buffer.Transfer and to close the link at shutdown. amqp1.Sender
// satisfies it; tests substitute a fake so flush/beat logic is exercised
// without a live AMQP peer.
type sender interface {
	buffer.Sender
	Close(ctx context.Context) error
}

// inboundDelivery pairs a decoded message with a closure that settles it,
// handed from a receiver goroutine to the loop goroutine over a channel so
// only the loop goroutine ever touches buf or the router engine. accept is
// a closure rather than a *amqp1.Receiver/*amqp.Message pair so the loop's
// routing logic can be exercised without a live AMQP link.
type inboundDelivery struct {
	msg    message.Message
	accept func(ctx context.Context) error
}

// Orchestrator owns the AMQP session, the configured sender links, the
// outbound buffer, and (in router mode) the receiver links and routing
// engine. It matches the teacher's pattern of a single resource-owning
// type driving one internal event loop.
type Orchestrator struct {
	mode Mode

	session *amqp1.Session
	buf     *buffer.Spool
	pub     *publisher.Publisher
	engine  routeEngine

	senders   map[string]sender
	receivers []*amqp1.Receiver

	beatInterval time.Duration
	flushLimit   int
	clk          clock.Clock
	log          xlog.Logger

	flushNow chan struct{}
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger attaches a structured logger.
func WithLogger(l xlog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock overrides the time source driving the beat timer.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = c }
}

// WithBeatRate overrides the default beat frequency (10 Hz publisher mode,
// 20 Hz router mode).
func WithBeatRate(hz int) Option {
	return func(o *Orchestrator) {
		if hz > 0 {
			o.beatInterval = time.Second / time.Duration(hz)
		}
	}
}

// WithFlushLimit overrides how many messages a single flush call will
// attempt to transfer before yielding back to the beat/event loop.
func WithFlushLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.flushLimit = n
		}
	}
}

// WithRouter installs the routing engine and switches the orchestrator into
// router mode. e is typically a *router.Engine for a static rule set or a
// *router.Watcher when rule files should be hot-reloaded.
func WithRouter(e routeEngine) Option {
	return func(o *Orchestrator) {
		o.mode = ModeRouter
		o.engine = e
	}
}

// New builds an Orchestrator over session and buf. Sender links are opened
// eagerly, one per upstream address.
func New(session *amqp1.Session, buf *buffer.Spool, upstreams []string, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		mode:         ModePublisher,
		session:      session,
		buf:          buf,
		beatInterval: time.Second / defaultPublisherBeatHz,
		flushLimit:   defaultFlushLimit,
		clk:          clock.Real{},
		log:          xlog.Discard(),
		senders:      map[string]sender{},
		flushNow:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.mode == ModeRouter && o.beatInterval == time.Second/defaultPublisherBeatHz {
		o.beatInterval = time.Second / defaultRouterBeatHz
	}
	o.pub = publisher.New(buf, publisher.WithClock(o.clk), publisher.WithLogger(o.log))

	for _, addr := range upstreams {
		sn, err := session.NewSender(addr)
		if err != nil {
			return nil, errors.Wrap(err, "open upstream sender link")
		}
		o.senders[addr] = sn
	}
	return o, nil
}

// AddReceiver opens a receiving link on source and registers it for
// router-mode inbound fan-out. Only meaningful in ModeRouter. source must
// be one of the configured upstream addresses (amqp1.WithUpstreams);
// anything else is refused as a protocol violation rather than silently
// accepted, since an unconfigured peer has no business feeding messages
// into this router.
func (o *Orchestrator) AddReceiver(source string) error {
	if !o.session.IsUpstream(source) {
		return errors.Wrap(errors.ProtocolViolation, "receiver source not in upstream allowlist: "+source)
	}
	r, err := o.session.NewReceiver(source)
	if err != nil {
		return errors.Wrap(err, "open inbound receiver link")
	}
	o.receivers = append(o.receivers, r)
	return nil
}

// Run drives the event loop until ctx is canceled or SIGINT/SIGTERM is
// received; SIGHUP is ignored (reserved for a future config reload). It
// returns once every goroutine it started has exited.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGHUP)
	defer signal.Stop(sig)

	g.Go(func() error {
		select {
		case <-sig:
			o.log.Info("shutdown signal received")
			cancel()
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		return o.runBeat(gctx)
	})

	inbound := make(chan inboundDelivery, 64)
	if o.mode == ModeRouter {
		for _, r := range o.receivers {
			r := r
			g.Go(func() error {
				return o.runReceiver(gctx, r, inbound)
			})
		}
	}

	g.Go(func() error {
		return o.loop(gctx, inbound)
	})

	err := g.Wait()
	for _, sn := range o.senders {
		_ = sn.Close(context.Background())
	}
	for _, r := range o.receivers {
		_ = r.Close(context.Background())
	}
	if err := o.session.Close(); err != nil {
		o.log.Warning("session close failed", "error", err.Error())
	}
	return err
}

// loop is the single cooperative goroutine allowed to mutate buf or the
// routing engine, matching §5's "only the loop goroutine touches buffer
// state" invariant.
func (o *Orchestrator) loop(ctx context.Context, inbound <-chan inboundDelivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.flushNow:
			o.flushOne()
		case d := <-inbound:
			o.handleInbound(d)
		}
	}
}

// handleInbound routes an accepted inbound message to its destinations,
// enqueuing a copy per destination under a fresh message ID (the spool
// keys queue entries by ID), then grants one credit back and
// settles the inbound delivery ACCEPTED, matching §4.5's router-mode
// contract. A prompt flush follows so forwarding does not wait for the
// next beat.
func (o *Orchestrator) handleInbound(d inboundDelivery) {
	for _, dest := range o.engine.Route(d.msg) {
		fwd := d.msg
		fwd.ID = message.NewID()
		fwd.Address = dest
		if err := o.buf.Enqueue(fwd, o.clk.Now()); err != nil {
			o.log.Error("enqueue routed message failed", "error", err.Error(), "destination", dest)
		}
	}
	if err := d.accept(context.Background()); err != nil {
		o.log.Warning("accept inbound delivery failed", "error", err.Error())
	}
	o.requestFlush()
}

func (o *Orchestrator) requestFlush() {
	select {
	case o.flushNow <- struct{}{}:
	default:
	}
}

// runReceiver pulls inbound messages off r and hands them to the loop
// goroutine; it never touches buf or engine itself.
func (o *Orchestrator) runReceiver(ctx context.Context, r *amqp1.Receiver, inbound chan<- inboundDelivery) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		m, wire, err := r.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.log.Warning("receive failed, retrying", "error", err.Error())
			select {
			case <-o.clk.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		wire := wire
		d := inboundDelivery{
			msg:    m,
			accept: func(ctx context.Context) error { return r.Accept(ctx, wire) },
		}
		select {
		case inbound <- d:
		case <-ctx.Done():
			return nil
		}
	}
}

