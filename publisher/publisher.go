// Package publisher implements the C5 state machine: it normalizes
// messages, drives the outbound buffer, and maps AMQP terminal settlement
// outcomes onto buffer operations.
package publisher

import (
	"time"

	"github.com/ibrb-io/aorta/buffer"
	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/errors"
	xlog "github.com/ibrb-io/aorta/log"
	"github.com/ibrb-io/aorta/message"
)

// TerminalState is one of the four definitive AMQP 1.0 delivery outcomes.
// It aliases message.Outcome so transport/amqp1 and buffer can report and
// consume dispositions without importing publisher themselves.
type TerminalState = message.Outcome

const (
	// Accepted means the peer took definitive ownership of the message.
	Accepted = message.Accepted
	// Rejected means the peer refused the message outright.
	Rejected = message.Rejected
	// Released means the peer returned the message undelivered, unmodified.
	Released = message.Released
	// Modified means the peer returned the message, optionally marking it
	// undeliverable.
	Modified = message.Modified
)

// Settlement carries a completed delivery outcome for one delivery tag, as
// reported by the transport adapter.
type Settlement struct {
	Tag           message.DeliveryTag
	State         TerminalState
	Undeliverable bool // only meaningful when State == Modified
}

// OnSettled is invoked once a message has been durably enqueued (not once
// the remote peer accepts it — durability, not delivery, is the publish
// boundary per §6).
type OnSettled func(err error)

// Publisher normalizes and durably enqueues messages, and consumes
// settlement events to apply the outcome policy in buffer.
type Publisher struct {
	buf   *buffer.Spool
	clock clock.Clock
	log   xlog.Logger
	clean message.CleanProperties
}

// Option configures a Publisher at construction time.
type Option func(*Publisher)

// WithLogger attaches a structured logger.
func WithLogger(l xlog.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) { p.clock = c }
}

// WithCleanProperties installs the optional property-validation hook
// applied to event messages before they are enqueued.
func WithCleanProperties(fn message.CleanProperties) Option {
	return func(p *Publisher) { p.clean = fn }
}

// New wraps buf with the publisher state machine.
func New(buf *buffer.Spool, opts ...Option) *Publisher {
	p := &Publisher{
		buf:   buf,
		clock: clock.Real{},
		log:   xlog.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish normalizes m, enqueues it durably (delayMS milliseconds in the
// future), and returns once the enqueue fsync completes — the delay unit
// is milliseconds at this boundary, converted to an absolute not_before
// internally before it ever reaches the buffer. onSettled, if non-nil,
// fires exactly once durability is decided: nil on a successful enqueue,
// the failure otherwise. This is the §6 durability boundary, not remote
// delivery — it fires well before any OnSettled(Settlement) call for the
// same message.
func (p *Publisher) Publish(m message.Message, delayMS int64, onSettled OnSettled) error {
	normalized, err := message.Normalize(m, p.clock)
	if err != nil {
		wrapped := errors.Wrap(err, "normalize message")
		if onSettled != nil {
			onSettled(wrapped)
		}
		return wrapped
	}
	return p.enqueueWithDelay(normalized, delayMS, onSettled)
}

// enqueueWithDelay converts a millisecond delay to an absolute not_before,
// durably enqueues an already-normalized message, and fires onSettled (if
// non-nil) with the enqueue outcome.
func (p *Publisher) enqueueWithDelay(m message.Message, delayMS int64, onSettled OnSettled) error {
	notBefore := p.clock.Now().Add(time.Duration(delayMS) * time.Millisecond)
	err := p.buf.Enqueue(m, notBefore)
	if err != nil {
		err = errors.Wrap(err, "publish message")
	}
	if onSettled != nil {
		onSettled(err)
	}
	return err
}

// OnSettled applies s to the buffer per the C5 transition table. Unknown
// terminal states are defensively treated as Rejected and logged. A
// duplicate settlement for an already-terminal tag is a no-op: the
// delivery record is gone by the time the first settlement is applied, so
// every buffer outcome method already treats "no such tag" as success.
func (p *Publisher) OnSettled(s Settlement) error {
	var err error
	switch s.State {
	case Accepted:
		err = p.buf.OnAccepted(s.Tag)
	case Rejected:
		err = p.buf.OnRejected(s.Tag)
	case Released:
		err = p.buf.OnReleased(s.Tag)
	case Modified:
		err = p.buf.OnModified(s.Tag, s.Undeliverable)
	default:
		p.log.Warning("unknown terminal state, treating as rejected", "tag", s.Tag.String())
		err = p.buf.OnRejected(s.Tag)
	}
	if err != nil {
		return errors.Wrap(err, "apply settlement outcome")
	}
	return nil
}
