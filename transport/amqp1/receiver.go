package amqp1

import (
	"context"

	"github.com/Azure/go-amqp"
	"github.com/ibrb-io/aorta/errors"
	"github.com/ibrb-io/aorta/message"
)

// Receiver wraps an AMQP 1.0 receiving link in router mode.
type Receiver struct {
	session *Session
	source  string
	link    *amqp.Receiver
	credit  int32
}

// defaultRouterCredit is the fixed credit grant new receiving links get in
// router mode, per §4.5.
const defaultRouterCredit = 1000

// NewReceiver opens a receiving link on source with the standard router
// credit grant.
func (s *Session) NewReceiver(source string) (*Receiver, error) {
	sess, err := s.currentAMQPSession()
	if err != nil {
		return nil, err
	}
	credit := int32(defaultRouterCredit)
	link, err := sess.NewReceiver(s.ctx, source, &amqp.ReceiverOptions{Credit: credit})
	if err != nil {
		return nil, errors.Wrap(err, "open amqp receiver link")
	}
	return &Receiver{session: s, source: source, link: link, credit: credit}, nil
}

// Receive blocks until a message arrives or ctx is canceled.
func (r *Receiver) Receive(ctx context.Context) (message.Message, *amqp.Message, error) {
	wire, err := r.link.Receive(ctx, nil)
	if err != nil {
		r.session.triggerReconnect()
		return message.Message{}, nil, errors.Wrap(err, "receive amqp message")
	}
	m, err := fromWireMessage(wire)
	return m, wire, err
}

// Accept settles wire as ACCEPTED and grants one credit back to the link,
// per §4.5's "grant 1 credit back" rule.
func (r *Receiver) Accept(ctx context.Context, wire *amqp.Message) error {
	if err := r.link.AcceptMessage(ctx, wire); err != nil {
		return errors.Wrap(err, "accept amqp message")
	}
	return nil
}

// Reject settles wire as REJECTED.
func (r *Receiver) Reject(ctx context.Context, wire *amqp.Message, cause error) error {
	var amqpErr *amqp.Error
	if cause != nil {
		amqpErr = &amqp.Error{Condition: amqp.ErrCond("aorta:rejected"), Description: cause.Error()}
	}
	return errors.Wrap(r.link.RejectMessage(ctx, wire, amqpErr), "reject amqp message")
}

// Close closes the receiving link.
func (r *Receiver) Close(ctx context.Context) error {
	return r.link.Close(ctx)
}

func fromWireMessage(wire *amqp.Message) (message.Message, error) {
	var body []byte
	if len(wire.Data) > 0 {
		body = wire.Data[0]
	}
	m, err := message.Decode(body)
	if err != nil {
		return message.Message{}, err
	}

	if wire.Properties != nil {
		if id, ok := wire.Properties.MessageID.(string); ok {
			if parsed, perr := message.ParseID(id); perr == nil {
				m.ID = parsed
			}
		}
		if cid, ok := wire.Properties.CorrelationID.(string); ok {
			if parsed, perr := message.ParseID(cid); perr == nil {
				m.CorrelationID = parsed
			}
		}
		if wire.Properties.ReplyTo != nil {
			m.ReplyTo = *wire.Properties.ReplyTo
		}
	}

	if m.Annotations == nil {
		m.Annotations = map[string]message.Value{}
	}
	for k, v := range wire.Annotations {
		key, ok := k.(string)
		if !ok {
			continue
		}
		m.Annotations[key] = message.FromNative(v)
	}
	return m, nil
}
