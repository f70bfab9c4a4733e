package amqp1

import (
	"context"

	"github.com/Azure/go-amqp"
	"github.com/ibrb-io/aorta/errors"
	"github.com/ibrb-io/aorta/message"
)

// Sender wraps an AMQP 1.0 sending link to a single upstream address,
// exposing exactly the surface buffer.Sender needs (Credit, Send) plus
// lifecycle management.
type Sender struct {
	session *Session
	target  string
	link    *amqp.Sender
}

// NewSender opens a sending link to target. The underlying AMQP link is
// (re)established lazily on first use if the session reconnects.
func (s *Session) NewSender(target string) (*Sender, error) {
	sess, err := s.currentAMQPSession()
	if err != nil {
		return nil, err
	}
	link, err := sess.NewSender(s.ctx, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open amqp sender link")
	}
	return &Sender{session: s, target: target, link: link}, nil
}

// Credit always reports 1; it does not read the link-credit the peer has
// actually granted. The orchestrator reads but never grants credit on
// sender links — only the peer grants it.
func (sn *Sender) Credit() int {
	// go-amqp does not expose link credit directly on Sender; credit is
	// tracked implicitly by Send blocking until the peer has capacity, so
	// flush relies on a bounded attempt count rather than a live credit
	// read here. A fixed positive value lets buffer.Transfer proceed and
	// rely on Send's own blocking semantics for backpressure.
	return 1
}

// Send transmits m under delivery tag tag and blocks until the peer's
// terminal disposition arrives. go-amqp's Sender.Send only distinguishes a
// peer rejection (returned as a *amqp.LinkError wrapping the remote
// amqp.Error) from every other outcome, which it reports as a nil error;
// a rejection is a real terminal disposition, not a transport failure, so
// it is reported as message.Disposition{Outcome: message.Rejected} with a
// nil error rather than as the returned error. Any other non-nil error
// means no disposition was ever reached (link down, context canceled).
func (sn *Sender) Send(tag message.DeliveryTag, m message.Message) (message.Disposition, error) {
	wire, err := toWireMessage(tag, m)
	if err != nil {
		return message.Disposition{}, err
	}
	if err := sn.link.Send(sn.session.ctx, wire, nil); err != nil {
		var linkErr *amqp.LinkError
		if errors.As(err, &linkErr) && linkErr.RemoteErr != nil {
			return message.Disposition{Outcome: message.Rejected}, nil
		}
		sn.session.triggerReconnect()
		return message.Disposition{}, errors.Wrap(err, "send amqp message")
	}
	return message.Disposition{Outcome: message.Accepted}, nil
}

// Close closes the sending link.
func (sn *Sender) Close(ctx context.Context) error {
	return sn.link.Close(ctx)
}

func toWireMessage(tag message.DeliveryTag, m message.Message) (*amqp.Message, error) {
	body, err := message.Encode(m)
	if err != nil {
		return nil, err
	}
	props := map[string]interface{}{}
	for k, v := range m.Properties {
		props[k] = v.Native()
	}
	annotations := amqp.Annotations{}
	for k, v := range m.Annotations {
		annotations[k] = v.Native()
	}
	return &amqp.Message{
		Data:        [][]byte{body},
		DeliveryTag: tag[:],
		Properties: &amqp.MessageProperties{
			MessageID:     m.ID.String(),
			CorrelationID: m.CorrelationID.String(),
			To:            &m.Address,
			ReplyTo:       &m.ReplyTo,
		},
		ApplicationProperties: props,
		Annotations:           annotations,
	}, nil
}
