// Package message implements the envelope normalized by the publisher
// state machine: required fields, the tagged-union property map, and the
// on-disk codec used by the outbound buffer.
package message

import (
	"time"

	"github.com/Azure/go-amqp"

	"github.com/ibrb-io/aorta/errors"
)

// Class discriminates message subtypes. The source implementation used a
// class hierarchy (Message -> EventMessage -> ...); here a single struct
// plus this string tag stands in for the whole hierarchy, with
// class-specific normalization living in free functions keyed on it.
type Class string

// ClassEvent marks an application event message.
const ClassEvent Class = "event"

// Message is the envelope carried through the buffer, router and publisher.
// It is intentionally a single flat struct: no class hierarchy, no
// behavior attached to the type itself.
type Message struct {
	ID            ID
	CorrelationID ID
	CreationTime  int64 // milliseconds since UNIX epoch
	Durable       bool
	DeliveryCount int
	Address       string
	ReplyTo       string
	Annotations   map[string]Value
	Properties    map[string]Value
	Body          map[string]Value
}

// New returns a zero-valued Message with its maps initialized.
func New() Message {
	return Message{
		Annotations: map[string]Value{},
		Properties:  map[string]Value{},
		Body:        map[string]Value{},
	}
}

// Class returns the discriminator stored at Properties["message_class"],
// or "" if unset.
func (m Message) Class() Class {
	if v, ok := m.Properties["message_class"]; ok {
		if s, ok := v.String(); ok {
			return Class(s)
		}
	}
	return ""
}

// Encode serializes m to the byte form persisted in a QueueEntry/
// DeliveryRecord/FailedRecord file: the same AMQP 1.0 binary codec
// transport/amqp1 uses to talk to peers (github.com/Azure/go-amqp's
// amqp.Message.MarshalBinary), so the on-disk record is the interoperable
// AMQP encoding rather than a Go-specific one.
func Encode(m Message) ([]byte, error) {
	body, err := toAMQPMessage(m).MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	return body, nil
}

// Decode deserializes bytes produced by Encode.
func Decode(b []byte) (Message, error) {
	var wire amqp.Message
	if err := wire.UnmarshalBinary(b); err != nil {
		return Message{}, errors.Wrap(err, "decode message")
	}
	return fromAMQPMessage(&wire), nil
}

// toAMQPMessage builds the standalone amqp.Message representation of the
// full envelope used for on-disk persistence. This is deliberately separate
// from transport/amqp1's toWireMessage, which maps a Message onto the
// fields a live send actually needs (and stuffs an Encode-d copy into the
// Data section); this one carries every field so Decode can rebuild m
// exactly.
func toAMQPMessage(m Message) *amqp.Message {
	to := m.Address
	replyTo := m.ReplyTo
	creationTime := time.UnixMilli(m.CreationTime)
	return &amqp.Message{
		Header: &amqp.MessageHeader{
			Durable:       m.Durable,
			DeliveryCount: uint32(m.DeliveryCount),
		},
		Properties: &amqp.MessageProperties{
			MessageID:     m.ID.String(),
			CorrelationID: m.CorrelationID.String(),
			To:            &to,
			ReplyTo:       &replyTo,
			CreationTime:  &creationTime,
		},
		ApplicationProperties: toNative(m.Properties),
		Annotations:           nativeAnnotations(m.Annotations),
		Value:                 toNative(m.Body),
	}
}

func fromAMQPMessage(wire *amqp.Message) Message {
	m := New()

	if wire.Header != nil {
		m.Durable = wire.Header.Durable
		m.DeliveryCount = int(wire.Header.DeliveryCount)
	}

	if wire.Properties != nil {
		if id, ok := wire.Properties.MessageID.(string); ok {
			if parsed, err := ParseID(id); err == nil {
				m.ID = parsed
			}
		}
		if cid, ok := wire.Properties.CorrelationID.(string); ok {
			if parsed, err := ParseID(cid); err == nil {
				m.CorrelationID = parsed
			}
		}
		if wire.Properties.To != nil {
			m.Address = *wire.Properties.To
		}
		if wire.Properties.ReplyTo != nil {
			m.ReplyTo = *wire.Properties.ReplyTo
		}
		if wire.Properties.CreationTime != nil {
			m.CreationTime = wire.Properties.CreationTime.UnixMilli()
		}
	}

	if wire.ApplicationProperties != nil {
		m.Properties = fromNative(wire.ApplicationProperties)
	}
	if len(wire.Annotations) > 0 {
		keyed := make(map[string]interface{}, len(wire.Annotations))
		for k, v := range wire.Annotations {
			if key, ok := k.(string); ok {
				keyed[key] = v
			}
		}
		m.Annotations = fromNative(keyed)
	}
	if body, ok := wire.Value.(map[string]interface{}); ok {
		m.Body = fromNative(body)
	}

	return m
}

func nativeAnnotations(m map[string]Value) amqp.Annotations {
	out := amqp.Annotations{}
	for k, v := range m {
		out[k] = v.Native()
	}
	return out
}

func toNative(m map[string]Value) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v.Native()
	}
	return out
}

func fromNative(m map[string]interface{}) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = FromNative(v)
	}
	return out
}
