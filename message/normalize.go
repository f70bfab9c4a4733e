package message

import (
	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/errors"
)

// CleanProperties validates/rewrites a message's properties before it is
// queued. Returning an error rejects the publish with a ValidationError.
type CleanProperties func(Message) (map[string]Value, error)

// Normalize applies the required-field rules common to every message class,
// setting durability, delivery count, creation time and identifiers on a
// copy of m, which it returns. It is the single normalization entry point; class-specific rules
// (e.g. NormalizeEvent) run afterwards.
func Normalize(m Message, c clock.Clock) (Message, error) {
	m.Durable = true
	m.DeliveryCount = 0

	if m.CreationTime == 0 {
		m.CreationTime = c.Now().UnixMilli()
	}
	if m.ID.IsZero() {
		m.ID = NewID()
	}
	if m.CorrelationID.IsZero() {
		m.CorrelationID = NewID()
	}
	if m.Properties == nil {
		m.Properties = map[string]Value{}
	}
	return m, nil
}

// NormalizeEvent applies Normalize plus the event-message-specific rules:
// stamping the properties that record when the event was observed/occurred
// and guaranteeing a non-nil body map.
func NormalizeEvent(m Message, observed, occurred int64, c clock.Clock, clean CleanProperties) (Message, error) {
	m, err := Normalize(m, c)
	if err != nil {
		return m, err
	}
	m.Properties["message_class"] = String(string(ClassEvent))

	now := c.Now().UnixMilli()
	if observed == 0 {
		observed = now
	}
	if occurred == 0 {
		occurred = now
	}
	m.Properties["event_observed"] = Int(observed)
	m.Properties["event_occurred"] = Int(occurred)

	if m.Body == nil {
		m.Body = map[string]Value{}
	}

	if clean != nil {
		props, err := clean(m)
		if err != nil {
			return m, errors.Wrap(errors.Validation, err.Error())
		}
		m.Properties = props
	}
	return m, nil
}
