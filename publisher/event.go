package publisher

import (
	"github.com/ibrb-io/aorta/errors"
	"github.com/ibrb-io/aorta/message"
)

// EventPublisher is a thin convenience layer over Publisher for the common
// "publish(name, params)" application event shape, mirroring the source's
// EventPublisher composed over the base publisher rather than subclassing
// it.
type EventPublisher struct {
	*Publisher
}

// NewEvent wraps p with the event-message convenience API.
func NewEvent(p *Publisher) *EventPublisher {
	return &EventPublisher{Publisher: p}
}

// Publish builds an event message named name with body params, normalizes
// it via NormalizeEvent, and enqueues it delayMS milliseconds in the
// future. observed/occurred are UNIX milliseconds; 0 means "use the
// current time". onSettled, if non-nil, fires once durability is decided,
// per §6 (see Publisher.Publish).
func (e *EventPublisher) Publish(name string, params map[string]message.Value, observed, occurred, delayMS int64, onSettled OnSettled) error {
	m := message.New()
	m.Properties["event_name"] = message.String(name)
	for k, v := range params {
		m.Body[k] = v
	}

	normalized, err := message.NormalizeEvent(m, observed, occurred, e.clock, e.clean)
	if err != nil {
		wrapped := errors.Wrap(err, "normalize event message")
		if onSettled != nil {
			onSettled(wrapped)
		}
		return wrapped
	}
	return e.enqueueWithDelay(normalized, delayMS, onSettled)
}
