package buffer

import (
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ibrb-io/aorta/errors"
	"github.com/ibrb-io/aorta/message"
)

// NotFound is returned by Get for an unknown delivery tag. Settlement
// handlers treat it as a no-op: a duplicate settlement for a tag the core
// already cleaned up.
var NotFound = errors.New("delivery record not found")

func (s *Spool) deliveryPath(tag message.DeliveryTag) string {
	return filepath.Join(s.deliveriesPath(), tag.String()+deliverySuffix)
}

// Track durably records message m as in-flight under tag. The record is
// keyed by tag alone; the spool does not store which link or peer the send
// attempt used.
func (s *Spool) Track(tag message.DeliveryTag, m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.deliveriesPath(), tag.String()+deliverySuffix, body); err != nil {
		return errors.Wrap(err, "track delivery")
	}
	return nil
}

// Get decodes the in-flight delivery record for tag.
func (s *Spool) Get(tag message.DeliveryTag) (message.Message, error) {
	data, err := os.ReadFile(s.deliveryPath(tag))
	if err != nil {
		if os.IsNotExist(err) {
			return message.Message{}, NotFound
		}
		return message.Message{}, errors.Wrap(err, "read delivery record")
	}
	return message.Decode(data)
}

// OnAccepted removes the delivery record for tag: the message was
// successfully delivered and needs no further tracking.
func (s *Spool) OnAccepted(tag message.DeliveryTag) error {
	if err := os.Remove(s.deliveryPath(tag)); err != nil {
		if os.IsNotExist(err) {
			return nil // already cleaned up; idempotent
		}
		return errors.Wrap(err, "remove accepted delivery")
	}
	return nil
}

// OnRejected moves the delivery record for tag to rejected/, bumping
// delivery_count first per I5. The record is framed with an all-zero
// not_before header so the same reader PopDue uses also works on failed
// records.
func (s *Spool) OnRejected(tag message.DeliveryTag) error {
	m, err := s.Get(tag)
	if err != nil {
		if errors.Is(err, NotFound) {
			return nil
		}
		return err
	}
	m.DeliveryCount++
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	record := framedRecord(0, body)
	if err := moveAtomic(s.deliveryPath(tag), s.rejectedPath(), m.ID.String()+queueSuffix, record); err != nil {
		return errors.Wrap(err, "move rejected record")
	}
	return nil
}

// OnReleased re-enqueues the message for tag with a backoff delay,
// delivery_count unchanged per I5.
func (s *Spool) OnReleased(tag message.DeliveryTag) error {
	m, err := s.Get(tag)
	if err != nil {
		if errors.Is(err, NotFound) {
			return nil
		}
		return err
	}
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	notBefore := s.clock.Now().Add(backoff(m.DeliveryCount))
	record := framedRecord(uint64(notBefore.UnixMilli()), body)
	if err := moveAtomic(s.deliveryPath(tag), s.queueDir(), m.ID.String()+queueSuffix, record); err != nil {
		return errors.Wrap(err, "move released record to queue")
	}
	return nil
}

// OnModified bumps delivery_count and either moves the message to
// undeliverable/ (undeliverable=true) or re-enqueues it with backoff.
func (s *Spool) OnModified(tag message.DeliveryTag, undeliverable bool) error {
	m, err := s.Get(tag)
	if err != nil {
		if errors.Is(err, NotFound) {
			return nil
		}
		return err
	}
	m.DeliveryCount++
	body, err := message.Encode(m)
	if err != nil {
		return err
	}

	if undeliverable {
		record := framedRecord(0, body)
		if err := moveAtomic(s.deliveryPath(tag), s.undeliverablePath(), m.ID.String()+queueSuffix, record); err != nil {
			return errors.Wrap(err, "move undeliverable record")
		}
		return nil
	}

	notBefore := s.clock.Now().Add(backoff(m.DeliveryCount))
	record := framedRecord(uint64(notBefore.UnixMilli()), body)
	if err := moveAtomic(s.deliveryPath(tag), s.queueDir(), m.ID.String()+queueSuffix, record); err != nil {
		return errors.Wrap(err, "move modified record to queue")
	}
	return nil
}

func (s *Spool) removeDelivery(tag message.DeliveryTag) error {
	if err := os.Remove(s.deliveryPath(tag)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove delivery record")
	}
	return nil
}

// backoff computes the retry delay after n prior delivery attempts:
// floor(retransmissionDelay * 1.25^n) seconds.
func backoff(n int) time.Duration {
	seconds := math.Floor(retransmissionDelay * math.Pow(1.25, float64(n)))
	return time.Duration(seconds) * time.Second
}

// Sender is the minimal transport surface Transfer needs: enough credit to
// check before popping a message, and a way to hand the message off for
// sending once it has been durably tracked. Send blocks until the peer's
// terminal disposition is known and reports it via the returned
// message.Disposition; the returned error is reserved for cases where no
// disposition was ever reached at all (link down, context canceled).
type Sender interface {
	Credit() int
	Send(tag message.DeliveryTag, m message.Message) (message.Disposition, error)
}

// Transfer is the scoped transaction around popping a due message,
// durably tracking it as in-flight, and handing it to sender. If sender
// has no credit, Transfer is a no-op and returns ok=false. The message is
// popped exactly once: it is either tracked (and handed to the sender) or,
// on any failure before Track succeeds, left in the queue — never both,
// never neither. On ok=true, disp carries the peer's terminal disposition;
// the caller is responsible for applying the matching outcome (OnAccepted,
// OnRejected, OnReleased, OnModified) to the returned tag.
func (s *Spool) Transfer(sender Sender) (tag message.DeliveryTag, disp message.Disposition, ok bool, err error) {
	if sender.Credit() <= 0 {
		return tag, disp, false, nil
	}

	m, popped, err := s.PopDue(s.clock.Now())
	if err != nil || !popped {
		return tag, disp, false, err
	}

	tag, err = message.NewDeliveryTag()
	if err != nil {
		// roll back: message was already unlinked from the queue by PopDue;
		// re-enqueue it immediately so it is not lost.
		_ = s.Enqueue(m, s.clock.Now())
		return tag, disp, false, err
	}

	if err := s.Track(tag, m); err != nil {
		_ = s.Enqueue(m, s.clock.Now())
		return tag, disp, false, err
	}

	disp, err = sender.Send(tag, m)
	if err != nil {
		// the transfer never reached a terminal disposition (e.g. link down
		// before credit was actually usable): undo the tracking and put the
		// message back, unchanged, for an immediate retry.
		_ = s.removeDelivery(tag)
		_ = s.Enqueue(m, s.clock.Now())
		return tag, message.Disposition{}, false, err
	}

	return tag, disp, true, nil
}
