package publisher_test

import (
	"testing"
	"time"

	"github.com/ibrb-io/aorta/buffer"
	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/message"
	"github.com/ibrb-io/aorta/publisher"
	"github.com/stretchr/testify/require"
)

func newSpool(t *testing.T, fc clock.Clock) *buffer.Spool {
	t.Helper()
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPublishNormalizesAndEnqueues(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := newSpool(t, fc)
	p := publisher.New(s, publisher.WithClock(fc))

	require.NoError(t, p.Publish(message.New(), 0, nil))

	n, err := s.Queued()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPublishFiresOnSettledAtDurabilityBoundary(t *testing.T) {
	fc := clock.NewFake(time.Unix(1000, 0))
	s := newSpool(t, fc)
	p := publisher.New(s, publisher.WithClock(fc))

	var settledErr error
	calls := 0
	require.NoError(t, p.Publish(message.New(), 0, func(err error) {
		calls++
		settledErr = err
	}))

	require.Equal(t, 1, calls, "onSettled must fire exactly once the enqueue durably completes")
	require.NoError(t, settledErr)
}

func TestPublishDelayIsMilliseconds(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s := newSpool(t, fc)
	p := publisher.New(s, publisher.WithClock(fc))

	require.NoError(t, p.Publish(message.New(), 500, nil))

	_, ok, err := s.PopDue(fc.Now().Add(400 * time.Millisecond))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.PopDue(fc.Now().Add(600 * time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOnSettledAcceptedRemovesDelivery(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s := newSpool(t, fc)
	p := publisher.New(s, publisher.WithClock(fc))

	require.NoError(t, p.Publish(message.New(), 0, nil))
	m, ok, err := s.PopDue(fc.Now())
	require.NoError(t, err)
	require.True(t, ok)

	tag, err := message.NewDeliveryTag()
	require.NoError(t, err)
	require.NoError(t, s.Track(tag, m))

	require.NoError(t, p.OnSettled(publisher.Settlement{Tag: tag, State: publisher.Accepted}))

	d, err := s.Deliveries()
	require.NoError(t, err)
	require.Equal(t, 0, d)
}

func TestOnSettledDuplicateIsNoop(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s := newSpool(t, fc)
	p := publisher.New(s, publisher.WithClock(fc))

	require.NoError(t, p.Publish(message.New(), 0, nil))
	m, ok, err := s.PopDue(fc.Now())
	require.NoError(t, err)
	require.True(t, ok)

	tag, err := message.NewDeliveryTag()
	require.NoError(t, err)
	require.NoError(t, s.Track(tag, m))

	require.NoError(t, p.OnSettled(publisher.Settlement{Tag: tag, State: publisher.Accepted}))
	require.NoError(t, p.OnSettled(publisher.Settlement{Tag: tag, State: publisher.Accepted}))
}

func TestOnSettledUnknownStateTreatedAsRejected(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s := newSpool(t, fc)
	p := publisher.New(s, publisher.WithClock(fc))

	require.NoError(t, p.Publish(message.New(), 0, nil))
	m, ok, err := s.PopDue(fc.Now())
	require.NoError(t, err)
	require.True(t, ok)

	tag, err := message.NewDeliveryTag()
	require.NoError(t, err)
	require.NoError(t, s.Track(tag, m))

	require.NoError(t, p.OnSettled(publisher.Settlement{Tag: tag, State: publisher.TerminalState(99)}))

	failed, err := s.Failed()
	require.NoError(t, err)
	require.Equal(t, 1, failed)
}

func TestEventPublisherStampsClassAndTimestamps(t *testing.T) {
	fc := clock.NewFake(time.Unix(42, 0))
	s := newSpool(t, fc)
	ep := publisher.NewEvent(publisher.New(s, publisher.WithClock(fc)))

	require.NoError(t, ep.Publish("user.created", map[string]message.Value{
		"user_id": message.String("u-1"),
	}, 0, 0, 0, nil))

	m, ok, err := s.PopDue(fc.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "event", string(m.Class()))

	observed, ok := m.Properties["event_observed"].Int()
	require.True(t, ok)
	require.Equal(t, fc.Now().UnixMilli(), observed)
}
