package buffer_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ibrb-io/aorta/buffer"
	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/message"
	"github.com/stretchr/testify/require"
)

var errFakeSend = errors.New("fake send failure")

type fakeSender struct {
	credit int
	sent   []message.DeliveryTag
	fail   bool
}

func (f *fakeSender) Credit() int { return f.credit }

func (f *fakeSender) Send(tag message.DeliveryTag, m message.Message) (message.Disposition, error) {
	if f.fail {
		return message.Disposition{}, errFakeSend
	}
	f.sent = append(f.sent, tag)
	return message.Disposition{Outcome: message.Accepted}, nil
}

func newMessage(t *testing.T) message.Message {
	t.Helper()
	m := message.New()
	m.ID = message.NewID()
	m.CorrelationID = message.NewID()
	return m
}

func TestEnqueueAndDrain(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := newMessage(t)
	require.NoError(t, s.Enqueue(m, fc.Now()))

	n, err := s.Queued()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	sender := &fakeSender{credit: 1}
	tag, disp, ok, err := s.Transfer(sender)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, message.Accepted, disp.Outcome)
	require.Len(t, sender.sent, 1)

	d, err := s.Deliveries()
	require.NoError(t, err)
	require.Equal(t, 1, d)

	require.NoError(t, s.OnAccepted(tag))
	total, err := s.Len()
	require.NoError(t, err)
	require.Equal(t, 0, total)
}

func TestTransferNoCredit(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Enqueue(newMessage(t), fc.Now()))
	_, _, ok, err := s.Transfer(&fakeSender{credit: 0})
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.Queued()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestTransferSendFailureRollsBack(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Enqueue(newMessage(t), fc.Now()))
	_, _, ok, err := s.Transfer(&fakeSender{credit: 1, fail: true})
	require.Error(t, err)
	require.False(t, ok)

	n, err := s.Queued()
	require.NoError(t, err)
	require.Equal(t, 1, n, "message must return to the queue, never lost")

	d, err := s.Deliveries()
	require.NoError(t, err)
	require.Equal(t, 0, d)
}

func TestDelayRespect(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := newMessage(t)
	require.NoError(t, s.Enqueue(m, fc.Now().Add(500*time.Millisecond)))

	_, ok, err := s.PopDue(fc.Now().Add(400 * time.Millisecond))
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := s.PopDue(fc.Now().Add(600 * time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.ID, got.ID)
}

func TestReleaseRetry(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := newMessage(t)
	require.NoError(t, s.Enqueue(m, fc.Now()))
	tag, _, ok, err := s.Transfer(&fakeSender{credit: 1})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.OnReleased(tag))

	got, ok, err := s.PopDue(fc.Now().Add(6 * time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, got.DeliveryCount, "released outcome must not bump delivery_count")
}

func TestModifiedUndeliverable(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := newMessage(t)
	require.NoError(t, s.Enqueue(m, fc.Now()))
	tag, _, ok, err := s.Transfer(&fakeSender{credit: 1})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.OnModified(tag, true))

	failed, err := s.Failed()
	require.NoError(t, err)
	require.Equal(t, 1, failed)

	queued, err := s.Queued()
	require.NoError(t, err)
	require.Equal(t, 0, queued)

	deliveries, err := s.Deliveries()
	require.NoError(t, err)
	require.Equal(t, 0, deliveries)
}

func TestModifiedDeliverableBumpsCountAndRequeues(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := newMessage(t)
	require.NoError(t, s.Enqueue(m, fc.Now()))
	tag, _, ok, err := s.Transfer(&fakeSender{credit: 1})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.OnModified(tag, false))

	got, ok, err := s.PopDue(fc.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, got.DeliveryCount)
}

func TestOnAcceptedIdempotentForUnknownTag(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	tag, err := message.NewDeliveryTag()
	require.NoError(t, err)
	require.NoError(t, s.OnAccepted(tag), "settling an unknown tag must be a no-op")
}

func TestReleaseRetryHonorsBackoffNotBefore(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	dir := t.TempDir()
	s, err := buffer.Open(dir, buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := newMessage(t)
	require.NoError(t, s.Enqueue(m, fc.Now()))
	tag, _, ok, err := s.Transfer(&fakeSender{credit: 1})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.OnReleased(tag))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var data []byte
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".amqp" {
			data, err = os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
		}
	}
	require.NotNil(t, data, "released message must be back in the queue directory")

	notBefore, err := buffer.NotBefore(data)
	require.NoError(t, err)
	require.Equal(t, fc.Now().Add(5*time.Second), notBefore, "P3: backoff(0) is 5s, and NotBefore must read it straight off the header")
}

func TestGetUnknownTagIsNotFound(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	s, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	tag, err := message.NewDeliveryTag()
	require.NoError(t, err)
	_, err = s.Get(tag)
	require.ErrorIs(t, err, buffer.NotFound)
}
