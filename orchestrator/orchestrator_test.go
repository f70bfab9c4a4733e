package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/ibrb-io/aorta/buffer"
	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/message"
	"github.com/ibrb-io/aorta/publisher"
	"github.com/ibrb-io/aorta/router"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	credit int
	sent   []message.DeliveryTag
}

func (f *fakeSender) Credit() int { return f.credit }

func (f *fakeSender) Send(tag message.DeliveryTag, m message.Message) (message.Disposition, error) {
	f.sent = append(f.sent, tag)
	f.credit--
	return message.Disposition{Outcome: message.Accepted}, nil
}

func (f *fakeSender) Close(ctx context.Context) error { return nil }

func newOrchestrator(t *testing.T, fc clock.Clock) (*Orchestrator, *buffer.Spool, *fakeSender) {
	t.Helper()
	buf, err := buffer.Open(t.TempDir(), buffer.WithClock(fc))
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })

	fs := &fakeSender{credit: 10}
	o := &Orchestrator{
		mode:         ModePublisher,
		buf:          buf,
		clk:          fc,
		flushLimit:   defaultFlushLimit,
		beatInterval: time.Second,
		senders:      map[string]sender{"upstream": fs},
		flushNow:     make(chan struct{}, 1),
	}
	o.pub = publisher.New(buf, publisher.WithClock(fc))
	return o, buf, fs
}

func TestFlushOneDrainsQueueUpToLimit(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	o, buf, fs := newOrchestrator(t, fc)

	for i := 0; i < 3; i++ {
		m := message.New()
		m.ID = message.NewID()
		require.NoError(t, buf.Enqueue(m, fc.Now()))
	}

	o.flushOne()

	require.Len(t, fs.sent, 3)
	n, err := buf.Queued()
	require.NoError(t, err)
	require.Equal(t, 0, n)
	d, err := buf.Deliveries()
	require.NoError(t, err)
	require.Equal(t, 0, d) // flush settles ACCEPTED immediately after a successful send
}

func TestFlushOneNoCreditIsNoop(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	o, buf, fs := newOrchestrator(t, fc)
	fs.credit = 0

	m := message.New()
	m.ID = message.NewID()
	require.NoError(t, buf.Enqueue(m, fc.Now()))

	o.flushOne()

	require.Empty(t, fs.sent)
	n, err := buf.Queued()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHandleInboundRoutesAndEnqueuesPerDestination(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	o, buf, _ := newOrchestrator(t, fc)
	o.mode = ModeRouter
	o.engine = router.NewEngine([]router.Rule{
		{
			Criterions:   []router.Criterion{{Name: "message_class", Operator: router.OpEq, Value: "event"}},
			Destinations: []string{"q1", "q2"},
		},
	})

	m := message.New()
	m.ID = message.NewID()
	m.Properties["message_class"] = message.String("event")

	accepted := false
	o.handleInbound(inboundDelivery{
		msg:    m,
		accept: func(ctx context.Context) error { accepted = true; return nil },
	})

	require.True(t, accepted)
	n, err := buf.Queued()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
