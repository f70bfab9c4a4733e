package amqp1

import (
	"testing"

	"github.com/Azure/go-amqp"
	"github.com/stretchr/testify/require"

	"github.com/ibrb-io/aorta/message"
)

func TestToWireThenFromWireRoundTrips(t *testing.T) {
	m := message.New()
	m.ID = message.NewID()
	m.CorrelationID = message.NewID()
	m.Address = "orders.out"
	m.ReplyTo = "orders.replies"
	m.Properties["message_class"] = message.String("event")
	m.Properties["count"] = message.Int(7)
	m.Annotations["x-region"] = message.String("us-east")

	tag, err := message.NewDeliveryTag()
	require.NoError(t, err)

	wire, err := toWireMessage(tag, m)
	require.NoError(t, err)
	require.Equal(t, tag[:], wire.DeliveryTag)
	require.Equal(t, m.ID.String(), wire.Properties.MessageID)
	require.Equal(t, m.CorrelationID.String(), wire.Properties.CorrelationID)
	require.Equal(t, m.ReplyTo, *wire.Properties.ReplyTo)

	back, err := fromWireMessage(wire)
	require.NoError(t, err)
	require.Equal(t, m.ID, back.ID)
	require.Equal(t, m.CorrelationID, back.CorrelationID)
	require.Equal(t, m.ReplyTo, back.ReplyTo)
	require.Equal(t, m.Address, back.Address)

	cls, ok := back.Properties["message_class"].String()
	require.True(t, ok)
	require.Equal(t, "event", cls)

	region, ok := back.Annotations["x-region"].String()
	require.True(t, ok)
	require.Equal(t, "us-east", region)
}

func TestFromWireMessageWithoutPropertiesDecodesBody(t *testing.T) {
	m := message.New()
	m.ID = message.NewID()
	body, err := message.Encode(m)
	require.NoError(t, err)

	wire := &amqp.Message{Data: [][]byte{body}}
	back, err := fromWireMessage(wire)
	require.NoError(t, err)
	require.Equal(t, m.ID, back.ID)
	require.NotNil(t, back.Annotations)
}

func TestIsUpstreamEmptyAllowlistPermitsEverything(t *testing.T) {
	s := &Session{}
	require.True(t, s.IsUpstream("anything"))
}

func TestIsUpstreamRejectsUnlistedAddress(t *testing.T) {
	s := &Session{}
	WithUpstreams("peer-a:5672", "peer-b:5672")(s)
	require.True(t, s.IsUpstream("peer-a:5672"))
	require.False(t, s.IsUpstream("peer-c:5672"))
}

func TestRandomNameHasPrefixAndIsUnique(t *testing.T) {
	a := randomName("aorta")
	b := randomName("aorta")
	require.Contains(t, a, "aorta-")
	require.NotEqual(t, a, b)
}
