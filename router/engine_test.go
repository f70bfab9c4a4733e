package router_test

import (
	"testing"

	"github.com/ibrb-io/aorta/message"
	"github.com/ibrb-io/aorta/router"
	"github.com/stretchr/testify/require"
)

func eventMessage(objectType string) message.Message {
	m := message.New()
	m.ID = message.NewID()
	m.Properties["message_class"] = message.String("event")
	m.Properties["object_type"] = message.String(objectType)
	return m
}

func TestRouterFanOut(t *testing.T) {
	rules := []router.Rule{
		{
			Criterions:   []router.Criterion{{Name: "properties.message_class", Operator: router.OpEq, Value: "event"}},
			Destinations: []string{"q1"},
		},
		{
			Criterions:   []router.Criterion{{Name: "object_type", Operator: router.OpIn, Value: []interface{}{"foo", "bar"}}},
			Destinations: []string{"q2", "q3"},
		},
	}
	// message_class criterion is looked up directly by property name.
	rules[0].Criterions[0].Name = "message_class"

	e := router.NewEngine(rules)
	m := eventMessage("foo")
	dests := e.Route(m)
	require.Equal(t, []string{"q1", "q2", "q3"}, dests)
}

func TestRouteIsPure(t *testing.T) {
	rules := []router.Rule{
		{Criterions: []router.Criterion{{Name: "object_type", Operator: router.OpEq, Value: "foo"}}, Destinations: []string{"q1"}},
	}
	e := router.NewEngine(rules)
	m := eventMessage("foo")

	first := e.Route(m)
	second := e.Route(m)
	require.Equal(t, first, second)
}

func TestExcludeSuppressesMatch(t *testing.T) {
	rules := []router.Rule{
		{
			Criterions:   []router.Criterion{{Name: "object_type", Operator: router.OpEq, Value: "foo"}},
			Destinations: []string{"q1"},
			Exclude:      []string{"blocked"},
		},
	}
	e := router.NewEngine(rules)
	m := eventMessage("foo")
	m.Address = "blocked"
	require.Empty(t, e.Route(m))
}

func TestReturnToSenderAppendsReplyTo(t *testing.T) {
	rules := []router.Rule{
		{
			Criterions:     []router.Criterion{{Name: "object_type", Operator: router.OpEq, Value: "foo"}},
			Destinations:   []string{"q1"},
			ReturnToSender: true,
		},
	}
	e := router.NewEngine(rules)
	m := eventMessage("foo")
	m.ReplyTo = "sender-queue"
	require.Equal(t, []string{"q1", "sender-queue"}, e.Route(m))
}

func TestNotExistsAndExists(t *testing.T) {
	m := eventMessage("foo")
	exists := router.Criterion{Name: "object_type", Operator: router.OpExists}
	notExists := router.Criterion{Name: "missing_attr", Operator: router.OpNotExists}

	e := router.NewEngine([]router.Rule{
		{Criterions: []router.Criterion{exists, notExists}, Destinations: []string{"q1"}},
	})
	require.Equal(t, []string{"q1"}, e.Route(m))
}
