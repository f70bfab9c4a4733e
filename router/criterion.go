// Package router implements the rule-matching engine: given a message and a
// loaded rule set, it produces the ordered, deduplicated list of forwarding
// destinations.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ibrb-io/aorta/errors"
	"github.com/ibrb-io/aorta/message"
)

// Operator is one of the closed set of criterion comparison operators.
type Operator string

// Supported operators. The set is closed and case-sensitive; an unknown
// operator fails rule-file validation at load time.
const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpExists     Operator = "exists"
	OpNotExists  Operator = "notexists"
	OpMatches    Operator = "matches"
	OpStartswith Operator = "startswith"
	OpEndswith   Operator = "endswith"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
)

var validOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpIn: true, OpNin: true,
	OpExists: true, OpNotExists: true, OpMatches: true,
	OpStartswith: true, OpEndswith: true,
	OpGt: true, OpLt: true, OpGte: true, OpLte: true,
}

// Criterion is a single predicate evaluated against a message attribute.
type Criterion struct {
	Name     string      `yaml:"name" validate:"required"`
	Operator Operator    `yaml:"operator" validate:"required"`
	Value    interface{} `yaml:"value"`
}

// validate confirms Operator is one of the closed set; go-playground's
// struct tags cannot express "one of N string constants" cleanly, so this
// is checked by hand alongside the tag-driven validation in load.go.
func (c Criterion) validate() error {
	if !validOperators[c.Operator] {
		return errors.Errorf("unknown criterion operator %q", c.Operator)
	}
	return nil
}

// lookup resolves an attribute by name against a message, in the order
// §4.3 specifies: top-level envelope fields, then properties, then
// annotations. ok is false only for attributes that exist nowhere.
func lookup(m message.Message, name string) (message.Value, bool) {
	switch name {
	case "id":
		return message.String(m.ID.String()), true
	case "correlation_id":
		return message.String(m.CorrelationID.String()), true
	case "address":
		return message.String(m.Address), true
	case "reply_to":
		return message.String(m.ReplyTo), true
	case "delivery_count":
		return message.Int(int64(m.DeliveryCount)), true
	case "creation_time":
		return message.Int(m.CreationTime), true
	}
	if v, ok := m.Properties[name]; ok {
		return v, true
	}
	if v, ok := m.Annotations[name]; ok {
		return v, true
	}
	return message.Null(), false
}

// matches evaluates c against m.
func (c Criterion) matches(m message.Message) bool {
	v, exists := lookup(m, c.Name)

	switch c.Operator {
	case OpExists:
		return exists
	case OpNotExists:
		return !exists
	case OpNe:
		if !exists {
			return true
		}
		return !equalsValue(v, c.Value)
	case OpNin:
		if !exists {
			return true
		}
		return !inList(v, c.Value)
	}

	if !exists {
		return false
	}

	switch c.Operator {
	case OpEq:
		return equalsValue(v, c.Value)
	case OpIn:
		return inList(v, c.Value)
	case OpMatches:
		pattern, _ := c.Value.(string)
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return false
		}
		s := nativeString(v)
		return re.MatchString(s)
	case OpStartswith:
		return strings.HasPrefix(nativeString(v), fmt.Sprint(c.Value))
	case OpEndswith:
		return strings.HasSuffix(nativeString(v), fmt.Sprint(c.Value))
	case OpGt, OpLt, OpGte, OpLte:
		return compareOrdered(v, c.Value, c.Operator)
	}
	return false
}

func nativeString(v message.Value) string {
	if s, ok := v.String(); ok {
		return s
	}
	return fmt.Sprint(v.Native())
}

func equalsValue(v message.Value, target interface{}) bool {
	return fmt.Sprint(v.Native()) == fmt.Sprint(target)
}

func inList(v message.Value, target interface{}) bool {
	list, ok := target.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if fmt.Sprint(v.Native()) == fmt.Sprint(item) {
			return true
		}
	}
	return false
}

func compareOrdered(v message.Value, target interface{}, op Operator) bool {
	a, aok := asFloat(v.Native())
	b, bok := asFloat(target)
	if !aok || !bok {
		return false
	}
	switch op {
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGte:
		return a >= b
	case OpLte:
		return a <= b
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}
