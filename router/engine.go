package router

import "github.com/ibrb-io/aorta/message"

// Engine evaluates a loaded rule set against messages. It is a pure
// function of (rules, message) -> destinations, matching P6 (routing
// purity): the same inputs always produce the same ordered output.
type Engine struct {
	rules []Rule
}

// NewEngine wraps a rule set loaded in file order. Load order is
// significant: Route walks rules in this order and a rule's destinations
// are appended in that order too.
func NewEngine(rules []Rule) *Engine {
	return &Engine{rules: rules}
}

// Rules returns the engine's current rule set, for hot-reload swapping.
func (e *Engine) Rules() []Rule { return e.rules }

func excludes(list []string, addr string) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// matches reports whether m satisfies every criterion of r and is not
// excluded by r's address.
func matches(r Rule, m message.Message) bool {
	for _, c := range r.Criterions {
		if !c.matches(m) {
			return false
		}
	}
	return !excludes(r.Exclude, m.Address)
}

// Route returns the ordered, deduplicated (first-occurrence-wins) list of
// destination addresses m should be forwarded to.
func (e *Engine) Route(m message.Message) []string {
	var dests []string
	seen := map[string]bool{}

	add := func(addr string) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		dests = append(dests, addr)
	}

	for _, r := range e.rules {
		if !matches(r, m) {
			continue
		}
		for _, d := range r.Destinations {
			add(d)
		}
		if r.ReturnToSender && m.ReplyTo != "" {
			add(m.ReplyTo)
		}
	}
	return dests
}
