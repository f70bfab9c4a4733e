package orchestrator

import (
	"math/rand"

	"github.com/ibrb-io/aorta/publisher"
)

// flushOne picks one sender with outstanding credit uniformly at random and
// flushes up to flushLimit messages through it, per §4.5's "pick one
// uniformly at random" beat policy.
func (o *Orchestrator) flushOne() {
	var candidates []sender
	for _, sn := range o.senders {
		if sn.Credit() > 0 {
			candidates = append(candidates, sn)
		}
	}
	if len(candidates) == 0 {
		return
	}
	sn := candidates[rand.Intn(len(candidates))]
	o.flush(sn)
}

// flush iterates buffer.Transfer up to flushLimit times against sn, stopping
// early once credit is exhausted or the queue has nothing due. sn.Send
// blocks until the peer's disposition arrives; Transfer surfaces that
// disposition, and flush forwards it to pub.OnSettled unchanged so the C5
// policy (delivery_count bumps, backoff, rejected/undeliverable routing)
// actually drives the buffer instead of every outcome collapsing to
// ACCEPTED. A failed Transfer leaves nothing to settle, since
// buffer.Transfer already rolled the message back into the queue itself.
func (o *Orchestrator) flush(sn sender) {
	for i := 0; i < o.flushLimit; i++ {
		if sn.Credit() <= 0 {
			return
		}
		tag, disp, ok, err := o.buf.Transfer(sn)
		if err != nil {
			o.log.Error("transfer failed", "error", err.Error())
			return
		}
		if !ok {
			return
		}
		settlement := publisher.Settlement{Tag: tag, State: disp.Outcome, Undeliverable: disp.Undeliverable}
		if err := o.pub.OnSettled(settlement); err != nil {
			o.log.Error("settle transfer failed", "error", err.Error())
		}
	}
}
