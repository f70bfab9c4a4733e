package orchestrator

import "context"

// runBeat is the companion goroutine whose only job is injecting periodic
// flush requests into the loop goroutine, matching §5's scheduling model:
// a single cooperative event loop plus one timer thread that never touches
// buffer state itself.
func (o *Orchestrator) runBeat(ctx context.Context) error {
	ticker := o.clk.NewTicker(o.beatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			o.requestFlush()
		}
	}
}
