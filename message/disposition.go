package message

// Outcome is one of the four definitive AMQP 1.0 delivery outcomes a
// transport reports back for a sent message. It lives here, rather than in
// buffer or publisher, so both can share the vocabulary without either
// importing the other: buffer.Sender.Send returns it, publisher.OnSettled
// consumes it via publisher.TerminalState.
type Outcome int

const (
	// Accepted means the peer took definitive ownership of the message.
	Accepted Outcome = iota
	// Rejected means the peer refused the message outright.
	Rejected
	// Released means the peer returned the message undelivered, unmodified.
	Released
	// Modified means the peer returned the message, optionally marking it
	// undeliverable.
	Modified
)

// Disposition carries the terminal outcome of one Sender.Send call.
// Undeliverable is only meaningful when Outcome == Modified.
type Disposition struct {
	Outcome       Outcome
	Undeliverable bool
}
