package amqp1

import (
	"crypto/tls"

	xlog "github.com/ibrb-io/aorta/log"
)

// Option configures a Session at construction time, the same functional
// options pattern the teacher's amqp.session uses.
type Option func(*Session)

// WithLogger attaches a structured logger.
func WithLogger(l xlog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithName sets the container/session identifier used in AMQP open frames
// and log fields. Defaults to a random "aorta-<hex>" name.
func WithName(name string) Option {
	return func(s *Session) { s.name = name }
}

// WithTLS sets the TLS configuration used when addr has an amqps:// scheme.
func WithTLS(conf *tls.Config) Option {
	return func(s *Session) { s.tlsConf = conf }
}

// WithUpstreams declares the set of addresses IsUpstream accepts. In router
// mode orchestrator.AddReceiver refuses any other source with a
// ProtocolViolation before opening a link; links initiated by a remote peer
// are not inspected.
func WithUpstreams(addrs ...string) Option {
	return func(s *Session) {
		s.upstreams = make(map[string]bool, len(addrs))
		for _, a := range addrs {
			s.upstreams[a] = true
		}
	}
}
