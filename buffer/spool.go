// Package buffer implements the durable outbound spool: a crash-safe,
// single-writer FIFO-with-delay of pending messages plus a side table of
// in-flight deliveries.
package buffer

import (
	"os"
	"path/filepath"

	"github.com/ibrb-io/aorta/clock"
	"github.com/ibrb-io/aorta/errors"
	xlog "github.com/ibrb-io/aorta/log"
)

const (
	deliveriesDir    = "deliveries"
	rejectedDir      = "rejected"
	undeliverableDir = "undeliverable"
	lockFile         = ".lock"

	queueSuffix    = ".amqp"
	deliverySuffix = ".dstate"

	// retransmissionDelay is the backoff base, in seconds: delay(n) =
	// floor(retransmissionDelay * 1.25^n).
	retransmissionDelay = 5.0
)

// Spool owns a spool directory for the lifetime of the process, matching
// the teacher's resource-owning-type-with-Open/Close lifecycle
// (amqp.session) applied to on-disk rather than on-wire state.
type Spool struct {
	dir   string
	log   xlog.Logger
	clock clock.Clock
	lock  *fileLock
}

// Option configures a Spool at Open time.
type Option func(*Spool)

// WithLogger attaches a structured logger; defaults to a discard logger.
func WithLogger(l xlog.Logger) Option {
	return func(s *Spool) { s.log = l }
}

// WithClock overrides the time source; defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(s *Spool) { s.clock = c }
}

// Open creates (if needed) the spool directory layout at dir, acquires the
// single-writer lock, and returns a ready Spool. Open fails Fatal-style if
// the directory cannot be created or the lock cannot be acquired.
func Open(dir string, opts ...Option) (*Spool, error) {
	s := &Spool{
		dir:   dir,
		log:   xlog.Discard(),
		clock: clock.Real{},
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, sub := range []string{"", deliveriesDir, rejectedDir, undeliverableDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.Wrap(errors.Fatal, errors.Wrap(err, "create spool directory").Error())
		}
	}

	lock, err := acquireLock(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, errors.Wrap(errors.Fatal, errors.Wrap(err, "acquire spool lock").Error())
	}
	s.lock = lock
	s.log.Info("spool ready")
	return s, nil
}

// Close releases the spool lock. It does not touch any queued or in-flight
// records; they remain on disk for the next Open.
func (s *Spool) Close() error {
	s.log.Debug("closing spool")
	return s.lock.release()
}

func (s *Spool) queueDir() string         { return s.dir }
func (s *Spool) deliveriesPath() string   { return filepath.Join(s.dir, deliveriesDir) }
func (s *Spool) rejectedPath() string     { return filepath.Join(s.dir, rejectedDir) }
func (s *Spool) undeliverablePath() string {
	return filepath.Join(s.dir, undeliverableDir)
}

// Len returns the total number of records across every subdirectory.
func (s *Spool) Len() (int, error) {
	q, err := s.Queued()
	if err != nil {
		return 0, err
	}
	d, err := s.Deliveries()
	if err != nil {
		return 0, err
	}
	f, err := s.Failed()
	if err != nil {
		return 0, err
	}
	return q + d + f, nil
}

// Queued returns the number of messages waiting to be sent.
func (s *Spool) Queued() (int, error) { return countFiles(s.queueDir(), queueSuffix) }

// Deliveries returns the number of in-flight delivery records.
func (s *Spool) Deliveries() (int, error) { return countFiles(s.deliveriesPath(), deliverySuffix) }

// Failed returns the number of terminal rejected+undeliverable records.
func (s *Spool) Failed() (int, error) {
	r, err := countFiles(s.rejectedPath(), queueSuffix)
	if err != nil {
		return 0, err
	}
	u, err := countFiles(s.undeliverablePath(), queueSuffix)
	if err != nil {
		return 0, err
	}
	return r + u, nil
}

func countFiles(dir, suffix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrap(err, "list spool directory")
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == suffix {
			n++
		}
	}
	return n, nil
}
