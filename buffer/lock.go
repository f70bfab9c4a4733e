package buffer

import (
	"os"

	"github.com/ibrb-io/aorta/errors"
	"golang.org/x/sys/unix"
)

// fileLock holds an exclusive advisory lock on a spool directory for the
// lifetime of the owning process, enforcing the single-writer resource
// policy: multiple processes sharing one spool would race pop_due's unlink.
type fileLock struct {
	f *os.File
}

// acquireLock opens (creating if needed) path and takes a non-blocking
// exclusive flock on it. Failure to acquire is Fatal: the caller should
// exit with a clear error rather than run with an unsafe shared spool.
func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "spool already locked by another process")
	}
	return &fileLock{f: f}, nil
}

// release drops the lock and closes the underlying file.
func (l *fileLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		_ = l.f.Close()
		return errors.Wrap(err, "unlock spool")
	}
	return l.f.Close()
}
