package buffer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ibrb-io/aorta/errors"
	"github.com/ibrb-io/aorta/message"
)

const headerLen = 8 // big-endian ms-since-epoch not_before

// framedRecord prepends the 8-byte not_before header to body. Live queue
// entries pass the real not_before; terminal failed records (rejected/,
// undeliverable/) pass 0, so PopDue's reader and NotBefore's header parse
// both work uniformly across every record kind.
func framedRecord(notBeforeMillis uint64, body []byte) []byte {
	record := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint64(record[:headerLen], notBeforeMillis)
	copy(record[headerLen:], body)
	return record
}

// Enqueue durably writes message m to the queue, due at notBefore. Post:
// m is visible to PopDue. Returns an error matching errors.Storage on I/O
// failure; the caller (the publisher) may retry.
func (s *Spool) Enqueue(m message.Message, notBefore time.Time) error {
	body, err := message.Encode(m)
	if err != nil {
		return err
	}
	record := framedRecord(uint64(notBefore.UnixMilli()), body)

	name := m.ID.String() + queueSuffix
	if err := writeAtomic(s.queueDir(), name, record); err != nil {
		return errors.Wrap(errors.Storage, errors.Wrap(err, "enqueue message").Error())
	}
	return nil
}

// queueFile pairs a queue entry's path with its mtime, for oldest-first
// ordering.
type queueFile struct {
	path  string
	mtime time.Time
}

func (s *Spool) listQueued() ([]queueFile, error) {
	entries, err := os.ReadDir(s.queueDir())
	if err != nil {
		return nil, errors.Wrap(err, "list queue directory")
	}
	var files []queueFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != queueSuffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // file may have been concurrently unlinked; skip
		}
		files = append(files, queueFile{path: filepath.Join(s.queueDir(), e.Name()), mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	return files, nil
}

// PopDue scans queue entries oldest-mtime-first and returns the first whose
// not_before has passed, unlinking it before returning. At most one entry
// is popped per call; ok is false if nothing is currently due.
func (s *Spool) PopDue(now time.Time) (m message.Message, ok bool, err error) {
	files, err := s.listQueued()
	if err != nil {
		return message.Message{}, false, err
	}
	for _, f := range files {
		data, rerr := os.ReadFile(f.path)
		if rerr != nil {
			continue // concurrently removed; try the next candidate
		}
		if len(data) < headerLen {
			continue // corrupt record; skip rather than crash the scan
		}
		nbf := int64(binary.BigEndian.Uint64(data[:headerLen]))
		if nbf > now.UnixMilli() {
			continue
		}
		decoded, derr := message.Decode(data[headerLen:])
		if derr != nil {
			return message.Message{}, false, derr
		}
		if err := os.Remove(f.path); err != nil {
			return message.Message{}, false, errors.Wrap(err, "unlink due queue entry")
		}
		return decoded, true, nil
	}
	return message.Message{}, false, nil
}

// NotBefore decodes only the 8-byte header of a queue entry file, without
// reading or decoding the message body. Used by tests to assert P3 (delay
// respect) without needing a full round trip.
func NotBefore(data []byte) (time.Time, error) {
	if len(data) < headerLen {
		return time.Time{}, errors.New("truncated queue entry header")
	}
	ms := int64(binary.BigEndian.Uint64(data[:headerLen]))
	return time.UnixMilli(ms), nil
}
