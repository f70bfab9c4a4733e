package buffer

import (
	"os"
	"path/filepath"

	"github.com/ibrb-io/aorta/errors"
)

// writeAtomic writes data to a temp file under dir, fsyncs it, then renames
// it into place as name. This is the pattern every spool mutation uses so
// that file contents are durable on stable storage before the name ever
// becomes visible to a concurrent reader.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "fsync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}
	target := filepath.Join(dir, name)
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "rename into place")
	}
	return fsyncDir(dir)
}

// fsyncDir fsyncs the directory itself, making the rename's effect on the
// directory entry durable rather than just the file contents.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "open directory for fsync")
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return errors.Wrap(err, "fsync directory")
	}
	return nil
}

// moveAtomic durably writes data as dstDir/dstName, then unlinks srcPath,
// preserving I2 (a message is never visible in two places at once): the
// destination write (and its directory fsync) completes before the source
// is removed. Callers that are transforming a record in transit (bumping
// delivery_count, reframing the not_before header) pass the new bytes
// directly rather than having moveAtomic copy the source unmodified.
func moveAtomic(srcPath, dstDir, dstName string, data []byte) error {
	if err := writeAtomic(dstDir, dstName, data); err != nil {
		return errors.Wrap(err, "write destination record")
	}
	if err := os.Remove(srcPath); err != nil {
		return errors.Wrap(err, "remove source record")
	}
	return nil
}
