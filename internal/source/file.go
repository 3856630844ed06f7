package source

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/watchhound/telewatch/internal/errors"
	"github.com/watchhound/telewatch/internal/types"
)

// PollInterval is the fallback poll period when no change notifier is
// available, or between notifier events (spec.md §4.1 default 250ms).
const PollInterval = 250 * time.Millisecond

// File tails a single file in append mode, reopening on truncation or
// rotation (inode change or size regression).
type File struct {
	id       string
	path     string
	f        *os.File
	watcher  *fsnotify.Watcher
	inode    uint64
	offset   int64
	lineBuf  *lineBuffer
	seq      uint64
	lastPoll time.Time
}

// NewFile opens path and seeks to EOF unless replayExisting is set, per
// spec.md §4.1. The fsnotify watcher is best-effort: if it cannot be
// created, the adapter falls back to pure polling.
func NewFile(id, path string, replayExisting bool) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.KindSource, "cannot open file "+path, err)
	}

	var offset int64
	if !replayExisting {
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return nil, errors.Wrap(errors.KindSource, "cannot stat file "+path, statErr)
		}
		offset = info.Size()
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, errors.Wrap(errors.KindSource, "cannot seek file "+path, err)
		}
	}

	inode, _ := inodeOf(f)

	w, err := fsnotify.NewWatcher()
	if err == nil {
		if err := w.Add(path); err != nil {
			w.Close()
			w = nil
		}
	} else {
		w = nil
	}

	return &File{
		id:      id,
		path:    path,
		f:       f,
		watcher: w,
		inode:   inode,
		offset:  offset,
		lineBuf: newLineBuffer(),
	}, nil
}

// ID implements Adapter.
func (t *File) ID() string { return t.id }

// Next implements Adapter: reads any newly appended bytes, yields at
// most one complete line per call, and detects truncation/rotation.
func (t *File) Next(ctx context.Context) (types.LogRecord, bool, error) {
	if err := t.checkRotationOrTruncation(); err != nil {
		return types.LogRecord{}, false, err
	}

	t.drainNotifier()

	buf := make([]byte, 64*1024)
	n, err := t.f.Read(buf)
	if err != nil && err != io.EOF {
		return types.LogRecord{}, false, errors.Wrap(errors.KindSource, "read failed for "+t.path, err)
	}
	if n > 0 {
		t.offset += int64(n)
		lines := t.lineBuf.Append(buf[:n])
		if len(lines) > 0 {
			return t.emit(lines[0]), true, nil
		}
	}

	if line, ok := t.lineBuf.FlushIfStale(); ok {
		return t.emit(line), true, nil
	}

	t.waitTick(ctx)
	return types.LogRecord{}, false, nil
}

func (t *File) emit(raw string) types.LogRecord {
	t.seq++
	return types.NewLogRecord(t.seq, t.id, raw, time.Now())
}

// waitTick blocks briefly for either a notifier event or the poll
// fallback interval, whichever comes first.
func (t *File) waitTick(ctx context.Context) {
	if t.watcher != nil {
		select {
		case <-ctx.Done():
		case <-t.watcher.Events:
		case <-t.watcher.Errors:
		case <-time.After(PollInterval):
		}
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(PollInterval):
	}
}

// drainNotifier discards any queued events; presence alone is enough to
// justify reading again, the contents don't matter here.
func (t *File) drainNotifier() {
	if t.watcher == nil {
		return
	}
	for {
		select {
		case <-t.watcher.Events:
		case <-t.watcher.Errors:
		default:
			return
		}
	}
}

// checkRotationOrTruncation detects an inode change or a size
// regression and transparently reopens from offset 0 (spec.md §4.1).
func (t *File) checkRotationOrTruncation() error {
	info, err := os.Stat(t.path)
	if err != nil {
		return errors.Wrap(errors.KindSource, "file disappeared: "+t.path, err)
	}

	inode, ok := inodeOfStat(info)
	rotated := ok && t.inode != 0 && inode != t.inode
	truncated := info.Size() < t.offset

	if !rotated && !truncated {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return errors.Wrap(errors.KindSource, "cannot reopen rotated file "+t.path, err)
	}
	t.f.Close()
	t.f = f
	t.offset = 0
	t.inode = inode
	t.lineBuf = newLineBuffer()

	if t.watcher != nil {
		t.watcher.Remove(t.path)
		t.watcher.Add(t.path)
	}
	return nil
}

// Close implements Adapter.
func (t *File) Close() error {
	if t.watcher != nil {
		t.watcher.Close()
	}
	return t.f.Close()
}

var _ Adapter = (*File)(nil)
