// Package wal implements the append-only write-ahead log each memtable
// mirrors its writes to for crash durability.
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"lsmkv/internal/command"

	"github.com/sirupsen/logrus"
)

// WAL is a single append-only log file. Every Append fsyncs before
// returning, so a successful Append is durable across a crash.
type WAL struct {
	mu sync.Mutex

	path   string
	file   *os.File
	offset int64
	log    logrus.FieldLogger
}

// Open creates the log file at path if it does not exist, or opens it
// for appending if it does.
func Open(path string, log logrus.FieldLogger) (*WAL, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("wal: stat %s: %w", path, err)
	}

	return &WAL{
		path:   path,
		file:   file,
		offset: info.Size(),
		log:    log,
	}, nil
}

// Append writes cmd to the log and fsyncs before returning.
func (w *WAL) Append(cmd command.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := command.Encode(cmd)
	n, err := w.file.WriteAt(buf, w.offset)
	if err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	w.offset += int64(n)

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Replay reads every command in the log in append order. A frame that is
// truncated at the very end (a crash mid-append) is tolerated: it is
// logged as a warning and replay stops there rather than failing. Any
// other read error is returned.
func (w *WAL) Replay() ([]command.Command, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wal: seek: %w", err)
	}
	r := bufio.NewReader(w.file)

	var cmds []command.Command
	for {
		cmd, err := command.ReadFrom(r)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			w.log.WithField("path", w.path).Warn("wal: truncated trailing frame, stopping replay")
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wal: replay: %w", err)
		}
		cmds = append(cmds, cmd)
	}

	if _, err := w.file.Seek(w.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wal: seek: %w", err)
	}
	return cmds, nil
}

// Rotate closes the current log file, renames it to frozenPath, and
// reopens a fresh, empty log at the original path. The rename is atomic
// with respect to a crash: after it completes, either the old name or
// the new one is visible, never both missing.
func (w *WAL) Rotate(frozenPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync before rotate: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close before rotate: %w", err)
	}

	if err := os.Rename(w.path, frozenPath); err != nil {
		return fmt.Errorf("wal: rename %s to %s: %w", w.path, frozenPath, err)
	}

	file, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("wal: reopen after rotate: %w", err)
	}

	w.file = file
	w.offset = 0
	return nil
}

// Close syncs and closes the log file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync on close: %w", err)
	}
	return w.file.Close()
}

// Path returns the log file's current path.
func (w *WAL) Path() string {
	return w.path
}
