package sstable

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"lsmkv/internal/command"
	"lsmkv/internal/diskmanager"
	"lsmkv/internal/lsmerrors"
)

// Reader gives read-only, key-indexed access to an SSTable file. A
// Reader only reads through its FileHandle (which may be the handle the
// DiskManager already cached for the writer), and the handle may be
// safely shared by concurrent callers, since all reads are positioned
// (ReadAt) rather than relying on a shared seek cursor.
type Reader struct {
	path  string
	file  diskmanager.FileHandle
	index []indexEntry
	foot  footer
}

// Open reads and validates path's footer and sparse index.
func Open(dm diskmanager.DiskManager, path string) (*Reader, error) {
	file, err := dm.Open(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	// If validation fails, evict the cached handle so a later dm.Open of
	// this path (such as rebuilding the file) gets a fresh one.
	ok := false
	defer func() {
		if !ok {
			_ = dm.Close(path)
		}
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("sstable: stat %s: %w", path, err)
	}
	if stat.Size() < footerSize {
		return nil, fmt.Errorf("sstable: %w: file smaller than footer", lsmerrors.ErrCorruptTable)
	}

	footerBuf := make([]byte, footerSize)
	if _, err := file.ReadAt(footerBuf, stat.Size()-footerSize); err != nil {
		return nil, fmt.Errorf("sstable: read footer: %w", err)
	}
	f := decodeFooter(footerBuf)
	if f.magic != magic {
		return nil, fmt.Errorf("sstable: %w: bad magic", lsmerrors.ErrCorruptTable)
	}
	if f.indexStart+f.indexLen+footerSize != uint64(stat.Size()) {
		return nil, fmt.Errorf("sstable: %w: footer offsets inconsistent with file size", lsmerrors.ErrCorruptTable)
	}
	if f.dataStart+f.dataLen != f.indexStart {
		return nil, fmt.Errorf("sstable: %w: data/index boundary mismatch", lsmerrors.ErrCorruptTable)
	}

	indexBuf := make([]byte, f.indexLen)
	if f.indexLen > 0 {
		if _, err := file.ReadAt(indexBuf, int64(f.indexStart)); err != nil {
			return nil, fmt.Errorf("sstable: read index: %w", err)
		}
	}

	var index []indexEntry
	for len(indexBuf) > 0 {
		e, n, err := decodeIndexEntry(indexBuf)
		if err != nil {
			return nil, fmt.Errorf("sstable: %s: %w", path, err)
		}
		index = append(index, e)
		indexBuf = indexBuf[n:]
	}

	ok = true
	return &Reader{path: path, file: file, index: index, foot: f}, nil
}

// Get looks up key, reading at most two adjacent data partitions from
// disk in a single read.
// lsmerrors.ErrKeyNotFound is returned both when the key is absent and
// when the most recent command for it is a tombstone.
func (r *Reader) Get(key []byte) ([]byte, error) {
	// Find the partition whose first key is the greatest one <= key.
	i := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].firstKey, key) > 0
	})
	if i == 0 {
		// key sorts before every partition's first key.
		return nil, lsmerrors.ErrKeyNotFound
	}
	part := r.index[i-1]

	// Read that partition and, if there is one, the partition after it.
	length := part.pos.Length
	if i < len(r.index) {
		next := r.index[i].pos
		length = next.Offset + next.Length - part.pos.Offset
	}
	buf := make([]byte, length)
	if _, err := r.file.ReadAt(buf, int64(part.pos.Offset)); err != nil {
		return nil, fmt.Errorf("sstable: read partition: %w", err)
	}

	for len(buf) > 0 {
		cmd, n, err := command.Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("sstable: %s: %w", r.path, err)
		}
		cmp := bytes.Compare(cmd.Key, key)
		if cmp == 0 {
			if cmd.Kind == command.Remove {
				return nil, lsmerrors.ErrKeyNotFound
			}
			return cmd.Value, nil
		}
		if cmp > 0 {
			break
		}
		buf = buf[n:]
	}

	return nil, lsmerrors.ErrKeyNotFound
}

// Path returns the file path backing this Reader.
func (r *Reader) Path() string {
	return r.path
}

// Close closes the underlying file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}
