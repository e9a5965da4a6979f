package sstable

import (
	"bytes"
	"fmt"
	"os"

	"lsmkv/internal/command"
	"lsmkv/internal/diskmanager"
	"lsmkv/internal/lsmerrors"
)

// BuildFromSorted writes a new SSTable file at path from commands, which
// must already be in strictly increasing key order (as a memtable's
// Entries() produces). Partitions hold at most partSize commands each.
// The file is fsynced before BuildFromSorted returns.
func BuildFromSorted(dm diskmanager.DiskManager, path string, partSize int, commands []command.Command) error {
	if partSize <= 0 {
		partSize = 1
	}

	file, err := dm.Open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("sstable: open %s: %w", path, err)
	}

	var offset uint64
	var index []indexEntry
	var lastKey []byte

	for i := 0; i < len(commands); i += partSize {
		end := i + partSize
		if end > len(commands) {
			end = len(commands)
		}
		part := commands[i:end]

		partStart := offset
		var buf bytes.Buffer
		for _, c := range part {
			if lastKey != nil && bytes.Compare(c.Key, lastKey) <= 0 {
				return fmt.Errorf("sstable: %w: key %q out of order", lsmerrors.ErrDuplicateKey, c.Key)
			}
			lastKey = c.Key
			buf.Write(command.Encode(c))
		}

		n, err := file.WriteAt(buf.Bytes(), int64(offset))
		if err != nil {
			return fmt.Errorf("sstable: write partition: %w", err)
		}
		offset += uint64(n)

		index = append(index, indexEntry{
			firstKey: part[0].Key,
			pos:      Position{Offset: partStart, Length: offset - partStart},
		})
	}

	dataLen := offset
	indexStart := offset

	var idxBuf bytes.Buffer
	for _, e := range index {
		idxBuf.Write(encodeIndexEntry(e))
	}
	n, err := file.WriteAt(idxBuf.Bytes(), int64(indexStart))
	if err != nil {
		return fmt.Errorf("sstable: write index: %w", err)
	}
	indexLen := uint64(n)

	f := footer{
		version:    version,
		dataStart:  0,
		dataLen:    dataLen,
		indexStart: indexStart,
		indexLen:   indexLen,
		partSize:   uint64(partSize),
		magic:      magic,
	}
	footerOffset := indexStart + indexLen
	if _, err := file.WriteAt(f.encode(), int64(footerOffset)); err != nil {
		return fmt.Errorf("sstable: write footer: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("sstable: sync: %w", err)
	}

	return nil
}
