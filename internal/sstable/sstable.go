// Package sstable implements the immutable, sorted, on-disk run a
// memtable is flushed into: a sequence of data partitions of at most
// part_size commands each, a
// sparse index mapping each partition's first key to its location, and a
// fixed-size footer.
package sstable

import (
	"encoding/binary"
	"fmt"

	"lsmkv/internal/lsmerrors"
)

var errTruncatedIndex = fmt.Errorf("sstable: %w: truncated index entry", lsmerrors.ErrCorruptTable)

// magic identifies a well-formed footer and guards against reading a
// truncated or foreign file as an SSTable.
const magic uint64 = 0x4C534D5353544200

const (
	version    uint64 = 1
	footerSize        = 7 * 8 // version, data_start, data_len, index_start, index_len, part_size, magic
)

// Position locates a byte range within the SSTable file.
type Position struct {
	Offset uint64
	Length uint64
}

// footer is the fixed-layout trailer written at the end of every
// SSTable file, all fields little-endian uint64.
type footer struct {
	version    uint64
	dataStart  uint64
	dataLen    uint64
	indexStart uint64
	indexLen   uint64
	partSize   uint64
	magic      uint64
}

func (f footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.version)
	binary.LittleEndian.PutUint64(buf[8:16], f.dataStart)
	binary.LittleEndian.PutUint64(buf[16:24], f.dataLen)
	binary.LittleEndian.PutUint64(buf[24:32], f.indexStart)
	binary.LittleEndian.PutUint64(buf[32:40], f.indexLen)
	binary.LittleEndian.PutUint64(buf[40:48], f.partSize)
	binary.LittleEndian.PutUint64(buf[48:56], f.magic)
	return buf
}

func decodeFooter(buf []byte) footer {
	return footer{
		version:    binary.LittleEndian.Uint64(buf[0:8]),
		dataStart:  binary.LittleEndian.Uint64(buf[8:16]),
		dataLen:    binary.LittleEndian.Uint64(buf[16:24]),
		indexStart: binary.LittleEndian.Uint64(buf[24:32]),
		indexLen:   binary.LittleEndian.Uint64(buf[32:40]),
		partSize:   binary.LittleEndian.Uint64(buf[40:48]),
		magic:      binary.LittleEndian.Uint64(buf[48:56]),
	}
}

// indexEntry is a single sparse-index record: the first key of a
// partition and that partition's location in the data section.
type indexEntry struct {
	firstKey []byte
	pos      Position
}

func encodeIndexEntry(e indexEntry) []byte {
	buf := make([]byte, 4+len(e.firstKey)+8+8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.firstKey)))
	off := 4
	copy(buf[off:], e.firstKey)
	off += len(e.firstKey)
	binary.LittleEndian.PutUint64(buf[off:off+8], e.pos.Offset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], e.pos.Length)
	return buf
}

// decodeIndexEntry decodes one entry starting at buf[0] and returns the
// number of bytes consumed.
func decodeIndexEntry(buf []byte) (indexEntry, int, error) {
	if len(buf) < 4 {
		return indexEntry{}, 0, errTruncatedIndex
	}
	keyLen := int(binary.LittleEndian.Uint32(buf[0:4]))
	need := 4 + keyLen + 16
	if len(buf) < need {
		return indexEntry{}, 0, errTruncatedIndex
	}
	key := make([]byte, keyLen)
	copy(key, buf[4:4+keyLen])
	off := 4 + keyLen
	offset := binary.LittleEndian.Uint64(buf[off : off+8])
	length := binary.LittleEndian.Uint64(buf[off+8 : off+16])
	return indexEntry{firstKey: key, pos: Position{Offset: offset, Length: length}}, need, nil
}
