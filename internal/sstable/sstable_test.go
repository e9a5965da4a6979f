package sstable_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"lsmkv/internal/command"
	"lsmkv/internal/diskmanager/mockdm"
	"lsmkv/internal/lsmerrors"
	"lsmkv/internal/sstable"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortedCommands(pairs ...[2]string) []command.Command {
	cmds := make([]command.Command, len(pairs))
	for i, p := range pairs {
		cmds[i] = command.Command{Kind: command.Set, Key: []byte(p[0]), Value: []byte(p[1])}
	}
	return cmds
}

func TestBuildAndGet(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "test.sst")

	cmds := sortedCommands(
		[2]string{"apple", "red"},
		[2]string{"banana", "yellow"},
		[2]string{"cherry", "dark red"},
		[2]string{"date", "brown"},
	)

	require.NoError(t, sstable.BuildFromSorted(dm, path, 2, cmds))

	r, err := sstable.Open(dm, path)
	require.NoError(t, err)
	defer r.Close()

	for _, c := range cmds {
		v, err := r.Get(c.Key)
		require.NoError(t, err)
		assert.Equal(t, c.Value, v)
	}

	_, err = r.Get([]byte("nonexistent"))
	assert.ErrorIs(t, err, lsmerrors.ErrKeyNotFound)
}

func TestGet_Tombstone(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "tomb.sst")

	cmds := []command.Command{
		{Kind: command.Set, Key: []byte("a"), Value: []byte("1")},
		{Kind: command.Remove, Key: []byte("a")},
	}

	require.NoError(t, sstable.BuildFromSorted(dm, path, 10, cmds))

	r, err := sstable.Open(dm, path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Get([]byte("a"))
	assert.ErrorIs(t, err, lsmerrors.ErrKeyNotFound)
}

func TestBuild_OutOfOrderRejected(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "bad.sst")

	cmds := sortedCommands([2]string{"b", "1"}, [2]string{"a", "2"})
	err := sstable.BuildFromSorted(dm, path, 10, cmds)
	assert.ErrorIs(t, err, lsmerrors.ErrDuplicateKey)
}

func TestBuild_DuplicateKeyRejected(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "dup.sst")

	cmds := sortedCommands([2]string{"a", "1"}, [2]string{"a", "2"})
	err := sstable.BuildFromSorted(dm, path, 10, cmds)
	assert.ErrorIs(t, err, lsmerrors.ErrDuplicateKey)
}

func TestGet_OutOfRangeKeys(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "range.sst")

	cmds := sortedCommands([2]string{"c", "1"}, [2]string{"e", "1"}, [2]string{"g", "1"})
	require.NoError(t, sstable.BuildFromSorted(dm, path, 1, cmds))

	r, err := sstable.Open(dm, path)
	require.NoError(t, err)
	defer r.Close()

	for _, key := range []string{"a", "d", "f", "z"} {
		_, err := r.Get([]byte(key))
		assert.ErrorIs(t, err, lsmerrors.ErrKeyNotFound)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "corrupt.sst")

	file, err := dm.Open(path, 0, 0)
	require.NoError(t, err)
	_, err = file.WriteAt([]byte("not an sstable"), 0)
	require.NoError(t, err)

	_, err = sstable.Open(dm, path)
	assert.ErrorIs(t, err, lsmerrors.ErrCorruptTable)
}

func TestBuild_ManyPartitions(t *testing.T) {
	dm := mockdm.NewMockDiskManager()
	path := filepath.Join(t.TempDir(), "many.sst")

	const n = 500
	cmds := make([]command.Command, n)
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		cmds[i] = command.Command{Kind: command.Set, Key: k, Value: k}
	}

	require.NoError(t, sstable.BuildFromSorted(dm, path, 8, cmds))

	r, err := sstable.Open(dm, path)
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < n; i += 37 {
		k := []byte(fmt.Sprintf("key-%04d", i))
		v, err := r.Get(k)
		require.NoError(t, err)
		assert.Equal(t, k, v)
	}
}
