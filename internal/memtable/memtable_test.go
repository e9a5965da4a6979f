package memtable_test

import (
	"fmt"
	"testing"

	"lsmkv/internal/command"
	"lsmkv/internal/memtable"

	"github.com/stretchr/testify/assert"
)

func TestMemtable_SetGet(t *testing.T) {
	m := memtable.New()

	m.Set([]byte("a"), command.Command{Kind: command.Set, Key: []byte("a"), Value: []byte("1")})
	m.Set([]byte("b"), command.Command{Kind: command.Set, Key: []byte("b"), Value: []byte("2")})

	got, ok := m.Get([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), got.Value)

	_, ok = m.Get([]byte("missing"))
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
}

func TestMemtable_Overwrite(t *testing.T) {
	m := memtable.New()

	m.Set([]byte("a"), command.Command{Kind: command.Set, Key: []byte("a"), Value: []byte("1")})
	m.Set([]byte("a"), command.Command{Kind: command.Set, Key: []byte("a"), Value: []byte("2")})

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), got.Value)
}

func TestMemtable_Remove(t *testing.T) {
	m := memtable.New()

	m.Set([]byte("a"), command.Command{Kind: command.Set, Key: []byte("a"), Value: []byte("1")})
	m.Set([]byte("a"), command.Command{Kind: command.Remove, Key: []byte("a")})

	got, ok := m.Get([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, command.Remove, got.Kind)
	assert.Equal(t, 1, m.Len())
}

func TestMemtable_EntriesSortedByKey(t *testing.T) {
	m := memtable.New()

	for _, k := range []string{"d", "b", "a", "c"} {
		m.Set([]byte(k), command.Command{Kind: command.Set, Key: []byte(k), Value: []byte(k)})
	}

	entries := m.Entries()
	var keys []string
	for _, e := range entries {
		keys = append(keys, string(e.Key))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

func TestMemtable_Clear(t *testing.T) {
	m := memtable.New()
	m.Set([]byte("a"), command.Command{Kind: command.Set, Key: []byte("a"), Value: []byte("1")})
	m.Clear()
	assert.Equal(t, 0, m.Len())
	_, ok := m.Get([]byte("a"))
	assert.False(t, ok)
}

func TestMemtable_ManyKeysOrdered(t *testing.T) {
	m := memtable.New()
	const n = 500
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%04d", i))
		m.Set(k, command.Command{Kind: command.Set, Key: k, Value: k})
	}
	assert.Equal(t, n, m.Len())

	entries := m.Entries()
	for i := 1; i < len(entries); i++ {
		assert.True(t, string(entries[i-1].Key) < string(entries[i].Key))
	}
}
