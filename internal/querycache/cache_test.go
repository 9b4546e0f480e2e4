package querycache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/ragvisor/internal/chunking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = New(-5)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("what is rag?"), Key("  what is rag?\n"))
	assert.NotEqual(t, Key("what is rag?"), Key("What is rag?"))
	assert.Len(t, Key("x"), 64)
}

func TestCache_GetPut(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	_, ok := c.Get(Key("q"))
	assert.False(t, ok)

	entry := Entry{
		Answer:    "42",
		Documents: []string{"chunk"},
		Metadatas: []chunking.Metadata{{Source: "doc.pdf", ChunkID: "doc.pdf_0"}},
	}
	c.Put(Key("q"), entry)

	got, ok := c.Get(Key("q"))
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), Entry{Answer: fmt.Sprint(i)})
	}

	// Touch k0 so k1 becomes the oldest.
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Put("k3", Entry{Answer: "3"})
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get("k1")
	assert.False(t, ok, "k1 should be evicted")
	for _, k := range []string{"k0", "k2", "k3"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestCache_NeverExceedsCapacity(t *testing.T) {
	c, err := New(DefaultCapacity)
	require.NoError(t, err)
	c.SetMetrics(NewMetrics())

	for i := 0; i < DefaultCapacity+1; i++ {
		c.Put(Key(fmt.Sprint(i)), Entry{Answer: fmt.Sprint(i)})
	}
	assert.Equal(t, DefaultCapacity, c.Len())

	_, ok := c.Get(Key("0"))
	assert.False(t, ok)
	_, ok = c.Get(Key(fmt.Sprint(DefaultCapacity)))
	assert.True(t, ok)
}

func TestCache_PutReplaces(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	c.Put("k", Entry{Answer: "old"})
	c.Put("k", Entry{Answer: "new"})
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got.Answer)
}

func TestCache_Clear(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	c.SetMetrics(NewMetrics())

	c.Put("a", Entry{})
	c.Put("b", Entry{})
	c.Clear()

	assert.Zero(t, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_PutIfGeneration(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)

	gen := c.Generation()
	assert.True(t, c.PutIfGeneration("a", Entry{Answer: "1"}, gen))
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, gen+1, c.Generation())
	assert.False(t, c.PutIfGeneration("b", Entry{Answer: "2"}, gen))
	assert.Zero(t, c.Len())

	assert.True(t, c.PutIfGeneration("b", Entry{Answer: "2"}, c.Generation()))
	assert.Equal(t, 1, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i+j)%20)
				c.Put(key, Entry{Answer: key})
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 10)
}
