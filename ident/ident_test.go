package ident

import (
	"strings"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextNodeID_Sequential(t *testing.T) {
	g := New()
	assert.Equal(t, "node-1", g.NextNodeID())
	assert.Equal(t, "node-2", g.NextNodeID())
	assert.Equal(t, uint64(2), g.Current())
}

func TestRandomIDs(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		p := g.NextPortID()
		c := g.NextConnectionID()
		require.True(t, strings.HasPrefix(p, PortPrefix))
		require.True(t, strings.HasPrefix(c, ConnectionPrefix))
		require.False(t, seen[p], "duplicate port id %s", p)
		require.False(t, seen[c], "duplicate connection id %s", c)
		seen[p], seen[c] = true, true
	}

	raw, err := base58.Decode(strings.TrimPrefix(g.NextPortID(), PortPrefix))
	require.NoError(t, err)
	assert.Len(t, raw, 16)
}

func TestAdvance(t *testing.T) {
	g := New()
	g.Advance(10)
	assert.Equal(t, "node-11", g.NextNodeID())

	// Never backwards
	g.Advance(3)
	assert.Equal(t, "node-12", g.NextNodeID())
}

func TestNextNodeID_Concurrent(t *testing.T) {
	g := New()
	const workers, each = 8, 250

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id := g.NextNodeID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*each)
	assert.Equal(t, uint64(workers*each), g.Current())
}

func TestNodeSeq(t *testing.T) {
	tests := []struct {
		id     string
		want   uint64
		wantOK bool
	}{
		{"node-1", 1, true},
		{"node-42", 42, true},
		{"node-", 0, false},
		{"node-abc", 0, false},
		{"port-xyz", 0, false},
		{"custom", 0, false},
	}
	for _, tt := range tests {
		got, ok := NodeSeq(tt.id)
		assert.Equal(t, tt.wantOK, ok, tt.id)
		assert.Equal(t, tt.want, got, tt.id)
	}
}
