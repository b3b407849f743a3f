package correlation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Next(t *testing.T) {
	g := NewGenerator()

	t.Run("tokens are sequential from one", func(t *testing.T) {
		assert.Equal(t, Token(1), g.Next())
		assert.Equal(t, Token(2), g.Next())
		assert.Equal(t, Token(3), g.Next())
	})

	t.Run("tokens are unique under concurrency", func(t *testing.T) {
		g := NewGenerator()
		const workers, perWorker = 8, 100

		var mu sync.Mutex
		seen := make(map[Token]bool)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					tok := g.Next()
					mu.Lock()
					seen[tok] = true
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, workers*perWorker)
	})
}

func TestTable_StoreLoadDelete(t *testing.T) {
	tb := NewTable[string]()
	require.NotNil(t, tb)

	t.Run("load missing token", func(t *testing.T) {
		v, ok := tb.Load(Token(1))
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("store and load", func(t *testing.T) {
		tb.Store(Token(1), "conn-1")
		v, ok := tb.Load(Token(1))
		assert.True(t, ok)
		assert.Equal(t, "conn-1", v)
	})

	t.Run("delete removes the token", func(t *testing.T) {
		tb.Delete(Token(1))
		_, ok := tb.Load(Token(1))
		assert.False(t, ok)
	})

	t.Run("delete missing token is a no-op", func(t *testing.T) {
		tb.Delete(Token(42))
	})
}

func TestTable_RangeLen(t *testing.T) {
	tb := NewTable[int]()
	tb.Store(Token(1), 10)
	tb.Store(Token(2), 20)
	tb.Store(Token(3), 30)

	assert.Equal(t, 3, tb.Len())

	seen := make(map[Token]int)
	tb.Range(func(tok Token, v int) bool {
		seen[tok] = v
		return true
	})
	assert.Equal(t, map[Token]int{1: 10, 2: 20, 3: 30}, seen)

	t.Run("range stops when f returns false", func(t *testing.T) {
		count := 0
		tb.Range(func(Token, int) bool {
			count++
			return false
		})
		assert.Equal(t, 1, count)
	})
}
