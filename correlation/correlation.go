// Package correlation provides the tokens that tie asynchronous I/O
// completions back to the connection they belong to, and the ownership table
// that holds the live connection state for those tokens. A completion whose
// token is no longer present in the table belongs to a connection that has
// already been disconnected and must be dropped by the consumer.
package correlation

import (
	"sync"
	"sync/atomic"
)

// Token identifies one connection instance for the lifetime of the process.
// Tokens are never reused, so a stale completion can never be misattributed
// to a newer connection.
type Token uint64

// Generator produces unique Tokens in a concurrency-safe manner. The zero
// value is ready to use; the first Next call returns Token(1).
type Generator struct {
	last atomic.Uint64
}

// NewGenerator creates a Generator. It is safe for concurrent use.
//
// Returns:
//   - A new Generator instance
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next unique Token by atomically incrementing the internal
// counter. It is safe for concurrent use by multiple goroutines.
//
// Returns:
//   - The next Token
func (g *Generator) Next() Token {
	return Token(g.last.Add(1))
}

// Table is a concurrent ownership table from Token to connection state. It
// wraps sync.Map and exposes a type-safe API. Table must not be copied after
// first use.
//
// Removing a token from the table is how a connection ends its lifetime:
// any in-flight completion that arrives afterwards fails the lookup and is
// discarded instead of touching freed state.
type Table[V any] struct {
	m sync.Map
}

// NewTable returns an empty Table ready for use.
//
// Returns:
//   - A pointer to a new Table[V]
func NewTable[V any]() *Table[V] {
	return &Table[V]{}
}

// Store sets the value for token t, overwriting any existing value.
//
// Parameters:
//   - t: The token to store under
//   - v: The connection state to associate with t
func (tb *Table[V]) Store(t Token, v V) {
	tb.m.Store(t, v)
}

// Load returns the value for token t and whether the token is present.
//
// Parameters:
//   - t: The token to look up
//
// Returns:
//   - The value associated with t, or the zero value of V if not found
//   - true if the token was present, false otherwise
func (tb *Table[V]) Load(t Token) (V, bool) {
	v, found := tb.m.Load(t)
	if !found {
		var empty V
		return empty, found
	}

	return v.(V), found
}

// Delete removes the entry for token t. Deleting an absent token is a no-op.
//
// Parameters:
//   - t: The token to delete
func (tb *Table[V]) Delete(t Token) {
	tb.m.Delete(t)
}

// Range calls f sequentially for each token and value present in the table.
// If f returns false, Range stops the iteration.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (tb *Table[V]) Range(f func(t Token, v V) bool) {
	tb.m.Range(func(k, v interface{}) bool {
		return f(k.(Token), v.(V))
	})
}

// Len returns the number of entries in the table. It iterates over all
// entries to compute the count.
//
// Returns:
//   - The number of token-value pairs in the table
func (tb *Table[V]) Len() int {
	length := 0
	tb.Range(func(Token, V) bool {
		length++
		return true
	})

	return length
}
