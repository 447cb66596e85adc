// Package seq provides an append-only dynamic sequence with stable indices.
//
// A Seq is the engine's working store for AST records and the
// back-reference journal. Indices handed out by Append remain valid until
// the sequence is truncated below them. Truncate is the rollback primitive:
// failed subtrees discard their records by truncating back to a mark taken
// on entry.
package seq

// Seq is an append-only sequence of T with O(1) index access and truncation.
// The zero value is ready to use.
type Seq[T any] struct {
	items []T
}

// New returns a sequence with room for n items before reallocation.
func New[T any](n int) *Seq[T] {
	return &Seq[T]{items: make([]T, 0, n)}
}

// Append adds v and returns its index.
func (s *Seq[T]) Append(v T) int {
	s.items = append(s.items, v)
	return len(s.items) - 1
}

// Len returns the number of items.
func (s *Seq[T]) Len() int {
	return len(s.items)
}

// At returns a pointer to the item at index i.
// The pointer is invalidated by the next Append.
func (s *Seq[T]) At(i int) *T {
	return &s.items[i]
}

// Truncate discards all items at index n and above.
// Truncating beyond the current length is a no-op.
func (s *Seq[T]) Truncate(n int) {
	if n < len(s.items) {
		s.items = s.items[:n]
	}
}

// Reset empties the sequence, retaining capacity for reuse.
func (s *Seq[T]) Reset() {
	s.items = s.items[:0]
}

// Slice returns the live items. The slice is invalidated by Append.
func (s *Seq[T]) Slice() []T {
	return s.items
}
