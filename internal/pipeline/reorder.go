package pipeline

// reorder releases items in index order regardless of completion order.
// Workers finish segments out of order; the concatenator needs them in
// plan order.
type reorder[T any] struct {
	next    int
	pending map[int]T
}

func newReorder[T any]() *reorder[T] {
	return &reorder[T]{pending: make(map[int]T)}
}

// add buffers an item and returns the contiguous run now ready for release.
func (r *reorder[T]) add(idx int, item T) []T {
	r.pending[idx] = item

	var ready []T
	for {
		item, ok := r.pending[r.next]
		if !ok {
			return ready
		}
		delete(r.pending, r.next)
		ready = append(ready, item)
		r.next++
	}
}

// buffered returns how many items are waiting on earlier indexes.
func (r *reorder[T]) buffered() int {
	return len(r.pending)
}
