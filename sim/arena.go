package sim

// resettable is implemented by pooled slot types. reset must clear every field
// that could leak state between borrows while keeping backing storage.
type resettable[T any] interface {
	*T
	reset()
}

// Arena is an index-addressed pool: a vector of slots plus a free-index stack.
// Borrow hands out an index, Release resets the slot and pushes the index back.
// Slots are heap-allocated once, so pointers returned by Get stay valid while
// the index is live. An Arena is not safe for concurrent use.
type Arena[T any, P resettable[T]] struct {
	slots []P
	live  []bool
	free  []int
	count int
}

// Borrow returns a live index and its zeroed-by-reset slot.
func (a *Arena[T, P]) Borrow() (int, P) {
	var idx int
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = len(a.slots)
		slot := P(new(T))
		slot.reset()
		a.slots = append(a.slots, slot)
		a.live = append(a.live, false)
	}
	a.live[idx] = true
	a.count++
	return idx, a.slots[idx]
}

// Release resets the slot at idx and returns it to the free stack.
// Releasing a dead index is a no-op.
func (a *Arena[T, P]) Release(idx int) {
	if !a.Live(idx) {
		return
	}
	a.slots[idx].reset()
	a.live[idx] = false
	a.free = append(a.free, idx)
	a.count--
}

// ReleaseAll releases every live slot. Indices are pushed in descending order
// so the next run borrows them back in ascending order.
func (a *Arena[T, P]) ReleaseAll() {
	for i := len(a.slots) - 1; i >= 0; i-- {
		a.Release(i)
	}
}

// Live reports whether idx refers to a borrowed slot.
func (a *Arena[T, P]) Live(idx int) bool {
	return idx >= 0 && idx < len(a.live) && a.live[idx]
}

// Get returns the slot at idx, or nil when idx is not live.
func (a *Arena[T, P]) Get(idx int) P {
	if !a.Live(idx) {
		var none P
		return none
	}
	return a.slots[idx]
}

// Count returns the number of live slots.
func (a *Arena[T, P]) Count() int {
	return a.count
}

// Cap returns the number of slots ever allocated.
func (a *Arena[T, P]) Cap() int {
	return len(a.slots)
}

// bitset is a fixed-width set of arena indices reused across searches.
type bitset []uint64

func (b *bitset) grow(n int) {
	words := (n + 63) / 64
	if cap(*b) < words {
		*b = make(bitset, words)
		return
	}
	*b = (*b)[:words]
}

func (b bitset) clear() {
	for i := range b {
		b[i] = 0
	}
}

func (b bitset) has(i int) bool {
	w := i / 64
	return i >= 0 && w < len(b) && b[w]&(1<<(uint(i)%64)) != 0
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}
