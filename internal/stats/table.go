package stats

import "sort"

// Entry is one key of a frequency table with its count.
type Entry[K comparable] struct {
	Key   K
	Count int64
}

// Table is a frequency counter that remembers first-seen order, which breaks
// ties in Top.
type Table[K comparable] struct {
	index   map[K]int
	entries []Entry[K]
	total   int64
}

// NewTable returns an empty table.
func NewTable[K comparable]() *Table[K] {
	return &Table[K]{index: make(map[K]int)}
}

// Inc adds one to key.
func (t *Table[K]) Inc(key K) {
	t.Add(key, 1)
}

// Add adds n to key.
func (t *Table[K]) Add(key K, n int64) {
	if i, ok := t.index[key]; ok {
		t.entries[i].Count += n
	} else {
		t.index[key] = len(t.entries)
		t.entries = append(t.entries, Entry[K]{Key: key, Count: n})
	}
	t.total += n
}

// Count returns the count for key, zero when unseen.
func (t *Table[K]) Count(key K) int64 {
	if i, ok := t.index[key]; ok {
		return t.entries[i].Count
	}
	return 0
}

// Len is the number of distinct keys.
func (t *Table[K]) Len() int {
	return len(t.entries)
}

// Total is the sum of all counts.
func (t *Table[K]) Total() int64 {
	return t.total
}

// Entries returns all entries in first-seen order.
func (t *Table[K]) Entries() []Entry[K] {
	out := make([]Entry[K], len(t.entries))
	copy(out, t.entries)
	return out
}

// Top returns the n highest counts, descending, ties in first-seen order.
// n <= 0 returns every entry.
func (t *Table[K]) Top(n int) []Entry[K] {
	out := t.Entries()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
