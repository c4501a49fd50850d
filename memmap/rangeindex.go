package memmap

import "sort"

// Handle identifies a resource or window registered in an address space.
// Handles are opaque and unique across all builders in the process.
type Handle uint64

// NilHandle is the zero Handle. It never identifies a registered entry.
const NilHandle Handle = 0

type entryKind uint8

const (
	entryResource entryKind = iota
	entryWindow
)

// entry is the tagged assignment held against one range: either a leaf
// resource or a window onto a child address space.
type entry struct {
	kind   entryKind
	handle Handle
}

// rangeIndex is an ordered mapping from disjoint [start,end) ranges to
// entries. Boundaries are kept in parallel sorted slices so that point and
// overlap queries are binary searches.
type rangeIndex struct {
	starts  []uint64
	ends    []uint64
	entries []entry
}

// insert adds a range. It reports false if the range overlaps an existing
// one; callers produce diagnostics from overlapping() before inserting.
func (ri *rangeIndex) insert(start, end uint64, e entry) bool {
	if len(ri.overlapping(start, end)) != 0 {
		return false
	}

	// With no overlap, the insertion points computed from both boundary
	// slices coincide.
	idx := sort.Search(len(ri.starts), func(i int) bool {
		return ri.starts[i] > start
	})

	ri.starts = append(ri.starts, 0)
	copy(ri.starts[idx+1:], ri.starts[idx:])
	ri.starts[idx] = start

	ri.ends = append(ri.ends, 0)
	copy(ri.ends[idx+1:], ri.ends[idx:])
	ri.ends[idx] = end

	ri.entries = append(ri.entries, entry{})
	copy(ri.entries[idx+1:], ri.entries[idx:])
	ri.entries[idx] = e

	return true
}

// get returns the entry whose range contains point.
func (ri *rangeIndex) get(point uint64) (entry, bool) {
	idx := sort.Search(len(ri.ends), func(i int) bool {
		return ri.ends[i] > point
	})
	if idx < len(ri.entries) && point >= ri.starts[idx] && point < ri.ends[idx] {
		return ri.entries[idx], true
	}
	return entry{}, false
}

// overlapping returns the indices of all entries intersecting [start,end),
// in ascending address order.
func (ri *rangeIndex) overlapping(start, end uint64) []int {
	lo := sort.Search(len(ri.ends), func(i int) bool {
		return ri.ends[i] > start
	})
	hi := sort.Search(len(ri.starts), func(i int) bool {
		return ri.starts[i] >= end
	})
	if hi <= lo {
		return nil
	}
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func (ri *rangeIndex) len() int {
	return len(ri.entries)
}
