package csr

import (
	"math/bits"
	"sort"

	"regfabric/common"
	"regfabric/memmap"
)

// shadowChunk is one bus-width unit of a shadow register. A chunk may be
// shared by several registers whose addresses alias under the shadow's
// decode scheme.
type shadowChunk struct {
	offset uint64
	data   uint64
	rEn    bool
	// ranges lists the address ranges of the registers using this chunk.
	ranges []memmap.Range
}

// shadow is the multiplexer-side backing store for registers wider than
// the bus. Registers are assigned chunks by folding their addresses into
// a power-of-2 sized offset space; prepare grows that space until no
// offset is shared by more registers than the overlap limit allows.
type shadow struct {
	name string
	// overlaps is the maximum number of registers that may share one
	// chunk. Negative means no explicit limit; prepare then uses the
	// number of registers, which never constrains.
	overlaps int
	ranges   []memmap.Range
	size     uint64
	chunks   map[uint64]*shadowChunk
	offsets  []uint64
}

func newShadow(name string, overlaps int) *shadow {
	return &shadow{name: name, overlaps: overlaps, size: 1}
}

func pow2Ceil(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(v-1)
}

// add registers an element address range with the shadow. The range uses
// pow2Ceil(size) chunks; the shadow grows to at least that many offsets.
func (s *shadow) add(rng memmap.Range) {
	s.ranges = append(s.ranges, rng)
	if elemSize := pow2Ceil(rng.End - rng.Start); elemSize > s.size {
		s.size = elemSize
	}
}

// decodeAddress folds a bus address belonging to rng into a shadow
// offset: the low bits select the word within the register, the remaining
// offset bits come from the register's start address.
func (s *shadow) decodeAddress(addr uint64, rng memmap.Range) uint64 {
	elemMask := pow2Ceil(rng.End-rng.Start) - 1
	selfMask := s.size - 1
	return rng.Start&selfMask&^elemMask | addr&elemMask
}

// encodeOffset maps a shadow offset back to the bus address in rng that
// decodes to it. Inverse of decodeAddress for addresses within rng.
func (s *shadow) encodeOffset(offset uint64, rng memmap.Range) uint64 {
	elemMask := pow2Ceil(rng.End-rng.Start) - 1
	return rng.Start + (offset-rng.Start)&elemMask
}

// prepare balances the shadow and instantiates its chunks. Whenever an
// offset is shared by more ranges than the overlap limit permits, the
// offset space is doubled, bringing one more address bit into the decode
// and spreading the ranges out. Growth stops at 2**addrWidth offsets; at
// that point every range occupies distinct offsets unless two registers
// genuinely alias, and the final grouping is kept as-is.
func (s *shadow) prepare(addrWidth uint, log common.Logger) {
	if s.chunks != nil {
		return
	}
	if s.overlaps < 0 {
		s.overlaps = len(s.ranges)
	}
	sort.Slice(s.ranges, func(i, j int) bool { return s.ranges[i].Start < s.ranges[j].Start })

	span := uint64(1) << addrWidth
	for {
		buckets := make(map[uint64][]memmap.Range)
		balanced := true
		for _, rng := range s.ranges {
			for addr := rng.Start; addr < rng.End; addr++ {
				offset := s.decodeAddress(addr, rng)
				if len(buckets[offset]) > s.overlaps {
					balanced = false
				}
				buckets[offset] = append(buckets[offset], rng)
			}
		}
		if balanced || s.size >= span {
			if !balanced {
				log.Warning(s.name + ": overlap limit still exceeded at full address range, keeping final grouping")
			}
			s.chunks = make(map[uint64]*shadowChunk, len(buckets))
			s.offsets = make([]uint64, 0, len(buckets))
			for offset, ranges := range buckets {
				s.chunks[offset] = &shadowChunk{offset: offset, ranges: ranges}
				s.offsets = append(s.offsets, offset)
			}
			sort.Slice(s.offsets, func(i, j int) bool { return s.offsets[i] < s.offsets[j] })
			return
		}
		s.size *= 2
		log.Logf(common.SeverityDebug, "%s: chunk overlap limit %d exceeded, growing to %d offsets",
			s.name, s.overlaps, s.size)
	}
}

// chunk returns the chunk at a decoded offset, or nil if no register uses
// that offset.
func (s *shadow) chunk(offset uint64) *shadowChunk {
	return s.chunks[offset]
}

// reset clears the captured data and read enables of every chunk.
func (s *shadow) reset() {
	for _, offset := range s.offsets {
		c := s.chunks[offset]
		c.data = 0
		c.rEn = false
	}
}
