package csr

import (
	"bytes"
	"strings"
	"testing"

	"regfabric/common"
	"regfabric/memmap"
)

func TestPow2Ceil(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1023, 1024},
		{1024, 1024},
	}

	for _, tt := range tests {
		if got := pow2Ceil(tt.in); got != tt.want {
			t.Errorf("Expected pow2Ceil(%d): %d, got: %d", tt.in, tt.want, got)
		}
	}
}

func TestShadowDecodeAddress(t *testing.T) {
	tests := []struct {
		name string
		size uint64
		rng  memmap.Range
		addr uint64
		want uint64
	}{
		// The low bits come from the address, the bits above the
		// register span come from its start address.
		{"within lowest register", 4, memmap.Range{Start: 0, End: 2}, 1, 1},
		{"folded upper register", 4, memmap.Range{Start: 6, End: 8}, 7, 3},
		{"unaligned range", 16, memmap.Range{Start: 0x1b, End: 0x1f}, 0x1c, 8},
		{"single word", 2, memmap.Range{Start: 3, End: 4}, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newShadow("test", -1)
			s.add(tt.rng)
			s.size = tt.size
			if got := s.decodeAddress(tt.addr, tt.rng); got != tt.want {
				t.Errorf("Expected offset: %#x, got: %#x", tt.want, got)
			}
		})
	}
}

func TestShadowEncodeOffsetInverse(t *testing.T) {
	ranges := []memmap.Range{
		{Start: 0, End: 2},
		{Start: 2, End: 3},
		{Start: 0x1b, End: 0x1f},
		{Start: 0x40, End: 0x48},
	}
	s := newShadow("test", -1)
	for _, rng := range ranges {
		s.add(rng)
	}
	s.size = 16

	for _, rng := range ranges {
		for addr := rng.Start; addr < rng.End; addr++ {
			offset := s.decodeAddress(addr, rng)
			if got := s.encodeOffset(offset, rng); got != addr {
				t.Errorf("Expected encodeOffset(decodeAddress(%#x)): %#x, got: %#x",
					addr, addr, got)
			}
		}
	}
}

func TestShadowAddGrowsSize(t *testing.T) {
	s := newShadow("test", -1)
	if s.size != 1 {
		t.Fatalf("Expected initial size: 1, got: %d", s.size)
	}
	s.add(memmap.Range{Start: 0, End: 1})
	if s.size != 1 {
		t.Errorf("Expected size: 1, got: %d", s.size)
	}
	s.add(memmap.Range{Start: 1, End: 4})
	if s.size != 4 {
		t.Errorf("Expected size: 4, got: %d", s.size)
	}
	s.add(memmap.Range{Start: 4, End: 6})
	if s.size != 4 {
		t.Errorf("Expected size: 4, got: %d", s.size)
	}
}

func TestShadowPrepareNoLimit(t *testing.T) {
	s := newShadow("test", -1)
	s.add(memmap.Range{Start: 0, End: 2})
	s.add(memmap.Range{Start: 2, End: 4})
	s.prepare(4, common.NewNoOpLogger())

	// Without an overlap limit both registers fold onto the same two
	// chunks.
	if s.size != 2 {
		t.Errorf("Expected size: 2, got: %d", s.size)
	}
	if len(s.offsets) != 2 {
		t.Fatalf("Expected 2 used offsets, got: %d", len(s.offsets))
	}
	for _, offset := range s.offsets {
		if got := len(s.chunks[offset].ranges); got != 2 {
			t.Errorf("Expected 2 ranges sharing offset %#x, got: %d", offset, got)
		}
	}
}

func TestShadowPrepareBalances(t *testing.T) {
	overlaps := 0
	s := newShadow("test", overlaps)
	s.add(memmap.Range{Start: 0, End: 2})
	s.add(memmap.Range{Start: 2, End: 4})
	s.prepare(4, common.NewNoOpLogger())

	// With no sharing allowed the shadow doubles once, bringing bit 1
	// of the start address into the decode.
	if s.size != 4 {
		t.Errorf("Expected size: 4, got: %d", s.size)
	}
	if len(s.offsets) != 4 {
		t.Fatalf("Expected 4 used offsets, got: %d", len(s.offsets))
	}
	for _, offset := range s.offsets {
		if got := len(s.chunks[offset].ranges); got != 1 {
			t.Errorf("Expected 1 range at offset %#x, got: %d", offset, got)
		}
	}
}

func TestShadowPrepareBestEffort(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := common.NewStdLoggerWithWriter(&stdout, &stderr, common.SeverityDebug)

	// Two identical ranges alias at every size, so balancing stops at
	// the full address range and keeps the grouping it has.
	s := newShadow("test", 0)
	s.add(memmap.Range{Start: 0, End: 2})
	s.add(memmap.Range{Start: 0, End: 2})
	s.prepare(3, log)

	if s.size != 8 {
		t.Errorf("Expected size: 8, got: %d", s.size)
	}
	if s.chunks == nil {
		t.Fatal("Expected chunks to be materialized")
	}
	for _, offset := range s.offsets {
		if got := len(s.chunks[offset].ranges); got != 2 {
			t.Errorf("Expected 2 ranges at offset %#x, got: %d", offset, got)
		}
	}
	if !strings.Contains(stdout.String(), "overlap limit still exceeded") {
		t.Errorf("Expected a warning about the overlap limit, got: %q", stdout.String())
	}
}

func TestShadowPrepareIdempotent(t *testing.T) {
	s := newShadow("test", -1)
	s.add(memmap.Range{Start: 0, End: 2})
	s.prepare(4, common.NewNoOpLogger())
	chunks := s.chunks
	s.prepare(4, common.NewNoOpLogger())
	if len(s.chunks) != len(chunks) {
		t.Errorf("Expected second prepare to keep %d chunks, got: %d", len(chunks), len(s.chunks))
	}
	for offset := range chunks {
		if s.chunks[offset] != chunks[offset] {
			t.Errorf("Expected chunk at offset %#x to be unchanged", offset)
		}
	}
}

func TestShadowReset(t *testing.T) {
	s := newShadow("test", -1)
	s.add(memmap.Range{Start: 0, End: 2})
	s.prepare(4, common.NewNoOpLogger())

	c := s.chunk(s.decodeAddress(0, memmap.Range{Start: 0, End: 2}))
	if c == nil {
		t.Fatal("Expected a chunk at offset 0")
	}
	c.data = 0x5a
	c.rEn = true
	s.reset()
	if c.data != 0 || c.rEn {
		t.Errorf("Expected cleared chunk, got: data=%#x rEn=%v", c.data, c.rEn)
	}
}
