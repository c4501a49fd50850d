package csr

import (
	"fmt"
	"sort"

	"regfabric/common"
	"regfabric/memmap"
)

// MultiplexerConfig carries the construction parameters of a Multiplexer.
type MultiplexerConfig struct {
	// AddrWidth and DataWidth size the bus. See memmap.Config.
	AddrWidth uint
	DataWidth uint
	// Alignment is the register alignment, a power-of-2 exponent. With a
	// non-zero alignment, the write that commits a register is the one
	// to the last address of its aligned range, so write latency follows
	// from the register's footprint in the initiator's address space.
	Alignment uint
	// Name of the multiplexer's address space. Optional.
	Name string
	// ShadowOverlaps is the maximum number of registers that may share a
	// chunk of a shadow register. Nil permits any number.
	ShadowOverlaps *int
	// Logger receives shadow balancing diagnostics. Nil discards them.
	Logger common.Logger
}

// muxElem pairs a register element with its allocated range and the
// registered write strobe that commits it.
type muxElem struct {
	elem  *Element
	rng   memmap.Range
	words uint
	wStb  bool
}

// Multiplexer is an address-based multiplexer for CSR registers with
// atomic multi-word updates.
//
// Registers wider than the bus occupy several consecutive addresses.
// Reading the first address samples the whole register into a shadow at
// once, so a slow multi-cycle read cannot observe a torn value; writes
// accumulate in a shadow and commit in one piece when the last address is
// written. Shadow chunks are shared between registers where their
// addresses permit, keeping the shadow cost well below one full copy of
// every register.
type Multiplexer struct {
	builder *memmap.Builder
	fmap    *memmap.Map

	elems    []*muxElem
	byHandle map[memmap.Handle]*muxElem

	rsh *shadow
	wsh *shadow

	dataWidth uint
	log       common.Logger
}

// NewMultiplexer validates cfg and returns an empty multiplexer.
func NewMultiplexer(cfg MultiplexerConfig) (*Multiplexer, error) {
	builder, err := memmap.NewBuilder(memmap.Config{
		AddrWidth: cfg.AddrWidth,
		DataWidth: cfg.DataWidth,
		Alignment: cfg.Alignment,
		Name:      cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	overlaps := -1
	if cfg.ShadowOverlaps != nil {
		overlaps = *cfg.ShadowOverlaps
	}
	log := cfg.Logger
	if log == nil {
		log = common.NewNoOpLogger()
	}
	return &Multiplexer{
		builder:   builder,
		byHandle:  make(map[memmap.Handle]*muxElem),
		rsh:       newShadow("r_shadow", overlaps),
		wsh:       newShadow("w_shadow", overlaps),
		dataWidth: cfg.DataWidth,
		log:       log,
	}, nil
}

// RegisterConfig describes one Add call.
type RegisterConfig struct {
	// Name of the register. Required.
	Name string
	// Addr places the register explicitly. Nil uses the implicit next
	// address.
	Addr *uint64
	// Alignment overrides the multiplexer alignment when larger.
	Alignment *uint
	// Extend grows the address width instead of failing when the
	// register does not fit.
	Extend bool
}

// Add allocates addresses for a register element. The element occupies
// ceil(width/data_width) addresses before alignment. Fails once the
// multiplexer has been stepped or its map finalized.
func (m *Multiplexer) Add(elem *Element, cfg RegisterConfig) (memmap.Range, error) {
	if elem == nil {
		return memmap.Range{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"element must not be nil")
	}
	if elem.owner != nil {
		return memmap.Range{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("element is already added at address range %#x..%#x",
				elem.rng.Start, elem.rng.End))
	}

	size := (uint64(elem.width) + uint64(m.dataWidth) - 1) / uint64(m.dataWidth)
	h, rng, err := m.builder.AddResource(memmap.ResourceConfig{
		Name:      cfg.Name,
		Size:      size,
		Addr:      cfg.Addr,
		Alignment: cfg.Alignment,
		Extend:    cfg.Extend,
	})
	if err != nil {
		return memmap.Range{}, err
	}

	elem.owner = m
	elem.rng = rng
	me := &muxElem{elem: elem, rng: rng, words: uint(size)}
	m.elems = append(m.elems, me)
	m.byHandle[h] = me
	return rng, nil
}

// AlignTo aligns the implicit address of the next register.
func (m *Multiplexer) AlignTo(alignment uint) (uint64, error) {
	return m.builder.AlignTo(alignment)
}

// Finalize freezes the address space, balances the shadows and returns
// the map. It runs implicitly on the first Step or Map call.
func (m *Multiplexer) Finalize() (*memmap.Map, error) {
	if m.fmap != nil {
		return m.fmap, nil
	}
	fmap, err := m.builder.Finalize()
	if err != nil {
		return nil, err
	}
	m.fmap = fmap

	sort.Slice(m.elems, func(i, j int) bool { return m.elems[i].rng.Start < m.elems[j].rng.Start })
	for _, me := range m.elems {
		if me.elem.access.Readable() {
			m.rsh.add(me.rng)
		}
		if me.elem.access.Writable() {
			m.wsh.add(me.rng)
		}
	}
	m.rsh.prepare(fmap.AddrWidth(), m.log)
	m.wsh.prepare(fmap.AddrWidth(), m.log)
	return fmap, nil
}

// Map returns the multiplexer's address space, finalizing it if needed.
func (m *Multiplexer) Map() *memmap.Map {
	fmap, _ := m.Finalize()
	return fmap
}

// lookup returns the element whose range contains addr, or nil.
func (m *Multiplexer) lookup(addr uint64) *muxElem {
	h, ok := m.fmap.DecodeAddress(addr)
	if !ok {
		return nil
	}
	return m.byHandle[h]
}

// wordMask returns the valid-bit mask of word k of the element.
func (m *Multiplexer) wordMask(me *muxElem, k uint) uint64 {
	rem := me.elem.width - k*m.dataWidth
	if rem >= m.dataWidth {
		return maskBits(m.dataWidth)
	}
	return maskBits(rem)
}

// Step advances the multiplexer by one clock cycle.
//
// The returned read data answers the previous cycle's read strobe. A read
// strobe on the first address of a register fires its read hook and
// samples the whole register into the read shadow; strobes on the other
// addresses only select the already-sampled words. A write strobe stores
// the data into the write shadow; the strobe on the last address of a
// register schedules its commit, which fires the write hook on the next
// cycle with the fully assembled value.
func (m *Multiplexer) Step(in BusIn) BusOut {
	if m.fmap == nil {
		if _, err := m.Finalize(); err != nil {
			m.log.Error(err)
			return BusOut{}
		}
	}
	addr := in.Addr & maskBits(m.fmap.AddrWidth())

	var out BusOut
	for _, offset := range m.rsh.offsets {
		if c := m.rsh.chunks[offset]; c.rEn {
			out.RData |= c.data
		}
	}

	me := m.lookup(addr)

	// Read strobe on the first address: the register value is sampled
	// before any commit below can change it, matching a peripheral that
	// updates its storage at the end of the cycle.
	var rSample []uint64
	readable := me != nil && in.RStb && me.elem.access.Readable()
	if readable && addr == me.rng.Start {
		if me.elem.onRead != nil {
			me.elem.onRead()
		}
		if me.elem.readValue != nil {
			rSample = me.elem.readValue()
		} else {
			rSample = []uint64{}
		}
	}

	// Write strobes registered on the previous cycle commit now.
	for _, pe := range m.elems {
		if !pe.wStb {
			continue
		}
		pe.wStb = false
		value := make([]uint64, pe.words)
		for k := uint(0); k < pe.words; k++ {
			c := m.wsh.chunk(m.wsh.decodeAddress(pe.rng.Start+uint64(k), pe.rng))
			value[k] = c.data & m.wordMask(pe, k)
		}
		if pe.elem.onWrite != nil {
			pe.elem.onWrite(value)
		}
	}

	// Clock edge.
	for _, offset := range m.rsh.offsets {
		m.rsh.chunks[offset].rEn = false
	}
	if readable {
		m.rsh.chunk(m.rsh.decodeAddress(addr, me.rng)).rEn = true
	}
	if rSample != nil {
		for k := uint64(0); k < me.rng.End-me.rng.Start; k++ {
			c := m.rsh.chunk(m.rsh.decodeAddress(me.rng.Start+k, me.rng))
			var w uint64
			if k < uint64(me.words) && k < uint64(len(rSample)) {
				w = rSample[k] & m.wordMask(me, uint(k))
			}
			c.data = w
		}
	}
	if me != nil && in.WStb && me.elem.access.Writable() {
		c := m.wsh.chunk(m.wsh.decodeAddress(addr, me.rng))
		c.data = in.WData & maskBits(m.dataWidth)
		if addr == me.rng.End-1 {
			me.wStb = true
		}
	}

	return out
}

// Reset clears the shadows and any pending write strobes. The address
// space is unaffected.
func (m *Multiplexer) Reset() {
	m.rsh.reset()
	m.wsh.reset()
	for _, me := range m.elems {
		me.wStb = false
	}
}
