package csr

import (
	"fmt"

	"regfabric/common"
	"regfabric/memmap"
)

// DecoderConfig carries the construction parameters of a Decoder.
type DecoderConfig struct {
	AddrWidth uint
	DataWidth uint
	// Alignment is the window alignment, a power-of-2 exponent.
	Alignment uint
	// Name of the decoder's address space. Optional.
	Name   string
	Logger common.Logger
}

type decoderSub struct {
	dev     Device
	start   uint64
	childAW uint
}

// Decoder routes bus accesses to subordinate CSR buses by address range.
//
// There is no functional difference between one Multiplexer holding every
// register and several multiplexers aggregated under a Decoder, but the
// hierarchical form keeps each peripheral's registers and decode logic
// together and narrows the wiring between them to one bus.
type Decoder struct {
	builder *memmap.Builder
	fmap    *memmap.Map
	subs    []decoderSub
	log     common.Logger
}

// NewDecoder validates cfg and returns an empty decoder.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	builder, err := memmap.NewBuilder(memmap.Config{
		AddrWidth: cfg.AddrWidth,
		DataWidth: cfg.DataWidth,
		Alignment: cfg.Alignment,
		Name:      cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = common.NewNoOpLogger()
	}
	return &Decoder{builder: builder, log: log}, nil
}

// SubConfig describes one Add call.
type SubConfig struct {
	// Addr places the window explicitly. Nil uses the implicit next
	// address, aligned to the subordinate's address space size.
	Addr *uint64
	// Extend grows the address width instead of failing when the window
	// does not fit.
	Extend bool
}

// Add allocates a window routing to a subordinate bus. The subordinate's
// address space is finalized as a side effect. Its data width must equal
// the decoder's; width adaptation belongs in a Bridge.
func (d *Decoder) Add(sub Device, cfg SubConfig) (memmap.WindowRange, error) {
	if sub == nil {
		return memmap.WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"subordinate bus must not be nil")
	}
	subMap := sub.Map()
	if subMap == nil {
		return memmap.WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"subordinate bus has no address space")
	}
	if subMap.DataWidth() != d.builder.DataWidth() {
		return memmap.WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("subordinate bus has data width %d, which is not the same as decoder "+
				"data width %d", subMap.DataWidth(), d.builder.DataWidth()))
	}
	// Routing compares the address bits above the subordinate's width, so
	// a window must sit on a multiple of its own span.
	if cfg.Addr != nil && *cfg.Addr%(uint64(1)<<subMap.AddrWidth()) != 0 {
		return memmap.WindowRange{}, common.NewErrorWithAddrMsg(common.ErrSevError, common.ErrInvalidParamVal,
			*cfg.Addr,
			fmt.Sprintf("window address %#x must be a multiple of %#x to be routable",
				*cfg.Addr, uint64(1)<<subMap.AddrWidth()))
	}

	_, wr, err := d.builder.AddWindow(memmap.WindowConfig{
		Child:  subMap,
		Addr:   cfg.Addr,
		Extend: cfg.Extend,
	})
	if err != nil {
		return memmap.WindowRange{}, err
	}
	d.subs = append(d.subs, decoderSub{dev: sub, start: wr.Start, childAW: subMap.AddrWidth()})
	return wr, nil
}

// AlignTo aligns the implicit address of the next window.
func (d *Decoder) AlignTo(alignment uint) (uint64, error) {
	return d.builder.AlignTo(alignment)
}

// Finalize freezes the address space and returns the map. It runs
// implicitly on the first Step or Map call.
func (d *Decoder) Finalize() (*memmap.Map, error) {
	if d.fmap != nil {
		return d.fmap, nil
	}
	fmap, err := d.builder.Finalize()
	if err != nil {
		return nil, err
	}
	d.fmap = fmap
	return fmap, nil
}

// Map returns the decoder's address space, finalizing it if needed.
func (d *Decoder) Map() *memmap.Map {
	fmap, _ := d.Finalize()
	return fmap
}

// Step advances the decoder and every subordinate bus by one clock cycle.
// Subordinates always see the low address bits and the write data; the
// strobes only reach the one subordinate whose window matches the address.
// Idle subordinates output zero, so the read data is an OR across all of
// them.
func (d *Decoder) Step(in BusIn) BusOut {
	if d.fmap == nil {
		if _, err := d.Finalize(); err != nil {
			d.log.Error(err)
			return BusOut{}
		}
	}
	addr := in.Addr & maskBits(d.fmap.AddrWidth())

	var out BusOut
	for i := range d.subs {
		sub := &d.subs[i]
		subIn := BusIn{Addr: addr & maskBits(sub.childAW), WData: in.WData}
		if addr>>sub.childAW == sub.start>>sub.childAW {
			subIn.RStb = in.RStb
			subIn.WStb = in.WStb
		}
		subOut := sub.dev.Step(subIn)
		out.RData |= subOut.RData
	}
	return out
}

// Reset resets every subordinate bus.
func (d *Decoder) Reset() {
	for i := range d.subs {
		d.subs[i].dev.Reset()
	}
}
