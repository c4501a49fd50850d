package csr

import (
	"fmt"
	"math/bits"

	"regfabric/common"
	"regfabric/memmap"
)

// WBIn carries the initiator-driven Wishbone signals for one clock cycle.
type WBIn struct {
	// Adr selects one bus-width word; Wishbone addresses do not include
	// the byte-in-word bits.
	Adr uint64
	// DatW is the write data. Sampled only while We, Cyc and Stb hold.
	DatW uint64
	// Sel enables one data segment per bit, each as wide as the bridged
	// CSR bus. Bit 0 must be set for a transaction on an equal-width
	// bridge.
	Sel uint8
	We  bool
	Cyc bool
	Stb bool
}

// WBOut carries the bridge-driven Wishbone signals for one clock cycle.
// DatR is valid while Ack is set.
type WBOut struct {
	DatR uint64
	Ack  bool
}

// BridgeConfig carries the construction parameters of a Bridge.
type BridgeConfig struct {
	// DataWidth is the Wishbone data width: 8, 16, 32 or 64, and at
	// least the CSR data width. Zero selects the CSR data width.
	DataWidth uint
	// Name of the bridge's address space. Optional.
	Name   string
	Logger common.Logger
}

// Bridge drives a CSR bus from a Wishbone initiator, performing address
// translation when the Wishbone side is wider.
//
// A transaction always takes ratio+1 cycles regardless of the select
// inputs, where ratio is the data width quotient: one cycle per CSR-width
// segment and one to acknowledge. Write side effects occur together with
// the acknowledgement.
type Bridge struct {
	sub  Device
	fmap *memmap.Map

	ratio       uint
	ratioLog2   uint
	granularity uint
	wbAddrWidth uint

	cycle uint
	datR  uint64
	ack   bool

	log common.Logger
}

// NewBridge validates cfg and returns a bridge in front of sub, whose
// address space is finalized as a side effect.
func NewBridge(sub Device, cfg BridgeConfig) (*Bridge, error) {
	if sub == nil {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"subordinate bus must not be nil")
	}
	subMap := sub.Map()
	if subMap == nil {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"subordinate bus has no address space")
	}
	granularity := subMap.DataWidth()
	switch granularity {
	case 8, 16, 32, 64:
	default:
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("CSR bus data width must be one of 8, 16, 32, 64, not %d", granularity))
	}
	dataWidth := cfg.DataWidth
	if dataWidth == 0 {
		dataWidth = granularity
	}
	switch dataWidth {
	case 8, 16, 32, 64:
	default:
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("Wishbone bus data width must be one of 8, 16, 32, 64, not %d", dataWidth))
	}
	if dataWidth < granularity {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("Wishbone bus data width %d must be greater than or equal to CSR bus "+
				"data width %d", dataWidth, granularity))
	}

	// Granularity matches the CSR data width, so no width conversion is
	// performed even when the Wishbone side is wider; the bridge's own
	// map stays in CSR units.
	builder, err := memmap.NewBuilder(memmap.Config{
		AddrWidth: subMap.AddrWidth(),
		DataWidth: granularity,
		Name:      cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	if _, _, err := builder.AddWindow(memmap.WindowConfig{Child: subMap}); err != nil {
		return nil, err
	}
	fmap, err := builder.Finalize()
	if err != nil {
		return nil, err
	}

	ratio := dataWidth / granularity
	ratioLog2 := uint(bits.TrailingZeros(ratio))
	wbAddrWidth := uint(0)
	if subMap.AddrWidth() > ratioLog2 {
		wbAddrWidth = subMap.AddrWidth() - ratioLog2
	}
	log := cfg.Logger
	if log == nil {
		log = common.NewNoOpLogger()
	}
	return &Bridge{
		sub:         sub,
		fmap:        fmap,
		ratio:       ratio,
		ratioLog2:   ratioLog2,
		granularity: granularity,
		wbAddrWidth: wbAddrWidth,
		log:         log,
	}, nil
}

// Map returns the bridge's address space, expressed in CSR units.
func (b *Bridge) Map() *memmap.Map { return b.fmap }

// Ratio returns the number of CSR accesses issued per Wishbone access.
func (b *Bridge) Ratio() uint { return b.ratio }

// AddrWidth returns the Wishbone-side address width.
func (b *Bridge) AddrWidth() uint { return b.wbAddrWidth }

// DataWidth returns the Wishbone-side data width.
func (b *Bridge) DataWidth() uint { return b.ratio * b.granularity }

func (b *Bridge) setSegment(idx uint, data uint64) {
	shift := idx * b.granularity
	mask := maskBits(b.granularity) << shift
	b.datR = b.datR&^mask | data<<shift&mask
}

// Step advances the bridge and the CSR bus behind it by one clock cycle.
// While the initiator holds Cyc and Stb, the bridge walks one CSR address
// per cycle from ratio*Adr upward, strobing only the segments enabled by
// Sel, then acknowledges. Back-to-back transactions may keep Stb high
// across the acknowledge cycle.
func (b *Bridge) Step(in WBIn) WBOut {
	out := WBOut{DatR: b.datR, Ack: b.ack}
	ackNow := b.ack
	active := in.Cyc && in.Stb
	adr := in.Adr & maskBits(b.wbAddrWidth)

	var csrIn BusIn
	if active && b.cycle < b.ratio {
		idx := b.cycle
		sel := in.Sel>>idx&1 != 0
		csrIn.Addr = adr<<b.ratioLog2 | uint64(idx)
		csrIn.RStb = sel && !in.We
		csrIn.WStb = sel && in.We
		csrIn.WData = in.DatW >> (idx * b.granularity) & maskBits(b.granularity)
	}
	subOut := b.sub.Step(csrIn)

	// Clock edge. CSR reads are registered, so each segment is captured
	// one cycle after its strobe; the acknowledge cycle captures the
	// last one.
	if active {
		if b.cycle < b.ratio {
			if b.cycle > 0 {
				b.setSegment(b.cycle-1, subOut.RData)
			}
			b.cycle++
		} else {
			b.setSegment(b.ratio-1, subOut.RData)
			b.ack = true
		}
	}
	if ackNow {
		b.cycle = 0
		b.ack = false
	}
	return out
}

// Reset clears the transaction state and resets the CSR bus behind the
// bridge.
func (b *Bridge) Reset() {
	b.cycle = 0
	b.ack = false
	b.datR = 0
	b.sub.Reset()
}
