package memmap

import (
	"fmt"
	"math/bits"
	"strings"
	"sync/atomic"

	"regfabric/common"
)

// Config describes the fixed parameters of an address space.
type Config struct {
	// AddrWidth is the number of address bits, between 1 and 63.
	AddrWidth uint
	// DataWidth is the number of data bits transferred per address,
	// between 1 and 64.
	DataWidth uint
	// Alignment is a power-of-2 exponent. Every resource and window is
	// placed at a multiple of 2**Alignment and has its size rounded up to
	// a multiple of 2**Alignment.
	Alignment uint
	// Name of the address space. Optional. A named space added as a
	// window reserves its single name in the parent; an unnamed one
	// donates its entire inner namespace instead.
	Name string
}

// resourceRecord is the stored description of a leaf resource.
type resourceRecord struct {
	name  string
	start uint64
	end   uint64
}

// windowRecord is the stored description of a window onto a child space.
type windowRecord struct {
	child *Map
	start uint64
	end   uint64
	ratio uint
}

// Builder assembles an address space. It allocates ranges to resources and
// windows, and produces an immutable Map through Finalize, after which
// every mutating call fails with common.ErrFrozen.
type Builder struct {
	addrWidth uint
	dataWidth uint
	alignment uint
	name      string

	ranges    rangeIndex
	resources map[Handle]resourceRecord
	windows   map[Handle]windowRecord
	children  map[*Map]Range
	ns        namespace

	nextAddr uint64
	done     bool
}

var handleCounter atomic.Uint64

func newHandle() Handle {
	return Handle(handleCounter.Add(1))
}

// NewBuilder validates cfg and returns an empty Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.AddrWidth < 1 || cfg.AddrWidth > 63 {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("address width must be between 1 and 63, not %d", cfg.AddrWidth))
	}
	if cfg.DataWidth < 1 || cfg.DataWidth > 64 {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("data width must be between 1 and 64, not %d", cfg.DataWidth))
	}
	if cfg.Alignment > 63 {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("alignment must be at most 63, not %d", cfg.Alignment))
	}
	return &Builder{
		addrWidth: cfg.AddrWidth,
		dataWidth: cfg.DataWidth,
		alignment: cfg.Alignment,
		name:      cfg.Name,
		resources: make(map[Handle]resourceRecord),
		windows:   make(map[Handle]windowRecord),
		children:  make(map[*Map]Range),
	}, nil
}

// AddrWidth returns the current address width. It can grow before
// finalization, either explicitly or through an extending allocation.
func (b *Builder) AddrWidth() uint { return b.addrWidth }

func (b *Builder) DataWidth() uint { return b.dataWidth }
func (b *Builder) Alignment() uint { return b.alignment }
func (b *Builder) Name() string    { return b.name }

func alignUp(value uint64, alignment uint) uint64 {
	step := uint64(1) << alignment
	if value%step != 0 {
		value += step - value%step
	}
	return value
}

func bitsFor(v uint64) uint {
	n := uint(bits.Len64(v))
	if n == 0 {
		n = 1
	}
	return n
}

// SetAddrWidth grows the address width. Shrinking is rejected because
// resources that were previously added may not fit anymore.
func (b *Builder) SetAddrWidth(addrWidth uint) error {
	if b.done {
		return common.NewErrorMsg(common.ErrSevError, common.ErrFrozen,
			"address space has been finalized; address width cannot be extended further")
	}
	if addrWidth > 63 {
		return common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("address width must be at most 63, not %d", addrWidth))
	}
	if addrWidth < b.addrWidth {
		return common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("address width %d must not be less than its previous value %d, "+
				"because resources that were previously added may not fit anymore",
				addrWidth, b.addrWidth))
	}
	b.addrWidth = addrWidth
	return nil
}

// AlignTo advances the implicit next address to a multiple of
// 2**max(alignment, b.Alignment()) and returns it. No range is allocated.
func (b *Builder) AlignTo(alignment uint) (uint64, error) {
	if b.done {
		return 0, common.NewErrorMsg(common.ErrSevError, common.ErrFrozen,
			"address space has been finalized; cannot align the next address")
	}
	if alignment > 63 {
		return 0, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("alignment must be at most 63, not %d", alignment))
	}
	if alignment < b.alignment {
		alignment = b.alignment
	}
	b.nextAddr = alignUp(b.nextAddr, alignment)
	return b.nextAddr, nil
}

// describeEntry renders one assigned range for overlap diagnostics.
func (b *Builder) describeEntry(e entry) string {
	switch e.kind {
	case entryResource:
		rec := b.resources[e.handle]
		return fmt.Sprintf("resource %q at %#x..%#x", rec.name, rec.start, rec.end)
	case entryWindow:
		rec := b.windows[e.handle]
		name := rec.child.Name()
		if name == "" {
			return fmt.Sprintf("window at %#x..%#x", rec.start, rec.end)
		}
		return fmt.Sprintf("window %q at %#x..%#x", name, rec.start, rec.end)
	default:
		return "unknown entry"
	}
}

// computeRange resolves the placement of a new allocation: explicit or
// cursor-implicit address, size rounding, bounds and overlap checks. When
// extend is set, an out-of-bounds allocation grows the address width to
// the bit length of its end address instead of failing.
func (b *Builder) computeRange(addr *uint64, size uint64, alignment uint, extend bool) (uint64, uint64, error) {
	var start uint64
	if addr != nil {
		if *addr >= 1<<63 {
			return 0, 0, common.NewErrorWithAddrMsg(common.ErrSevError, common.ErrInvalidParamVal, *addr,
				fmt.Sprintf("address %#x is too large", *addr))
		}
		// Explicit addresses only honor the space-wide alignment. The
		// effective alignment still governs implicit placement and size
		// rounding.
		if *addr%(uint64(1)<<b.alignment) != 0 {
			return 0, 0, common.NewErrorWithAddrMsg(common.ErrSevError, common.ErrInvalidParamVal, *addr,
				fmt.Sprintf("explicitly specified address %#x must be a multiple of %#x",
					*addr, uint64(1)<<b.alignment))
		}
		start = *addr
	} else {
		start = alignUp(b.nextAddr, alignment)
	}

	if size >= 1<<62 {
		return 0, 0, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("size %#x is too large", size))
	}
	if size < 1 {
		size = 1
	}
	size = alignUp(size, alignment)

	span := uint64(1) << b.addrWidth
	if start > span || start+size > span {
		if !extend {
			return 0, 0, common.NewErrorWithAddrMsg(common.ErrSevError, common.ErrOutOfBounds, start,
				fmt.Sprintf("address range %#x..%#x out of bounds for address space spanning "+
					"range 0x0..%#x (%d address bits)", start, start+size, span, b.addrWidth))
		}
		grown := bitsFor(start + size)
		if grown > 63 {
			return 0, 0, common.NewErrorWithAddrMsg(common.ErrSevError, common.ErrOutOfBounds, start,
				fmt.Sprintf("address range %#x..%#x cannot be reached by extending the "+
					"address width beyond 63 bits", start, start+size))
		}
		b.addrWidth = grown
	}

	if idxs := b.ranges.overlapping(start, start+size); len(idxs) != 0 {
		descrs := make([]string, 0, len(idxs))
		for _, i := range idxs {
			descrs = append(descrs, b.describeEntry(b.ranges.entries[i]))
		}
		return 0, 0, common.NewErrorWithAddrMsg(common.ErrSevError, common.ErrRangeOverlap, start,
			fmt.Sprintf("address range %#x..%#x overlaps with %s",
				start, start+size, strings.Join(descrs, ", ")))
	}

	return start, start + size, nil
}

// ResourceConfig describes one AddResource call.
type ResourceConfig struct {
	// Name of the resource. Required; reserved in the local namespace.
	Name string
	// Size in addressable units, rounded up to the effective alignment.
	// A zero size still occupies one unit.
	Size uint64
	// Addr places the resource explicitly. Nil uses the implicit next
	// address.
	Addr *uint64
	// Alignment overrides the address space alignment when larger.
	Alignment *uint
	// Extend grows the address width instead of failing when the
	// resource does not fit.
	Extend bool
}

// AddResource allocates a range for a leaf resource and reserves its name.
// It returns the handle identifying the resource and the assigned range.
func (b *Builder) AddResource(cfg ResourceConfig) (Handle, Range, error) {
	if b.done {
		return NilHandle, Range{}, common.NewErrorMsg(common.ErrSevError, common.ErrFrozen,
			fmt.Sprintf("address space has been finalized; cannot add resource %q", cfg.Name))
	}
	if cfg.Name == "" {
		return NilHandle, Range{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"resource name must be a non-empty string")
	}

	var reasons []string
	if !b.ns.isAvailable([][]string{{cfg.Name}}, &reasons) {
		return NilHandle, Range{}, common.NewErrorMsg(common.ErrSevError, common.ErrNameConflict,
			fmt.Sprintf("resource %q cannot be added to the local namespace:\n- %s",
				cfg.Name, strings.Join(reasons, "\n- ")))
	}

	alignment := b.alignment
	if cfg.Alignment != nil {
		if *cfg.Alignment > 63 {
			return NilHandle, Range{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
				fmt.Sprintf("alignment must be at most 63, not %d", *cfg.Alignment))
		}
		if *cfg.Alignment > alignment {
			alignment = *cfg.Alignment
		}
	}

	start, end, err := b.computeRange(cfg.Addr, cfg.Size, alignment, cfg.Extend)
	if err != nil {
		return NilHandle, Range{}, err
	}

	h := newHandle()
	b.ranges.insert(start, end, entry{kind: entryResource, handle: h})
	b.resources[h] = resourceRecord{name: cfg.Name, start: start, end: end}
	b.ns.assign([]string{cfg.Name}, fmt.Sprintf("resource %q", cfg.Name))
	b.nextAddr = end
	return h, Range{Start: start, End: end}, nil
}

// WindowConfig describes one AddWindow call.
type WindowConfig struct {
	// Child is the finalized address space exposed through the window.
	Child *Map
	// Addr places the window explicitly. Nil uses the implicit next
	// address, aligned to the window size.
	Addr *uint64
	// Sparse selects the address translation mode when the child has a
	// narrower data width: sparse keeps one child address per parent
	// address, dense packs several. It must be set when the widths
	// differ and is ignored when they are equal.
	Sparse *bool
	// Extend grows the address width instead of failing when the window
	// does not fit.
	Extend bool
}

// AddWindow allocates a range exposing a child address space. The child is
// already immutable by construction. A named child reserves its name in
// the local namespace; an unnamed child donates every inner name instead.
// The returned ratio is the number of child addresses covered by one
// parent address.
func (b *Builder) AddWindow(cfg WindowConfig) (Handle, WindowRange, error) {
	if b.done {
		return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrFrozen,
			"address space has been finalized; cannot add a window")
	}
	if cfg.Child == nil {
		return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			"window child must be a finalized address space, not nil")
	}
	child := cfg.Child
	if prev, ok := b.children[child]; ok {
		return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("window %q is already added at address range %#x..%#x",
				child.Name(), prev.Start, prev.End))
	}
	if child.DataWidth() > b.dataWidth {
		return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("window has data width %d, and cannot be added to an address space "+
				"with data width %d", child.DataWidth(), b.dataWidth))
	}
	if child.DataWidth() != b.dataWidth {
		if cfg.Sparse == nil {
			return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
				fmt.Sprintf("address translation mode must be explicitly specified when adding "+
					"a window with data width %d to an address space with data width %d",
					child.DataWidth(), b.dataWidth))
		}
		if !*cfg.Sparse && b.dataWidth%child.DataWidth() != 0 {
			return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
				fmt.Sprintf("dense addressing cannot be used because the address space data "+
					"width %d is not an integer multiple of window data width %d",
					b.dataWidth, child.DataWidth()))
		}
	}

	var queries [][]string
	if child.Name() == "" {
		queries = child.ns.names()
	} else {
		queries = [][]string{{child.Name()}}
	}
	var reasons []string
	if !b.ns.isAvailable(queries, &reasons) {
		return NilHandle, WindowRange{}, common.NewErrorMsg(common.ErrSevError, common.ErrNameConflict,
			fmt.Sprintf("window %q cannot be added to the local namespace:\n- %s",
				child.Name(), strings.Join(reasons, "\n- ")))
	}

	ratio := uint(1)
	if cfg.Sparse == nil || !*cfg.Sparse {
		ratio = b.dataWidth / child.DataWidth()
	}
	size := (uint64(1) << child.AddrWidth()) / uint64(ratio)
	if size < 1 {
		size = 1
	}
	// Windows are self-aligned: the implicit placement is a multiple of the
	// window size, rounded up to a power of 2 for non-power-of-2 ratios.
	alignment := uint(bits.Len64(size - 1))
	if b.alignment > alignment {
		alignment = b.alignment
	}

	start, end, err := b.computeRange(cfg.Addr, size, alignment, cfg.Extend)
	if err != nil {
		return NilHandle, WindowRange{}, err
	}

	h := newHandle()
	b.ranges.insert(start, end, entry{kind: entryWindow, handle: h})
	b.windows[h] = windowRecord{child: child, start: start, end: end, ratio: ratio}
	b.children[child] = Range{Start: start, End: end}
	if child.Name() == "" {
		b.ns.merge(&child.ns)
	} else {
		b.ns.assign([]string{child.Name()}, fmt.Sprintf("window %q", child.Name()))
	}
	b.nextAddr = end
	return h, WindowRange{Start: start, End: end, Ratio: ratio}, nil
}

// Finalize freezes the builder and returns the immutable Map. Every later
// mutating call on the builder fails with common.ErrFrozen.
func (b *Builder) Finalize() (*Map, error) {
	if b.done {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrFrozen,
			fmt.Sprintf("address space %q has already been finalized", b.name))
	}
	b.done = true
	return &Map{
		addrWidth: b.addrWidth,
		dataWidth: b.dataWidth,
		alignment: b.alignment,
		name:      b.name,
		ranges:    b.ranges,
		resources: b.resources,
		windows:   b.windows,
		ns:        b.ns,
	}, nil
}
