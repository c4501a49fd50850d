package memmap

import (
	"fmt"
	"strings"

	"regfabric/common"
)

// Range is a half-open address range [Start, End) assigned to a resource.
type Range struct {
	Start uint64
	End   uint64
}

// WindowRange is the address range assigned to a window. When bridging
// buses of unequal data width, Ratio is the number of contiguous addresses
// on the narrower bus that are accessed for each transaction on the wider
// bus; otherwise it is 1.
type WindowRange struct {
	Start uint64
	End   uint64
	Ratio uint
}

// ResourceInfo describes a resource and its address range as seen from the
// address space a query started at. Resources reached through a window have
// their range translated into the outer address space, and the names of any
// named windows on the way prepended to Path.
type ResourceInfo struct {
	Handle Handle
	Path   []string
	Start  uint64
	End    uint64
	// Width is the number of data bits accessible per address at this
	// vantage point. It grows by the window ratio each time the resource
	// is seen through a dense window.
	Width uint
}

// LocalResource is a resource placed directly in an address space, without
// window translation.
type LocalResource struct {
	Handle Handle
	Name   string
	Range  Range
}

// LocalWindow is a window placed directly in an address space.
type LocalWindow struct {
	Handle Handle
	Child  *Map
	Range  WindowRange
}

// WindowPattern pairs a window with a match pattern for its address range.
// Pattern is AddrWidth characters of '0', '1' and '-', most significant bit
// first; an address falls inside the window exactly when its bits match.
type WindowPattern struct {
	Handle  Handle
	Child   *Map
	Pattern string
	Ratio   uint
}

// Map is a frozen address space produced by Builder.Finalize. It carries
// the full allocation of resources and windows and answers layout queries;
// it cannot be modified.
type Map struct {
	addrWidth uint
	dataWidth uint
	alignment uint
	name      string

	ranges    rangeIndex
	resources map[Handle]resourceRecord
	windows   map[Handle]windowRecord
	ns        namespace
}

// Name returns the name of the address space, or "" if it has none.
func (m *Map) Name() string { return m.name }

// AddrWidth returns the number of address bits.
func (m *Map) AddrWidth() uint { return m.addrWidth }

// DataWidth returns the number of data bits transferred per address.
func (m *Map) DataWidth() uint { return m.dataWidth }

// Alignment returns the power-of-2 exponent every range is aligned to.
func (m *Map) Alignment() uint { return m.alignment }

// Resources lists local resources in ascending order of their address.
// Resources behind windows are not included; see AllResources.
func (m *Map) Resources() []LocalResource {
	var out []LocalResource
	for i, e := range m.ranges.entries {
		if e.kind != entryResource {
			continue
		}
		rec := m.resources[e.handle]
		out = append(out, LocalResource{
			Handle: e.handle,
			Name:   rec.name,
			Range:  Range{Start: m.ranges.starts[i], End: m.ranges.ends[i]},
		})
	}
	return out
}

// Windows lists local windows in ascending order of their address.
func (m *Map) Windows() []LocalWindow {
	var out []LocalWindow
	for i, e := range m.ranges.entries {
		if e.kind != entryWindow {
			continue
		}
		rec := m.windows[e.handle]
		out = append(out, LocalWindow{
			Handle: e.handle,
			Child:  rec.child,
			Range:  WindowRange{Start: m.ranges.starts[i], End: m.ranges.ends[i], Ratio: rec.ratio},
		})
	}
	return out
}

// WindowPatterns lists local windows in ascending order of their address,
// each with the bit pattern that matches its address range.
func (m *Map) WindowPatterns() []WindowPattern {
	var out []WindowPattern
	for _, w := range m.Windows() {
		childAW := w.Child.AddrWidth()
		constBits := m.addrWidth - childAW
		constPat := ""
		if constBits > 0 {
			constPat = fmt.Sprintf("%0*b", constBits, w.Range.Start>>childAW)
		}
		out = append(out, WindowPattern{
			Handle:  w.Handle,
			Child:   w.Child,
			Pattern: constPat + strings.Repeat("-", int(childAW)),
			Ratio:   w.Range.Ratio,
		})
	}
	return out
}

// translate rewrites a child-space ResourceInfo into this space through the
// given window: the window start offsets the range, a dense ratio shrinks
// the size and widens the per-address data width, and the window's name (if
// any) is prepended to the path.
func translate(info ResourceInfo, w windowRecord) ResourceInfo {
	path := info.Path
	if w.child.Name() != "" {
		path = append([]string{w.child.Name()}, path...)
	}
	size := (info.End - info.Start) / uint64(w.ratio)
	start := info.Start + w.start
	return ResourceInfo{
		Handle: info.Handle,
		Path:   path,
		Start:  start,
		End:    start + size,
		Width:  info.Width * w.ratio,
	}
}

// AllResources lists every resource in ascending order of its address,
// recursing through windows and translating the ranges of resources that
// are located behind them.
func (m *Map) AllResources() []ResourceInfo {
	var out []ResourceInfo
	for i, e := range m.ranges.entries {
		switch e.kind {
		case entryResource:
			rec := m.resources[e.handle]
			out = append(out, ResourceInfo{
				Handle: e.handle,
				Path:   []string{rec.name},
				Start:  m.ranges.starts[i],
				End:    m.ranges.ends[i],
				Width:  m.dataWidth,
			})
		case entryWindow:
			rec := m.windows[e.handle]
			for _, info := range rec.child.AllResources() {
				out = append(out, translate(info, rec))
			}
		}
	}
	return out
}

// FindResource returns the address range of the resource with the given
// handle, recursing through windows and translating the range if the
// resource is located behind one. Fails with common.ErrNotFound if the
// handle is not present in this address space.
func (m *Map) FindResource(h Handle) (ResourceInfo, error) {
	if rec, ok := m.resources[h]; ok {
		return ResourceInfo{
			Handle: h,
			Path:   []string{rec.name},
			Start:  rec.start,
			End:    rec.end,
			Width:  m.dataWidth,
		}, nil
	}
	for _, e := range m.ranges.entries {
		if e.kind != entryWindow {
			continue
		}
		rec := m.windows[e.handle]
		if info, err := rec.child.FindResource(h); err == nil {
			return translate(info, rec), nil
		}
	}
	return ResourceInfo{}, common.NewErrorMsg(common.ErrSevError, common.ErrNotFound,
		fmt.Sprintf("resource with handle %d is not present in address space %q", h, m.name))
}

// DecodeAddress returns the handle of the resource mapped at the given
// address, recursing through windows. The second return value is false if
// no resource is mapped there.
func (m *Map) DecodeAddress(addr uint64) (Handle, bool) {
	e, ok := m.ranges.get(addr)
	if !ok {
		return NilHandle, false
	}
	switch e.kind {
	case entryResource:
		return e.handle, true
	case entryWindow:
		rec := m.windows[e.handle]
		return rec.child.DecodeAddress((addr - rec.start) / uint64(rec.ratio))
	}
	return NilHandle, false
}
