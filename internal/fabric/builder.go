package fabric

import (
	"fmt"

	"regfabric/common"
	"regfabric/csr"
	"regfabric/memmap"
)

// valueMask returns a mask of the low n bits.
func valueMask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// RegValue is the live storage behind one register of a built bus. Bus
// reads sample it in one piece; a bus write replaces it in one piece when
// the register's last address is written.
type RegValue struct {
	path   string
	width  uint
	dw     uint
	words  uint
	access csr.Access
	value  uint64
}

// Path returns the slash-joined path of the register.
func (r *RegValue) Path() string { return r.path }

// Width returns the register width in bits.
func (r *RegValue) Width() uint { return r.width }

// Access returns the register's bus access mode.
func (r *RegValue) Access() csr.Access { return r.access }

// Get returns the stored value.
func (r *RegValue) Get() uint64 { return r.value }

// Set replaces the stored value, masked to the register width.
func (r *RegValue) Set(v uint64) { r.value = v & valueMask(r.width) }

// readWords splits the value into bus words, least significant first.
func (r *RegValue) readWords() []uint64 {
	words := make([]uint64, r.words)
	v := r.value
	for k := range words {
		words[k] = v & valueMask(r.dw)
		v >>= r.dw
	}
	return words
}

// writeWords assembles bus words into the value.
func (r *RegValue) writeWords(words []uint64) {
	var v uint64
	for k, w := range words {
		v |= w << (uint(k) * r.dw)
	}
	r.value = v & valueMask(r.width)
}

// Bus is a live bus tree built from a fabric description: the root device
// plus the storage behind every register, keyed by slash-joined path.
type Bus struct {
	Root csr.Device
	Regs map[string]*RegValue
}

// Map returns the finalized address space of the root device.
func (b *Bus) Map() *memmap.Map { return b.Root.Map() }

// Reg returns the storage of the register at the given path.
func (b *Bus) Reg(path string) (*RegValue, error) {
	rv, ok := b.Regs[path]
	if !ok {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrNotFound,
			fmt.Sprintf("no register at path %q", path))
	}
	return rv, nil
}

type finalizer interface {
	Finalize() (*memmap.Map, error)
}

// BuildBus turns a validated description into a live bus tree with
// backing register storage. A space with registers becomes a
// multiplexer, a space with windows becomes a decoder; a space mixing
// both cannot be driven by one bus node.
func BuildBus(sp *Space, log common.Logger) (*Bus, error) {
	if log == nil {
		log = common.NewNoOpLogger()
	}
	regs := make(map[string]*RegValue)
	root, err := buildNode(sp, "", regs, log)
	if err != nil {
		return nil, err
	}
	if f, ok := root.(finalizer); ok {
		if _, err := f.Finalize(); err != nil {
			return nil, err
		}
	}
	log.Logf(common.SeverityDebug, "built bus %q: %d registers", sp.Name, len(regs))
	return &Bus{Root: root, Regs: regs}, nil
}

// buildNode builds the device for one space. prefix is the slash-joined
// path of the named windows above it.
func buildNode(sp *Space, prefix string, regs map[string]*RegValue, log common.Logger) (csr.Device, error) {
	if len(sp.Registers) > 0 && len(sp.Windows) > 0 {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrConfig,
			fmt.Sprintf("space %q holds registers and windows at once; a bus node is "+
				"either a register bank or a router", sp.Name))
	}
	if len(sp.Windows) > 0 {
		return buildRouter(sp, prefix, regs, log)
	}
	return buildBank(sp, prefix, regs, log)
}

// buildBank builds a multiplexer for a space of registers.
func buildBank(sp *Space, prefix string, regs map[string]*RegValue, log common.Logger) (csr.Device, error) {
	mux, err := csr.NewMultiplexer(csr.MultiplexerConfig{
		AddrWidth: sp.AddrWidth,
		DataWidth: sp.DataWidth,
		Alignment: sp.Alignment,
		Name:      sp.Name,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	for i := range sp.Registers {
		r := &sp.Registers[i]
		access, err := csr.ParseAccess(r.Access)
		if err != nil {
			return nil, err
		}
		elem, err := csr.NewElement(r.Width, access)
		if err != nil {
			return nil, err
		}
		rv := &RegValue{
			path:   joinPath(prefix, r.Name),
			width:  r.Width,
			dw:     sp.DataWidth,
			words:  (r.Width + sp.DataWidth - 1) / sp.DataWidth,
			access: access,
			value:  r.Init & valueMask(r.Width),
		}
		if access.Readable() {
			elem.SetReadValue(rv.readWords)
		}
		if access.Writable() {
			elem.SetWriteHook(rv.writeWords)
		}
		if _, err := mux.Add(elem, csr.RegisterConfig{
			Name:      r.Name,
			Addr:      r.Addr,
			Alignment: r.Alignment,
		}); err != nil {
			return nil, err
		}
		regs[rv.path] = rv
	}
	return mux, nil
}

// buildRouter builds a decoder for a space of windows.
func buildRouter(sp *Space, prefix string, regs map[string]*RegValue, log common.Logger) (csr.Device, error) {
	dec, err := csr.NewDecoder(csr.DecoderConfig{
		AddrWidth: sp.AddrWidth,
		DataWidth: sp.DataWidth,
		Alignment: sp.Alignment,
		Name:      sp.Name,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	for i := range sp.Windows {
		w := &sp.Windows[i]
		child, err := buildNode(&w.Space, joinPath(prefix, w.Name), regs, log)
		if err != nil {
			return nil, err
		}
		if _, err := dec.Add(child, csr.SubConfig{Addr: w.Addr}); err != nil {
			return nil, err
		}
	}
	return dec, nil
}

// AccessByPath collects the access mode of every register in the
// description, keyed by slash-joined path.
func AccessByPath(sp *Space) map[string]string {
	out := make(map[string]string)
	collectAccess(sp, "", out)
	return out
}

func collectAccess(sp *Space, prefix string, out map[string]string) {
	for i := range sp.Registers {
		out[joinPath(prefix, sp.Registers[i].Name)] = sp.Registers[i].Access
	}
	for i := range sp.Windows {
		w := &sp.Windows[i]
		collectAccess(&w.Space, joinPath(prefix, w.Name), out)
	}
}

// BuildMap lays out a description as a bare address space, without
// building bus devices. Unlike a live bus, a bare layout supports
// windows with unequal data widths, so sparse and dense translation can
// be inspected.
func BuildMap(sp *Space) (*memmap.Map, error) {
	b, err := memmap.NewBuilder(memmap.Config{
		AddrWidth: sp.AddrWidth,
		DataWidth: sp.DataWidth,
		Alignment: sp.Alignment,
		Name:      sp.Name,
	})
	if err != nil {
		return nil, err
	}
	for i := range sp.Registers {
		r := &sp.Registers[i]
		size := uint64((r.Width + sp.DataWidth - 1) / sp.DataWidth)
		if _, _, err := b.AddResource(memmap.ResourceConfig{
			Name:      r.Name,
			Size:      size,
			Addr:      r.Addr,
			Alignment: r.Alignment,
		}); err != nil {
			return nil, err
		}
	}
	for i := range sp.Windows {
		w := &sp.Windows[i]
		child, err := BuildMap(&w.Space)
		if err != nil {
			return nil, err
		}
		if _, _, err := b.AddWindow(memmap.WindowConfig{
			Child:  child,
			Addr:   w.Addr,
			Sparse: w.Sparse,
		}); err != nil {
			return nil, err
		}
	}
	return b.Finalize()
}
