// Package sim executes a bus script against a fabric built from a YAML
// description, tracing every cycle. It drives the register multiplexers
// and routers directly, or through a bus width bridge in wide mode, and
// fails with a script error on the first unmet expectation.
package sim

import (
	"fmt"
	"io"
	"os"

	"regfabric/common"
	"regfabric/csr"
	"regfabric/internal/fabric"
)

// Config mirrors the command line arguments of the sim tool.
type Config struct {
	// FabricFile is the path of the YAML fabric description.
	FabricFile string
	// ScriptFile is the path of the bus script to execute.
	ScriptFile string
	// WideDataWidth, when non-zero, drives the fabric through a bus
	// width bridge with the given initiator data width. Script
	// addresses are then initiator word addresses.
	WideDataWidth uint
	// OutputWriter receives the cycle trace. Defaults to os.Stdout.
	OutputWriter io.Writer
	// Logger receives progress diagnostics. Defaults to no-op.
	Logger common.Logger
}

// Run builds the fabric, parses the script and executes it.
func Run(cfg Config) error {
	w := cfg.OutputWriter
	if w == nil {
		w = os.Stdout
	}
	log := cfg.Logger
	if log == nil {
		log = common.NewNoOpLogger()
	}

	fmt.Fprintln(w, "Register Fabric Simulator")
	fmt.Fprintln(w, "-------------------------")
	fmt.Fprintf(w, "Fabric: %s\n", cfg.FabricFile)
	fmt.Fprintf(w, "Script: %s\n", cfg.ScriptFile)

	sp, err := fabric.ParseFile(cfg.FabricFile)
	if err != nil {
		return err
	}
	bus, err := fabric.BuildBus(sp, log)
	if err != nil {
		return err
	}
	cmds, err := ParseScriptFile(cfg.ScriptFile)
	if err != nil {
		return err
	}
	log.Logf(common.SeverityInfo, "executing %d script commands against fabric %q",
		len(cmds), sp.Name)

	r := &runner{bus: bus, w: w, log: log}
	if cfg.WideDataWidth != 0 {
		brg, err := csr.NewBridge(bus.Root, csr.BridgeConfig{
			DataWidth: cfg.WideDataWidth,
			Name:      sp.Name,
			Logger:    log,
		})
		if err != nil {
			return err
		}
		r.brg = brg
		r.addrDigits = hexDigits(brg.AddrWidth())
		r.dataDigits = hexDigits(brg.DataWidth())
		fmt.Fprintf(w, "Bridge: %d-bit initiator, ratio %d\n", brg.DataWidth(), brg.Ratio())
	} else {
		m := bus.Map()
		r.addrDigits = hexDigits(m.AddrWidth())
		r.dataDigits = hexDigits(m.DataWidth())
	}
	fmt.Fprintln(w)

	if err := r.run(cmds); err != nil {
		return err
	}
	fmt.Fprintf(w, "Completed %d commands in %d cycles\n", len(cmds), r.cyc)
	return nil
}

func hexDigits(bits uint) int {
	d := int(bits+3) / 4
	if d == 0 {
		d = 1
	}
	return d
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// runner holds the execution state of one script run.
type runner struct {
	bus *fabric.Bus
	brg *csr.Bridge
	w   io.Writer
	log common.Logger

	cyc        uint64
	addrDigits int
	dataDigits int

	// readPending marks a read strobe whose data arrives on the next
	// cycle; lastRead holds the data of the most recent completed read.
	readPending bool
	lastRead    uint64
	readValid   bool
}

// step advances the narrow bus one cycle and traces it.
func (r *runner) step(in csr.BusIn) csr.BusOut {
	out := r.bus.Root.Step(in)
	if r.readPending {
		r.lastRead = out.RData
		r.readValid = true
		r.readPending = false
	}
	if in.RStb {
		r.readPending = true
	}
	fmt.Fprintf(r.w, "Cyc:%4d; addr=0x%0*x r=%d w=%d wdata=0x%0*x; rdata=0x%0*x\n",
		r.cyc, r.addrDigits, in.Addr, b2i(in.RStb), b2i(in.WStb),
		r.dataDigits, in.WData, r.dataDigits, out.RData)
	r.cyc++
	return out
}

// wstep advances the bridge one cycle and traces it.
func (r *runner) wstep(in csr.WBIn) csr.WBOut {
	out := r.brg.Step(in)
	fmt.Fprintf(r.w, "Cyc:%4d; adr=0x%0*x sel=0x%02x we=%d cyc=%d stb=%d dat_w=0x%0*x; ack=%d dat_r=0x%0*x\n",
		r.cyc, r.addrDigits, in.Adr, in.Sel, b2i(in.We), b2i(in.Cyc), b2i(in.Stb),
		r.dataDigits, in.DatW, b2i(out.Ack), r.dataDigits, out.DatR)
	r.cyc++
	return out
}

func (r *runner) idle() {
	if r.brg != nil {
		r.wstep(csr.WBIn{})
	} else {
		r.step(csr.BusIn{})
	}
}

func (r *runner) reg(line int, path string) (*fabric.RegValue, error) {
	rv, ok := r.bus.Regs[path]
	if !ok {
		return nil, scriptErr(line, "no register at path %q", path)
	}
	return rv, nil
}

// transact drives one full transaction on the bridge and returns the
// read data of its acknowledge cycle.
func (r *runner) transact(line int, adr, datW, sel uint64, we bool) (uint64, error) {
	in := csr.WBIn{Adr: adr, DatW: datW, Sel: uint8(sel), We: we, Cyc: true, Stb: true}
	for i := uint(0); i < r.brg.Ratio()+2; i++ {
		out := r.wstep(in)
		if out.Ack {
			return out.DatR, nil
		}
	}
	return 0, scriptErr(line, "bus transaction at 0x%x did not acknowledge", adr)
}

func (r *runner) run(cmds []Command) error {
	for i := range cmds {
		if err := r.exec(&cmds[i]); err != nil {
			return err
		}
	}
	// Drain the last read so its data reaches the trace.
	if r.readPending {
		r.step(csr.BusIn{})
	}
	return nil
}

func (r *runner) exec(cmd *Command) error {
	switch cmd.Op {
	case OpRead:
		if r.brg != nil {
			sel := uint64(1)<<r.brg.Ratio() - 1
			data, err := r.transact(cmd.Line, cmd.Addr, 0, sel, false)
			if err != nil {
				return err
			}
			r.lastRead = data
			r.readValid = true
			return nil
		}
		r.step(csr.BusIn{Addr: cmd.Addr, RStb: true})

	case OpWrite:
		if r.brg != nil {
			sel := uint64(1)<<r.brg.Ratio() - 1
			if cmd.HasSel {
				sel = cmd.Sel
			}
			_, err := r.transact(cmd.Line, cmd.Addr, cmd.Data, sel, true)
			return err
		}
		if cmd.HasSel {
			return scriptErr(cmd.Line, "write select masks need a wide bus; run with a bridge")
		}
		r.step(csr.BusIn{Addr: cmd.Addr, WStb: true, WData: cmd.Data})

	case OpIdle:
		for n := uint64(0); n < cmd.Count; n++ {
			r.idle()
		}

	case OpExpect:
		if r.readPending {
			r.idle()
		}
		if !r.readValid {
			return scriptErr(cmd.Line, "expect without a completed read")
		}
		if r.lastRead != cmd.Data {
			return scriptErr(cmd.Line, "expected read data %#x, got %#x", cmd.Data, r.lastRead)
		}

	case OpCheck:
		rv, err := r.reg(cmd.Line, cmd.Path)
		if err != nil {
			return err
		}
		if got := rv.Get(); got != cmd.Data {
			return scriptErr(cmd.Line, "register %s holds %#x, expected %#x",
				cmd.Path, got, cmd.Data)
		}

	case OpSet:
		rv, err := r.reg(cmd.Line, cmd.Path)
		if err != nil {
			return err
		}
		rv.Set(cmd.Data)

	case OpReset:
		if r.brg != nil {
			r.brg.Reset()
		} else {
			r.bus.Root.Reset()
		}
		r.readPending = false
		r.readValid = false
	}
	return nil
}
