// Package lister renders a frozen register fabric as plain text: the
// resource table of its address space, the local windows, and their
// address match patterns. The output is stable so it can be compared
// against golden files.
package lister

import (
	"fmt"
	"io"
	"os"
	"strings"

	"regfabric/common"
	"regfabric/internal/fabric"
	"regfabric/memmap"
)

// Config mirrors the command line arguments of the list tool.
type Config struct {
	// FabricFile is the path of the YAML fabric description.
	FabricFile string
	// OutputWriter receives the listing. Defaults to os.Stdout.
	OutputWriter io.Writer
	// Logger receives progress diagnostics. Defaults to no-op.
	Logger common.Logger
}

// Run parses the fabric description, lays it out and lists it.
func Run(cfg Config) error {
	w := cfg.OutputWriter
	if w == nil {
		w = os.Stdout
	}
	log := cfg.Logger
	if log == nil {
		log = common.NewNoOpLogger()
	}

	fmt.Fprintln(w, "Register Fabric Lister")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "Reading fabric description from %s\n", cfg.FabricFile)

	sp, err := fabric.ParseFile(cfg.FabricFile)
	if err != nil {
		return err
	}
	log.Logf(common.SeverityInfo, "parsed fabric description %q", sp.Name)

	m, err := fabric.BuildMap(sp)
	if err != nil {
		return err
	}
	log.Logf(common.SeverityInfo, "laid out address space %q: %d resources",
		m.Name(), len(m.AllResources()))

	List(w, m, fabric.AccessByPath(sp))
	return nil
}

// List renders one frozen address space to w. access maps slash-joined
// resource paths to their access mode; resources without an entry are
// listed with mode "--".
func List(w io.Writer, m *memmap.Map, access map[string]string) {
	digits := int(m.AddrWidth()+3) / 4

	fmt.Fprintf(w, "\nAddress space %q: %d address bits, %d data bits, alignment 2^%d\n",
		m.Name(), m.AddrWidth(), m.DataWidth(), m.Alignment())

	fmt.Fprintln(w, "\nResources:")
	all := m.AllResources()
	if len(all) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	pathW := 0
	paths := make([]string, len(all))
	for i, info := range all {
		paths[i] = strings.Join(info.Path, "/")
		if len(paths[i]) > pathW {
			pathW = len(paths[i])
		}
	}
	for i, info := range all {
		mode, ok := access[paths[i]]
		if !ok {
			mode = "--"
		}
		fmt.Fprintf(w, "  0x%0*x..0x%0*x  %-*s  %-2s  width %d\n",
			digits, info.Start, digits, info.End, pathW, paths[i], mode, info.Width)
	}

	fmt.Fprintln(w, "\nWindows:")
	wins := m.Windows()
	if len(wins) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	nameW := 0
	for _, lw := range wins {
		if n := len(windowName(lw.Child)); n > nameW {
			nameW = n
		}
	}
	for _, lw := range wins {
		fmt.Fprintf(w, "  0x%0*x..0x%0*x  %-*s  ratio %d\n",
			digits, lw.Range.Start, digits, lw.Range.End,
			nameW, windowName(lw.Child), lw.Range.Ratio)
	}

	fmt.Fprintln(w, "\nWindow patterns:")
	pats := m.WindowPatterns()
	if len(pats) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range pats {
		fmt.Fprintf(w, "  %s  %s\n", p.Pattern, windowName(p.Child))
	}
}

func windowName(m *memmap.Map) string {
	if m.Name() == "" {
		return "(anonymous)"
	}
	return m.Name()
}
