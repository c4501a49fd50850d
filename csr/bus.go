// Package csr implements a lightweight control/status register bus: a
// register multiplexer with shadow-register storage for wide registers, an
// address decoder for aggregating subordinate buses, and a bridge driving
// the bus from a wider initiator.
//
// The bus carries one address of data_width bits per cycle. Reads are
// pipelined: read data appears one cycle after the read strobe. Writes are
// registered and committed to a register one cycle after its last address
// is strobed, making multi-word updates atomic.
package csr

import "regfabric/memmap"

// BusIn carries the initiator-driven bus signals for one clock cycle.
// Address bits above the device's address width are ignored.
type BusIn struct {
	Addr uint64
	// RStb requests a read of Addr. The data appears in BusOut.RData on
	// the next cycle.
	RStb bool
	// WData is the data to write. Valid only while WStb is set.
	WData uint64
	// WStb writes WData to Addr at the end of the cycle.
	WStb bool
}

// BusOut carries the device-driven bus signals for one clock cycle. RData
// is the response to the previous cycle's read strobe and zero otherwise,
// which lets an aggregator OR the outputs of several devices together.
type BusOut struct {
	RData uint64
}

// Device is a clocked CSR bus target. Step advances the device by exactly
// one clock cycle: it observes the input signals, returns the output
// signals for that cycle, and applies its clock-edge state updates. The
// first Step freezes the device's address space.
//
// A Device assumes exclusive ownership by a single initiator for the full
// duration of a register transaction, with the addresses of a multi-word
// register accessed in ascending order. A transaction may be abandoned
// after any cycle.
type Device interface {
	// Map returns the device's address space, finalizing it if needed.
	Map() *memmap.Map
	Step(in BusIn) BusOut
	// Reset returns all per-cycle state to its power-on value. The
	// address space is unaffected.
	Reset()
}

// maskBits returns a mask of the n lowest bits.
func maskBits(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}
