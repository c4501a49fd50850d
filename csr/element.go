package csr

import (
	"fmt"

	"regfabric/common"
	"regfabric/memmap"
)

// Access is the coarse access mode of a register. Individual fields of a
// register can be more restrictive, e.g. a read-only field can be part of
// a read-write register.
type Access uint8

const (
	AccessR Access = iota + 1
	AccessW
	AccessRW
)

// Readable reports whether the mode permits reads.
func (a Access) Readable() bool { return a == AccessR || a == AccessRW }

// Writable reports whether the mode permits writes.
func (a Access) Writable() bool { return a == AccessW || a == AccessRW }

func (a Access) String() string {
	switch a {
	case AccessR:
		return "r"
	case AccessW:
		return "w"
	case AccessRW:
		return "rw"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// ParseAccess converts the textual access modes "r", "w" and "rw".
func ParseAccess(s string) (Access, error) {
	switch s {
	case "r":
		return AccessR, nil
	case "w":
		return AccessW, nil
	case "rw":
		return AccessRW, nil
	default:
		return 0, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("%q is not a valid access mode", s))
	}
}

// ReadValueFunc supplies the current value of a register as bus-width
// words, least significant word first. The value must always be valid; it
// is sampled on the cycle the register's read strobe fires. Words beyond
// the returned slice read as zero.
type ReadValueFunc func() []uint64

// ReadHookFunc is called on the cycle a read of the register starts, so
// registers with read side effects can perform them once per transaction.
type ReadHookFunc func()

// WriteHookFunc delivers a committed write. value holds bus-width words,
// least significant word first, with the last word masked to the register
// width.
type WriteHookFunc func(value []uint64)

// Element is the peripheral-side interface of one register attached to a
// Multiplexer. The register's backing storage stays with the peripheral;
// the element only carries the access mode, the width, and the callbacks
// the multiplexer uses to sample and update it.
type Element struct {
	width  uint
	access Access

	readValue ReadValueFunc
	onRead    ReadHookFunc
	onWrite   WriteHookFunc

	owner *Multiplexer
	rng   memmap.Range
}

// NewElement returns a register element of the given width and access
// mode. A zero width is legal and describes a register with no data bits,
// useful for pure-strobe registers.
func NewElement(width uint, access Access) (*Element, error) {
	if !access.Readable() && !access.Writable() {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("%v is not a valid access mode", access))
	}
	return &Element{width: width, access: access}, nil
}

// Width returns the register width in bits.
func (e *Element) Width() uint { return e.width }

// Access returns the register access mode.
func (e *Element) Access() Access { return e.access }

// Range returns the address range assigned to the element by the
// multiplexer it was added to. The zero Range is returned before that.
func (e *Element) Range() memmap.Range { return e.rng }

// SetReadValue installs the function sampled for the register value when
// a read strobe fires. Without one the register reads as zero.
func (e *Element) SetReadValue(fn ReadValueFunc) { e.readValue = fn }

// SetReadHook installs the read side effect callback.
func (e *Element) SetReadHook(fn ReadHookFunc) { e.onRead = fn }

// SetWriteHook installs the committed-write callback.
func (e *Element) SetWriteHook(fn WriteHookFunc) { e.onWrite = fn }
