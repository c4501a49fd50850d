package common

import (
	"fmt"
	"strings"
)

// Err is a library error code.
type Err uint32

const (
	OK Err = iota
	ErrFail
	ErrInvalidParamVal
	ErrFrozen
	ErrRangeOverlap
	ErrOutOfBounds
	ErrNameConflict
	ErrNotFound
	ErrConfig
	ErrScript
	ErrLast
)

// ErrSeverity filters error handling verbosity.
type ErrSeverity uint32

const (
	ErrSevNone ErrSeverity = iota
	ErrSevError
	ErrSevWarn
	ErrSevInfo
)

// BadAddr marks an error that carries no address context.
const BadAddr = ^uint64(0)

// Error represents the library error object. Build-path operations on the
// address space and bus fabric return it for every failure class in Err.
type Error struct {
	Code    Err
	Sev     ErrSeverity
	Addr    uint64
	Message string
}

func NewError(sev ErrSeverity, code Err) *Error {
	return &Error{
		Code: code,
		Sev:  sev,
		Addr: BadAddr,
	}
}

func NewErrorWithAddr(sev ErrSeverity, code Err, addr uint64) *Error {
	return &Error{
		Code: code,
		Sev:  sev,
		Addr: addr,
	}
}

func NewErrorMsg(sev ErrSeverity, code Err, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Addr:    BadAddr,
		Message: msg,
	}
}

func NewErrorWithAddrMsg(sev ErrSeverity, code Err, addr uint64, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Addr:    addr,
		Message: msg,
	}
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	switch e.Sev {
	case ErrSevNone:
		return "LIBRARY INTERNAL ERROR: Invalid Error Object"
	case ErrSevError:
		sb.WriteString("ERROR:")
	case ErrSevWarn:
		sb.WriteString("WARN :")
	case ErrSevInfo:
		sb.WriteString("INFO :")
	default:
		return "LIBRARY INTERNAL ERROR: Invalid Error Object"
	}

	sb.WriteString(fmt.Sprintf("0x%04x ", uint32(e.Code)))

	if desc, ok := errorCodeDesc[e.Code]; ok {
		sb.WriteString(fmt.Sprintf("(%s) [%s]; ", desc.name, desc.msg))
	} else {
		sb.WriteString("(unknown); ")
	}

	if e.Addr != BadAddr {
		sb.WriteString(fmt.Sprintf("Addr=%#x; ", e.Addr))
	}

	sb.WriteString(e.Message)
	return sb.String()
}

// String returns the symbolic RF_ name of the code.
func (c Err) String() string {
	if desc, ok := errorCodeDesc[c]; ok {
		return desc.name
	}
	return fmt.Sprintf("Err(%d)", uint32(c))
}

// Desc returns the one-line description of the code.
func (c Err) Desc() string {
	if desc, ok := errorCodeDesc[c]; ok {
		return desc.msg
	}
	return "Unknown error code."
}

// CodeInfo pairs an error code with its symbolic name and description.
type CodeInfo struct {
	Code Err
	Name string
	Desc string
}

// Codes returns every defined error code in ascending order.
func Codes() []CodeInfo {
	infos := make([]CodeInfo, 0, len(errorCodeDesc))
	for code := OK; code <= ErrLast; code++ {
		if desc, ok := errorCodeDesc[code]; ok {
			infos = append(infos, CodeInfo{Code: code, Name: desc.name, Desc: desc.msg})
		}
	}
	return infos
}

type errDesc struct {
	name string
	msg  string
}

var errorCodeDesc = map[Err]errDesc{
	OK:                 {"RF_OK", "No Error."},
	ErrFail:            {"RF_ERR_FAIL", "General failure."},
	ErrInvalidParamVal: {"RF_ERR_INVALID_PARAM_VAL", "Invalid value parameter passed to component."},
	ErrFrozen:          {"RF_ERR_FROZEN", "Address space is frozen and cannot be modified."},
	ErrRangeOverlap:    {"RF_ERR_RANGE_OVERLAP", "Attempted to assign an overlapping range in the address space."},
	ErrOutOfBounds:     {"RF_ERR_OUT_OF_BOUNDS", "Range exceeds the addressable span of the address space."},
	ErrNameConflict:    {"RF_ERR_NAME_CONFLICT", "Name conflicts with an existing name in the namespace."},
	ErrNotFound:        {"RF_ERR_NOT_FOUND", "Requested resource is not present in the address space."},
	ErrConfig:          {"RF_ERR_CONFIG", "Fabric description is invalid."},
	ErrScript:          {"RF_ERR_SCRIPT", "Bus script is invalid or an expectation failed."},
	ErrLast:            {"RF_ERR_LAST", "No error - error code end marker"},
}
