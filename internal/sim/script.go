package sim

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"regfabric/common"
)

// Op identifies one script command.
type Op uint8

const (
	// OpRead strobes a read of an address for one cycle.
	OpRead Op = iota + 1
	// OpWrite strobes a write of an address for one cycle.
	OpWrite
	// OpIdle advances the clock without strobes.
	OpIdle
	// OpExpect checks the data returned for the most recent read.
	OpExpect
	// OpCheck checks the storage behind a register path.
	OpCheck
	// OpSet pokes the storage behind a register path.
	OpSet
	// OpReset returns the bus to its power-on state.
	OpReset
)

// Command is one parsed script line.
type Command struct {
	Line int
	Op   Op
	// Addr is the bus address of read and write.
	Addr uint64
	// Data is the write data, or the value of expect, check and set.
	Data uint64
	// Sel is the per-word select mask of a wide write. Valid only when
	// HasSel is set.
	Sel    uint64
	HasSel bool
	// Count is the number of idle cycles.
	Count uint64
	// Path addresses register storage for check and set.
	Path string
}

func scriptErr(line int, format string, args ...interface{}) error {
	return common.NewErrorMsg(common.ErrSevError, common.ErrScript,
		fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)))
}

// ParseScript reads a bus script: one command per line, '#' starts a
// comment, numbers accept any Go literal base.
//
//	read <addr>
//	write <addr> <data> [sel]
//	idle [n]
//	expect <value>
//	check <path> <value>
//	set <path> <value>
//	reset
func ParseScript(r io.Reader) ([]Command, error) {
	var cmds []Command
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		cmd, err := parseCommand(line, fields[0], fields[1:])
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrScript,
			fmt.Sprintf("cannot read script: %v", err))
	}
	return cmds, nil
}

// ParseScriptFile reads the bus script at path.
func ParseScriptFile(path string) ([]Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewErrorMsg(common.ErrSevError, common.ErrScript,
			fmt.Sprintf("cannot open script: %v", err))
	}
	defer f.Close()
	return ParseScript(f)
}

func parseCommand(line int, op string, args []string) (Command, error) {
	cmd := Command{Line: line}

	num := func(s, what string) (uint64, error) {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, scriptErr(line, "bad %s %q", what, s)
		}
		return v, nil
	}

	var err error
	switch op {
	case "read":
		if len(args) != 1 {
			return cmd, scriptErr(line, "read takes an address")
		}
		cmd.Op = OpRead
		if cmd.Addr, err = num(args[0], "address"); err != nil {
			return cmd, err
		}

	case "write":
		if len(args) != 2 && len(args) != 3 {
			return cmd, scriptErr(line, "write takes an address, data, and an optional select mask")
		}
		cmd.Op = OpWrite
		if cmd.Addr, err = num(args[0], "address"); err != nil {
			return cmd, err
		}
		if cmd.Data, err = num(args[1], "data"); err != nil {
			return cmd, err
		}
		if len(args) == 3 {
			if cmd.Sel, err = num(args[2], "select mask"); err != nil {
				return cmd, err
			}
			cmd.HasSel = true
		}

	case "idle":
		if len(args) > 1 {
			return cmd, scriptErr(line, "idle takes an optional cycle count")
		}
		cmd.Op = OpIdle
		cmd.Count = 1
		if len(args) == 1 {
			if cmd.Count, err = num(args[0], "cycle count"); err != nil {
				return cmd, err
			}
		}

	case "expect":
		if len(args) != 1 {
			return cmd, scriptErr(line, "expect takes a value")
		}
		cmd.Op = OpExpect
		if cmd.Data, err = num(args[0], "value"); err != nil {
			return cmd, err
		}

	case "check", "set":
		if len(args) != 2 {
			return cmd, scriptErr(line, "%s takes a register path and a value", op)
		}
		if op == "check" {
			cmd.Op = OpCheck
		} else {
			cmd.Op = OpSet
		}
		cmd.Path = args[0]
		if cmd.Data, err = num(args[1], "value"); err != nil {
			return cmd, err
		}

	case "reset":
		if len(args) != 0 {
			return cmd, scriptErr(line, "reset takes no arguments")
		}
		cmd.Op = OpReset

	default:
		return cmd, scriptErr(line, "unknown command %q", op)
	}
	return cmd, nil
}
