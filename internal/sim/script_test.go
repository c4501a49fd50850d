package sim

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regfabric/common"
)

func TestParseScript(t *testing.T) {
	cmds, err := ParseScript(strings.NewReader(`
# exercise every command form
read 0x20
write 0x21 0xab
write 1 0x44332211 0b0110
idle
idle 3
expect 0x12
check dma/src 0xabcd
set ctrl/id 0xffffffff
reset
`))
	require.NoError(t, err)
	require.Len(t, cmds, 9)

	assert.Equal(t, Command{Line: 3, Op: OpRead, Addr: 0x20}, cmds[0])
	assert.Equal(t, Command{Line: 4, Op: OpWrite, Addr: 0x21, Data: 0xab}, cmds[1])
	assert.Equal(t, Command{Line: 5, Op: OpWrite, Addr: 1, Data: 0x44332211, Sel: 0b0110, HasSel: true}, cmds[2])
	assert.Equal(t, Command{Line: 6, Op: OpIdle, Count: 1}, cmds[3])
	assert.Equal(t, Command{Line: 7, Op: OpIdle, Count: 3}, cmds[4])
	assert.Equal(t, Command{Line: 8, Op: OpExpect, Data: 0x12}, cmds[5])
	assert.Equal(t, Command{Line: 9, Op: OpCheck, Path: "dma/src", Data: 0xabcd}, cmds[6])
	assert.Equal(t, Command{Line: 10, Op: OpSet, Path: "ctrl/id", Data: 0xffffffff}, cmds[7])
	assert.Equal(t, Command{Line: 11, Op: OpReset}, cmds[8])
}

func TestParseScriptTrailingComment(t *testing.T) {
	cmds, err := ParseScript(strings.NewReader("read 0x4 # sample scratch\n"))
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, uint64(0x4), cmds[0].Addr)
}

func TestParseScriptErrors(t *testing.T) {
	cases := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown", "poke 0x0", `line 1: unknown command "poke"`},
		{"read arity", "read", "line 1: read takes an address"},
		{"write arity", "idle\nwrite 0x0", "line 2: write takes an address"},
		{"bad number", "read 0xzz", `line 1: bad address "0xzz"`},
		{"idle arity", "idle 1 2", "line 1: idle takes an optional cycle count"},
		{"expect arity", "expect", "line 1: expect takes a value"},
		{"check arity", "check dma/src", "line 1: check takes a register path and a value"},
		{"reset arity", "reset now", "line 1: reset takes no arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScript(strings.NewReader(tc.script))
			require.Error(t, err)
			var cerr *common.Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, common.ErrScript, cerr.Code)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
