package csr

import (
	"testing"

	"regfabric/common"
)

func mustBridge(t *testing.T, sub Device, cfg BridgeConfig) *Bridge {
	t.Helper()
	b, err := NewBridge(sub, cfg)
	if err != nil {
		t.Fatalf("NewBridge() failed: %v", err)
	}
	return b
}

func checkAck(t *testing.T, out WBOut, ack bool) {
	t.Helper()
	if out.Ack != ack {
		t.Errorf("Expected ack: %v, got: %v", ack, out.Ack)
	}
}

func checkAckData(t *testing.T, out WBOut, datR uint64) {
	t.Helper()
	if !out.Ack {
		t.Error("Expected ack to be set")
	}
	if out.DatR != datR {
		t.Errorf("Expected read data: %#x, got: %#x", datR, out.DatR)
	}
}

func TestNewBridgeErrors(t *testing.T) {
	_, err := NewBridge(nil, BridgeConfig{})
	wantErrCode(t, err, common.ErrInvalidParamVal, "must not be nil")

	odd := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 7})
	_, err = NewBridge(odd, BridgeConfig{})
	wantErrCode(t, err, common.ErrInvalidParamVal,
		"CSR bus data width must be one of 8, 16, 32, 64, not 7")

	sub := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 8})
	_, err = NewBridge(sub, BridgeConfig{DataWidth: 24})
	wantErrCode(t, err, common.ErrInvalidParamVal,
		"Wishbone bus data width must be one of 8, 16, 32, 64, not 24")

	wide := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 32})
	_, err = NewBridge(wide, BridgeConfig{DataWidth: 16})
	wantErrCode(t, err, common.ErrInvalidParamVal,
		"Wishbone bus data width 16 must be greater than or equal to CSR bus data width 32")
}

func TestBridgeAccessors(t *testing.T) {
	mux := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 8})
	reg := newMockRegister(t, 32, AccessRW, 8)
	mustAddReg(t, mux, reg.elem, "reg")

	bridge := mustBridge(t, mux, BridgeConfig{DataWidth: 32})
	if got := bridge.Ratio(); got != 4 {
		t.Errorf("Expected ratio: 4, got: %d", got)
	}
	if got := bridge.AddrWidth(); got != 8 {
		t.Errorf("Expected address width: 8, got: %d", got)
	}
	if got := bridge.DataWidth(); got != 32 {
		t.Errorf("Expected data width: 32, got: %d", got)
	}

	// The bridge's own map stays in CSR units.
	if got := bridge.Map().AddrWidth(); got != 10 {
		t.Errorf("Expected map address width: 10, got: %d", got)
	}
	if got := bridge.Map().DataWidth(); got != 8 {
		t.Errorf("Expected map data width: 8, got: %d", got)
	}
	if got := resourceStart(t, bridge.Map(), "reg"); got != 0 {
		t.Errorf("Expected reg address: 0, got: %#x", got)
	}
}

func TestBridgeNarrow(t *testing.T) {
	mux := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 8})
	reg1 := newMockRegister(t, 8, AccessRW, 8)
	mustAddReg(t, mux, reg1.elem, "reg1")
	reg2 := newMockRegister(t, 16, AccessRW, 8)
	mustAddReg(t, mux, reg2.elem, "reg2")
	bridge := mustBridge(t, mux, BridgeConfig{})

	// Write the 8-bit register: one CSR access plus the acknowledge.
	in := WBIn{Adr: 0, DatW: 0x55, Sel: 0b1, We: true, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), true)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg1, "reg1", 0, 1)
	if reg1.data != 0x55 {
		t.Errorf("Expected reg1 data: %#x, got: %#x", 0x55, reg1.data)
	}

	// Writing only the first word of the 16-bit register does not
	// commit it.
	in = WBIn{Adr: 1, DatW: 0xaa, Sel: 0b1, We: true, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), true)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg2, "reg2", 0, 0)
	if reg2.data != 0 {
		t.Errorf("Expected reg2 data: 0, got: %#x", reg2.data)
	}

	// The write to the last word commits the earlier word with it.
	in = WBIn{Adr: 2, DatW: 0xbb, Sel: 0b1, We: true, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), true)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg2, "reg2", 0, 1)
	if reg2.data != 0xbbaa {
		t.Errorf("Expected reg2 data: %#x, got: %#x", 0xbbaa, reg2.data)
	}

	// Read back the 8-bit register.
	in = WBIn{Adr: 0, Sel: 0b1, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAckData(t, bridge.Step(in), 0x55)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg1, "reg1", 1, 1)

	// Reading the first word of the 16-bit register snapshots both.
	in = WBIn{Adr: 1, Sel: 0b1, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAckData(t, bridge.Step(in), 0xaa)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg2, "reg2", 1, 1)

	// The second word comes from the snapshot even though the register
	// has changed since.
	reg2.data = 0x3333
	in = WBIn{Adr: 2, Sel: 0b1, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAckData(t, bridge.Step(in), 0xbb)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg2, "reg2", 1, 1)
}

func TestBridgeWide(t *testing.T) {
	mux := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 8})
	reg := newMockRegister(t, 32, AccessRW, 8)
	mustAddReg(t, mux, reg.elem, "reg")
	bridge := mustBridge(t, mux, BridgeConfig{DataWidth: 32})

	// A full-width write takes four CSR accesses plus the acknowledge.
	in := WBIn{Adr: 0, DatW: 0x44332211, Sel: 0b1111, We: true, Cyc: true, Stb: true}
	for i := 0; i < 5; i++ {
		checkAck(t, bridge.Step(in), false)
	}
	checkAck(t, bridge.Step(in), true)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg, "reg", 0, 1)
	if reg.data != 0x44332211 {
		t.Errorf("Expected data: %#x, got: %#x", 0x44332211, reg.data)
	}

	// A partial write skips the last segment, so nothing commits. The
	// transaction still takes the full five cycles.
	in = WBIn{Adr: 0, DatW: 0xaabbccdd, Sel: 0b0110, We: true, Cyc: true, Stb: true}
	for i := 0; i < 5; i++ {
		checkAck(t, bridge.Step(in), false)
	}
	checkAck(t, bridge.Step(in), true)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg, "reg", 0, 1)
	if reg.data != 0x44332211 {
		t.Errorf("Expected data: %#x, got: %#x", 0x44332211, reg.data)
	}

	// A full-width read assembles all four segments.
	in = WBIn{Adr: 0, Sel: 0b1111, Cyc: true, Stb: true}
	for i := 0; i < 5; i++ {
		checkAck(t, bridge.Step(in), false)
	}
	checkAckData(t, bridge.Step(in), 0x44332211)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg, "reg", 1, 1)

	// A partial read skips the first segment, so the register is never
	// snapshotted again: the middle segments are served stale and the
	// deselected ones read zero.
	reg.data = 0xaaaaaaaa
	in = WBIn{Adr: 0, Sel: 0b0110, Cyc: true, Stb: true}
	for i := 0; i < 5; i++ {
		checkAck(t, bridge.Step(in), false)
	}
	checkAckData(t, bridge.Step(in), 0x00332200)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg, "reg", 1, 1)
}

func TestBridgeReset(t *testing.T) {
	mux := mustMux(t, MultiplexerConfig{AddrWidth: 10, DataWidth: 8})
	reg := newMockRegister(t, 8, AccessRW, 8)
	mustAddReg(t, mux, reg.elem, "reg")
	bridge := mustBridge(t, mux, BridgeConfig{})

	// Abort a write mid-transaction. The reset also clears the pending
	// commit in the subordinate.
	bridge.Step(WBIn{Adr: 0, DatW: 0x11, Sel: 0b1, We: true, Cyc: true, Stb: true})
	bridge.Reset()

	in := WBIn{Adr: 0, DatW: 0x99, Sel: 0b1, We: true, Cyc: true, Stb: true}
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), false)
	checkAck(t, bridge.Step(in), true)
	in.Stb = false
	checkAck(t, bridge.Step(in), false)
	checkCounts(t, reg, "reg", 0, 1)
	if reg.data != 0x99 {
		t.Errorf("Expected data: %#x, got: %#x", 0x99, reg.data)
	}
}
