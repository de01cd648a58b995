package asm

import "testing"

func TestPhysRegInterning(t *testing.T) {
	pool := NewPool()
	a := pool.PhysReg(3, 64)
	b := pool.PhysReg(3, 64)
	if a != b {
		t.Error("expected identical instance for equal physical registers")
	}
	// 8- and 16-bit requests normalize to the 32-bit class
	if pool.PhysReg(3, 8) != pool.PhysReg(3, 32) {
		t.Error("expected sub-word widths to share the 32-bit register")
	}
	if pool.PhysReg(3, 32) == a {
		t.Error("32- and 64-bit views must differ")
	}
	if pool.PhysReg(V0+1, 128).Class != ClassFloat {
		t.Error("expected float class for v1")
	}
	if r := pool.PhysReg(ArgP, 64); r.Class != ClassVary || !r.IsInt() {
		t.Errorf("argp class = %d, want a frame-size dependent integer", r.Class)
	}
}

func TestVirtualRegistersAreFresh(t *testing.T) {
	pool := NewPool()
	r1 := pool.NewVReg(32, ClassInt)
	r2 := pool.NewVReg(32, ClassInt)
	if r1 == r2 || r1.Num == r2.Num {
		t.Error("expected distinct virtual registers")
	}
	if r1.Num != FirstVirtual {
		t.Errorf("first vreg = %d, want %d", r1.Num, FirstVirtual)
	}
	if got, ok := pool.VReg(r2.Num); !ok || got != r2 {
		t.Error("VReg lookup failed")
	}
	if pool.NumVRegs() != 2 {
		t.Errorf("NumVRegs = %d, want 2", pool.NumVRegs())
	}
}

func TestMemOpndInterning(t *testing.T) {
	pool := NewPool()
	base := pool.PhysReg(FP, 64)
	idx := pool.NewVReg(32, ClassInt)

	m1 := pool.CreateMemOpnd(base, 24, 64, true)
	m2 := pool.CreateMemOpnd(base, 24, 64, true)
	if m1 != m2 {
		t.Error("expected identical instance for structurally equal references")
	}
	if pool.CreateMemOpnd(base, 24, 64, false) == m1 {
		t.Error("vary flag must be part of the key")
	}
	if pool.CreateMemOpnd(base, 24, 32, true) == m1 {
		t.Error("access size must be part of the key")
	}

	// Separately built operands with equal content still intern together.
	i1 := pool.GetOrCreateMemOpnd(MemoryRef{Mode: AddrBaseIndex, Base: base, Index: idx, Extend: &ExtendShift{ExtSXTW, 2}, Size: 32})
	i2 := pool.GetOrCreateMemOpnd(MemoryRef{Mode: AddrBaseIndex, Base: base, Index: idx, Extend: &ExtendShift{ExtSXTW, 2}, Size: 32})
	if i1 != i2 {
		t.Error("expected index references to intern")
	}
	i3 := pool.GetOrCreateMemOpnd(MemoryRef{Mode: AddrBaseIndex, Base: base, Index: idx, Extend: &ExtendShift{ExtUXTW, 2}, Size: 32})
	if i3 == i1 {
		t.Error("extend kind must be part of the key")
	}
}

func TestOffsetAndPlainImmediates(t *testing.T) {
	pool := NewPool()
	if pool.GetOrCreateOfstOpnd(16, 64, false) != pool.GetOrCreateOfstOpnd(16, 64, false) {
		t.Error("expected offset immediates to be shared")
	}
	if pool.NewImm(16, 64, false) == pool.NewImm(16, 64, false) {
		t.Error("plain immediates must be fresh")
	}
	if !pool.NewImm(0xffff0000, 64, false).Movable {
		t.Error("0xffff0000 should be single-instruction movable")
	}
	if pool.NewImm(0x12345678, 32, false).Movable {
		t.Error("0x12345678 should not be single-instruction movable")
	}
}

func TestDescriptorOperandsShared(t *testing.T) {
	pool := NewPool()
	if pool.Label(".L1") != pool.Label(".L1") {
		t.Error("labels should intern")
	}
	if pool.Cond(CondEQ) != pool.Cond(CondEQ) {
		t.Error("conditions should intern")
	}
	if pool.Shift(ShiftLSL, 12) != pool.Shift(ShiftLSL, 12) {
		t.Error("shifts should intern")
	}
	if CondGE.Invert() != CondLT || CondHS.Invert() != CondLO || CondNE.Invert() != CondEQ {
		t.Error("condition inversion mismatch")
	}
}
