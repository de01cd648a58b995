// Package callconv assigns call arguments and return values to registers
// and stack slots for the supported AArch64 calling conventions.
package callconv

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// CCLocInfo is where one argument or return value lives. When RegCount is
// zero the value is in memory at MemOffset (relative to the outgoing
// argument area for arguments).
type CCLocInfo struct {
	Reg0, Reg1   asm.RegNum
	PrimType0    ir.PrimType
	PrimType1    ir.PrimType
	RegCount     int
	MemOffset    int64
	MemSize      int64
	Indirect     bool // returned through the hidden result pointer in x8
	ByHiddenCopy bool // aggregate passed as the address of a caller copy
}

// InRegs reports whether the value is passed in registers.
func (l CCLocInfo) InRegs() bool { return l.RegCount > 0 }

// Locator assigns locations in declaration order. A Locator is used for one
// call site or one function entry and then discarded.
type Locator interface {
	// LocateNextParm returns the location of the next argument. aggSize is
	// the byte size for Agg arguments and ignored otherwise.
	LocateNextParm(ty ir.PrimType, aggSize int64) CCLocInfo
	// LocateRetVal returns the location of the return value.
	LocateRetVal(ty ir.PrimType, aggSize int64) CCLocInfo
	// StackSize returns the stack argument area used so far, 16-byte aligned.
	StackSize() int64
	// DeferLeafArgs reports whether leaf arguments are staged after the
	// others are evaluated.
	DeferLeafArgs() bool
}

const slotSize = 8

// MaxRegAggSize is the largest aggregate passed in registers; larger ones go
// by hidden copy.
const MaxRegAggSize = 16

// New returns the locator for a calling convention.
func New(conv ir.CallConv, bigEndian bool) Locator {
	switch conv {
	case ir.CCDefault:
		return &AAPCS64{bigEndian: bigEndian}
	case ir.CCWebKitJS:
		return &WebKitJS{}
	case ir.CCGHC:
		return &GHC{}
	}
	ice.Fatalf("unknown calling convention %d", conv)
	return nil
}

func alignUp(n, a int64) int64 { return (n + a - 1) &^ (a - 1) }

// stackSlot assigns the next 8-byte slot. Big-endian targets place a narrow
// value at the high-address end of its slot.
func stackSlot(next *int64, size int64, bigEndian bool) CCLocInfo {
	if size < 1 {
		size = slotSize
	}
	n := alignUp(size, slotSize) / slotSize
	ofs := *next
	*next += n * slotSize
	if bigEndian && size < slotSize {
		ofs += slotSize - size
	}
	return CCLocInfo{MemOffset: ofs, MemSize: size}
}

func scalarSize(ty ir.PrimType) int64 {
	if b := ty.Bits(); b > 0 {
		return int64(b / 8)
	}
	return slotSize
}

// AAPCS64 is the standard procedure call standard: x0-x7 and v0-v7, then
// 8-byte stack slots; aggregates up to 16 bytes in up to two registers,
// larger ones by hidden copy.
type AAPCS64 struct {
	nextGP, nextFP int
	nextStack      int64
	bigEndian      bool
}

func (c *AAPCS64) LocateNextParm(ty ir.PrimType, aggSize int64) CCLocInfo {
	switch {
	case ty == ir.Agg && aggSize > MaxRegAggSize:
		loc := c.LocateNextParm(ir.A64, 0)
		loc.ByHiddenCopy = true
		return loc
	case ty == ir.Agg:
		need := int(alignUp(aggSize, slotSize) / slotSize)
		if c.nextGP+need <= 8 {
			loc := CCLocInfo{Reg0: asm.R0 + asm.RegNum(c.nextGP), PrimType0: ir.I64, RegCount: need}
			if need == 2 {
				loc.Reg1 = loc.Reg0 + 1
				loc.PrimType1 = ir.I64
			}
			c.nextGP += need
			return loc
		}
		// An aggregate that does not fit closes the GP registers.
		c.nextGP = 8
		return stackSlot(&c.nextStack, aggSize, false)
	case ty.IsFloat():
		if c.nextFP < 8 {
			r := asm.V0 + asm.RegNum(c.nextFP)
			c.nextFP++
			return CCLocInfo{Reg0: r, PrimType0: ty, RegCount: 1}
		}
	case ty.IsInteger():
		if c.nextGP < 8 {
			r := asm.R0 + asm.RegNum(c.nextGP)
			c.nextGP++
			return CCLocInfo{Reg0: r, PrimType0: ty, RegCount: 1}
		}
	default:
		ice.Fatalf("cannot pass argument of type %s", ty)
	}
	return stackSlot(&c.nextStack, scalarSize(ty), c.bigEndian)
}

func (c *AAPCS64) LocateRetVal(ty ir.PrimType, aggSize int64) CCLocInfo {
	switch {
	case ty == ir.Void:
		return CCLocInfo{}
	case ty == ir.Agg && aggSize > MaxRegAggSize:
		return CCLocInfo{Reg0: asm.R8, PrimType0: ir.A64, Indirect: true}
	case ty == ir.Agg:
		loc := CCLocInfo{Reg0: asm.R0, PrimType0: ir.I64, RegCount: 1}
		if aggSize > slotSize {
			loc.Reg1 = asm.R0 + 1
			loc.PrimType1 = ir.I64
			loc.RegCount = 2
		}
		return loc
	case ty.IsFloat():
		return CCLocInfo{Reg0: asm.V0, PrimType0: ty, RegCount: 1}
	}
	return CCLocInfo{Reg0: asm.R0, PrimType0: ty, RegCount: 1}
}

func (c *AAPCS64) StackSize() int64 { return alignUp(c.nextStack, 16) }

func (c *AAPCS64) DeferLeafArgs() bool { return true }

// WebKitJS passes every argument in an 8-byte stack slot and returns in x0
// or v0.
type WebKitJS struct {
	nextStack int64
}

func (c *WebKitJS) LocateNextParm(ty ir.PrimType, aggSize int64) CCLocInfo {
	if ty == ir.Agg {
		ice.Fatalf("webkit_js convention cannot pass aggregates")
	}
	return stackSlot(&c.nextStack, slotSize, false)
}

func (c *WebKitJS) LocateRetVal(ty ir.PrimType, aggSize int64) CCLocInfo {
	if ty == ir.Void {
		return CCLocInfo{}
	}
	if ty.IsFloat() {
		return CCLocInfo{Reg0: asm.V0, PrimType0: ty, RegCount: 1}
	}
	return CCLocInfo{Reg0: asm.R0, PrimType0: ty, RegCount: 1}
}

func (c *WebKitJS) StackSize() int64 { return alignUp(c.nextStack, 16) }

func (c *WebKitJS) DeferLeafArgs() bool { return false }

// GHC maps the STG machine registers onto callee-saved registers: x19-x28
// for integers and d8-d15 for floats. There are no stack arguments.
type GHC struct {
	nextGP, nextFP int
}

var ghcGP = [...]asm.RegNum{19, 20, 21, 22, 23, 24, 25, 26, 27, 28}

func (c *GHC) LocateNextParm(ty ir.PrimType, aggSize int64) CCLocInfo {
	switch {
	case ty.IsFloat():
		if c.nextFP < 8 {
			r := asm.V8 + asm.RegNum(c.nextFP)
			c.nextFP++
			return CCLocInfo{Reg0: r, PrimType0: ty, RegCount: 1}
		}
	case ty.IsInteger():
		if c.nextGP < len(ghcGP) {
			r := ghcGP[c.nextGP]
			c.nextGP++
			return CCLocInfo{Reg0: r, PrimType0: ty, RegCount: 1}
		}
	}
	ice.Fatalf("ghc convention has no location for argument of type %s", ty)
	return CCLocInfo{}
}

func (c *GHC) LocateRetVal(ty ir.PrimType, aggSize int64) CCLocInfo {
	if ty == ir.Void {
		return CCLocInfo{}
	}
	if ty.IsFloat() {
		return CCLocInfo{Reg0: asm.V8, PrimType0: ty, RegCount: 1}
	}
	return CCLocInfo{Reg0: ghcGP[0], PrimType0: ty, RegCount: 1}
}

func (c *GHC) StackSize() int64 { return 0 }

func (c *GHC) DeferLeafArgs() bool { return false }
