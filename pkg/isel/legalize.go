package isel

import (
	"github.com/raymyers/ralph-isel/pkg/abi"
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
)

// InsertPoint says where legalization code goes: before or after Insn in
// BB, or at the end of BB when Insn is nil. Inserting after an instruction
// advances the point so that a sequence keeps its order.
type InsertPoint struct {
	BB     *asm.BB
	Insn   *asm.Insn
	Before bool
}

// AtEnd returns an insert point at the end of b.
func AtEnd(b *asm.BB) *InsertPoint { return &InsertPoint{BB: b} }

// Before returns an insert point in front of i.
func Before(b *asm.BB, i *asm.Insn) *InsertPoint { return &InsertPoint{BB: b, Insn: i, Before: true} }

// After returns an insert point behind i.
func After(b *asm.BB, i *asm.Insn) *InsertPoint { return &InsertPoint{BB: b, Insn: i} }

func (p *InsertPoint) insert(i *asm.Insn) {
	switch {
	case p.Insn == nil:
		p.BB.Append(i)
	case p.Before:
		p.BB.InsertBefore(p.Insn, i)
	default:
		p.BB.InsertAfter(p.Insn, i)
		p.Insn = i
	}
}

// Legalizer rewrites operands that do not fit their encoding. The selector
// uses it while building code; the register allocator calls it again when
// spill code introduces new frame offsets.
type Legalizer struct {
	fn   *asm.Function
	pool *asm.Pool
	opts abi.Options
}

// NewLegalizer returns a legalizer for fn.
func NewLegalizer(fn *asm.Function, opts abi.Options) *Legalizer {
	return &Legalizer{fn: fn, pool: fn.Pool, opts: opts}
}

func (l *Legalizer) emitAt(at *InsertPoint, op asm.Mop, opnds ...asm.Operand) *asm.Insn {
	i := &asm.Insn{Op: op, Opnds: opnds}
	at.insert(i)
	return i
}

// effectiveOffset is the offset to check. A frame-relative offset grows by
// an unknown amount until the frame is resolved, so it is checked against
// the worst case. The frame grows in whole stack-alignment units, which
// keeps the alignment of the offset itself.
func (l *Legalizer) effectiveOffset(ofs *asm.Immediate) int64 {
	if ofs.Vary && !l.fn.FrameResolved {
		return ofs.Value + (l.fn.FrameSize+abi.UnresolvedFrameSlack)&^(stackAlignment-1)
	}
	return ofs.Value
}

// IsImmediateOffsetOutOfRange reports whether the offset of a base+offset
// reference cannot be encoded in an access of bitLen bits.
func (l *Legalizer) IsImmediateOffsetOutOfRange(mem *asm.MemoryRef, bitLen uint8, pair bool) bool {
	if mem.Mode != asm.AddrBaseOffset || mem.Offset == nil {
		return false
	}
	return !asm.MemOffsetInRange(l.effectiveOffset(mem.Offset), bitLen, pair)
}

// IsOperandImmValid is a dry run of the opcode's operand verifier, with
// frame-relative memory offsets checked against their worst case.
func (l *Legalizer) IsOperandImmValid(op asm.Mop, o asm.Operand, idx int) bool {
	if m, ok := o.(*asm.MemoryRef); ok && m.Mode == asm.AddrBaseOffset && m.Offset != nil && m.Offset.Vary {
		if !op.IsOperandImmValid(o, idx) {
			return false
		}
		return !l.IsImmediateOffsetOutOfRange(m, m.Size, op.Is(asm.FlagPair))
	}
	return op.IsOperandImmValid(o, idx)
}

// splitGranule is the distance covered by the residual offset window.
func splitGranule(bitLen uint8, pair bool) int64 {
	if pair {
		return 64 * accessBytes(bitLen)
	}
	return 4096
}

func accessBytes(bitLen uint8) int64 {
	if bitLen < 8 {
		return 1
	}
	return int64(bitLen) / 8
}

// SplitOffsetWithAddInstruction moves the part of an out-of-range offset
// that the access cannot encode into an ADD. It emits baseReg = base +
// addend at the insert point and returns [baseReg, #residual]. When baseReg
// is nil a new virtual register is used. A frame-relative offset keeps its
// vary mark on the addend; the residual is fixed and always in range.
func (l *Legalizer) SplitOffsetWithAddInstruction(mem *asm.MemoryRef, bitLen uint8, pair bool, baseReg *asm.Register, at *InsertPoint) *asm.MemoryRef {
	if mem.Mode != asm.AddrBaseOffset || mem.Offset == nil {
		ice.Fatalf("cannot split offset of %v memory operand", mem.Mode)
	}
	ofs := mem.Offset.Value
	scale := accessBytes(bitLen)
	g := splitGranule(bitLen, pair)
	r := ofs % g
	if r < 0 {
		r += g
	}
	r &^= scale - 1
	addend := ofs - r
	if baseReg == nil {
		class := asm.ClassInt
		if mem.Offset.Vary {
			class = asm.ClassVary
		}
		baseReg = l.pool.NewVReg(64, class)
	}
	l.addImm(baseReg, mem.Base, addend, mem.Offset.Vary, at)
	return l.pool.CreateMemOpnd(baseReg, r, mem.Size, false)
}

// LegalizeMem returns mem unchanged when it encodes, or a split replacement
// with the ADD emitted at the insert point.
func (l *Legalizer) LegalizeMem(mem *asm.MemoryRef, pair bool, at *InsertPoint) *asm.MemoryRef {
	if !l.IsImmediateOffsetOutOfRange(mem, mem.Size, pair) {
		return mem
	}
	return l.SplitOffsetWithAddInstruction(mem, mem.Size, pair, nil, at)
}

// addImm emits dst = src + v with the shortest add or subtract sequence:
// one ADD for 12-bit and shifted 12-bit values, two for 24-bit values, and a
// materialized register otherwise.
func (l *Legalizer) addImm(dst, src *asm.Register, v int64, vary bool, at *InsertPoint) {
	size := dst.Size
	imm := func(x int64) *asm.Immediate {
		if vary {
			return l.pool.GetOrCreateOfstOpnd(x, size, true)
		}
		return l.pool.NewImm(x, size, false)
	}
	lsl12 := l.pool.Shift(asm.ShiftLSL, 12)
	add, add24 := asm.MOPaddrri12, asm.MOPaddrri24
	if v < 0 && v != -v {
		v = -v
		add, add24 = asm.MOPsubrri12, asm.MOPsubrri24
	}
	switch {
	case v == 0 && !vary:
		if dst != src {
			l.emitAt(at, asm.MOPaddrri12, dst, src, imm(0))
		}
	case asm.IsImm12(v):
		l.emitAt(at, add, dst, src, imm(v))
	case asm.IsShiftedImm12(v):
		l.emitAt(at, add24, dst, src, imm(v>>12), lsl12)
	case asm.IsImm24(v):
		l.emitAt(at, add24, dst, src, imm(v>>12), lsl12)
		l.emitAt(at, add, dst, dst, imm(v&0xfff))
	default:
		if add == asm.MOPsubrri12 {
			v = -v
		}
		tmp := l.pool.NewVReg(size, asm.ClassInt)
		l.SelectCopyImm(tmp, v, size, true, at)
		l.emitAt(at, asm.MOPaddrrr, dst, src, tmp)
	}
}
