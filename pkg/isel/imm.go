package isel

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
)

// SelectCopyImm loads v into dst for a destination of bits width (8, 16,
// 32 or 64). Sub-word destinations are extended according to signed and
// then built like a 32-bit value.
func (l *Legalizer) SelectCopyImm(dst *asm.Register, v int64, bits uint8, signed bool, at *InsertPoint) {
	switch bits {
	case 8:
		v = extendImm(v, 8, signed)
		bits = 32
	case 16:
		v = extendImm(v, 16, signed)
		bits = 32
	case 32, 64:
	default:
		ice.Fatalf("cannot materialize a %d-bit immediate", bits)
	}
	if bits == 32 {
		l.copyImm(dst, uint64(uint32(v)), 32, at)
		return
	}
	u := uint64(v)
	lo, hi := uint32(u), uint32(u>>32)
	if lo == hi && !asm.IsSingleInstructionMovable(u, 64) &&
		1+moveWideCost(uint64(lo), 32) < moveWideCost(u, 64) {
		w := l.pool.View(dst, 32)
		l.copyImm(w, uint64(lo), 32, at)
		l.emitAt(at, asm.MOPorrrrrs, dst, dst, dst, l.pool.Shift(asm.ShiftLSL, 32))
		return
	}
	l.copyImm(dst, u, 64, at)
}

// extendImm truncates v to bits and extends it back.
func extendImm(v int64, bits uint, signed bool) int64 {
	sh := 64 - bits
	if signed {
		return v << sh >> sh
	}
	return int64(uint64(v) << sh >> sh)
}

// chunks splits v into 16-bit pieces, low first.
func chunks(v uint64, bits int) []uint64 {
	n := bits / 16
	out := make([]uint64, n)
	for i := range out {
		out[i] = v >> (16 * uint(i)) & 0xffff
	}
	return out
}

// useMovn reports whether building v from an inverted seed needs fewer
// MOVKs: more chunks are all ones than all zeros.
func useMovn(v uint64, bits int) bool {
	zeros, ones := 0, 0
	for _, c := range chunks(v, bits) {
		switch c {
		case 0:
			zeros++
		case 0xffff:
			ones++
		}
	}
	return ones > zeros
}

// moveWideCost is the number of MOVZ/MOVN/MOVK instructions for v, or 1
// when a single instruction loads it.
func moveWideCost(v uint64, bits int) int {
	if asm.IsSingleInstructionMovable(v, bits) {
		return 1
	}
	skip := uint64(0)
	if useMovn(v, bits) {
		skip = 0xffff
	}
	n := 0
	for _, c := range chunks(v, bits) {
		if c != skip {
			n++
		}
	}
	return n
}

func (l *Legalizer) copyImm(dst *asm.Register, v uint64, bits int, at *InsertPoint) {
	size := uint8(bits)
	if sh, ok := asm.MoveWideShift(v, bits); ok {
		l.moveWide(at, asm.MOPmovz, dst, v>>sh&0xffff, sh)
		return
	}
	inv := ^v
	if bits == 32 {
		inv = uint64(^uint32(v))
	}
	if sh, ok := asm.MoveWideShift(inv, bits); ok {
		l.moveWide(at, asm.MOPmovn, dst, inv>>sh&0xffff, sh)
		return
	}
	if asm.IsBitmaskImmediate(v, bits) {
		l.emitAt(at, asm.MOPorrrri, dst, l.pool.ZeroReg(size), l.pool.NewImm(int64(v), size, false))
		return
	}
	skip := uint64(0)
	seed := asm.MOPmovz
	if useMovn(v, bits) {
		skip, seed = 0xffff, asm.MOPmovn
	}
	first := true
	for i, c := range chunks(v, bits) {
		if c == skip {
			continue
		}
		sh := uint8(16 * i)
		if first {
			if seed == asm.MOPmovn {
				l.moveWide(at, seed, dst, ^c&0xffff, sh)
			} else {
				l.moveWide(at, seed, dst, c, sh)
			}
			first = false
			continue
		}
		l.moveWide(at, asm.MOPmovk, dst, c, sh)
	}
}

func (l *Legalizer) moveWide(at *InsertPoint, op asm.Mop, dst *asm.Register, chunk uint64, sh uint8) {
	l.emitAt(at, op, dst, l.pool.NewImm(int64(chunk), dst.Size, false), l.pool.Shift(asm.ShiftLSL, sh))
}
