package isel

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

func divOp(ty ir.PrimType) asm.Mop {
	if ty.IsSigned() {
		return asm.MOPsdiv
	}
	return asm.MOPudiv
}

// unsignedConst is the constant operand of an unsigned operation of the
// given width.
func unsignedConst(c *asm.Immediate, size uint8) uint64 {
	if size == 32 {
		return uint64(uint32(c.Value))
	}
	return uint64(c.Value)
}

func (s *funcSelector) selectDiv(dst, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	if c, ok := y.(*asm.Immediate); ok {
		if ty.IsSigned() && s.signedDivConst(dst, x, narrowConst(c.Value, dst.Size)) {
			return
		}
		if !ty.IsSigned() && s.unsignedDivConst(dst, x, unsignedConst(c, dst.Size), ty) {
			return
		}
	}
	s.emit(divOp(ty), dst, x, s.toReg(y, ty))
}

// signedDivConst divides by ±1 and ±2^k without SDIV. The dividend is
// biased by 2^k-1 when negative so that the arithmetic shift truncates
// toward zero.
func (s *funcSelector) signedDivConst(dst, x *asm.Register, v int64) bool {
	size := dst.Size
	switch v {
	case 1:
		s.move(dst, x)
		return true
	case -1:
		s.emit(asm.MOPneg, dst, x)
		return true
	}
	neg := v < 0
	abs := uint64(v)
	if neg {
		abs = -abs
	}
	if v == 0 || !isPow2(abs) {
		return false
	}
	k := log2(abs)
	biased := s.newInt(size)
	if k == 1 {
		s.emit(asm.MOPaddrrrs, biased, x, x, s.pool.Shift(asm.ShiftLSR, size-1))
	} else {
		sign := s.newInt(size)
		s.emit(asm.MOPasrrri, sign, x, s.pool.NewImm(int64(size-1), size, false))
		s.emit(asm.MOPaddrrrs, biased, x, sign, s.pool.Shift(asm.ShiftLSR, size-k))
	}
	q := dst
	if neg {
		q = s.newInt(size)
	}
	s.emit(asm.MOPasrrri, q, biased, s.pool.NewImm(int64(k), size, false))
	if neg {
		s.emit(asm.MOPneg, dst, q)
	}
	return true
}

func (s *funcSelector) unsignedDivConst(dst, x *asm.Register, u uint64, ty ir.PrimType) bool {
	size := dst.Size
	switch {
	case u == 0:
		return false
	case u == 1:
		s.move(dst, x)
	case isPow2(u):
		s.emit(asm.MOPlsrrri, dst, x, s.pool.NewImm(int64(log2(u)), size, false))
	case u >= 1<<(size-1):
		// The quotient is 0 or 1.
		s.cmpOp(x, s.pool.NewImm(int64(u), size, false), ty)
		s.emit(asm.MOPcset, dst, s.pool.Cond(asm.CondHS))
	default:
		return false
	}
	return true
}

func (s *funcSelector) selectRem(dst, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	if c, ok := y.(*asm.Immediate); ok {
		if ty.IsSigned() && s.signedRemConst(dst, x, narrowConst(c.Value, dst.Size)) {
			return
		}
		if !ty.IsSigned() && s.unsignedRemConst(dst, x, unsignedConst(c, dst.Size), ty) {
			return
		}
	}
	yr := s.toReg(y, ty)
	q := s.newInt(dst.Size)
	s.emit(divOp(ty), q, x, yr)
	s.emit(asm.MOPmsub, dst, q, yr, x)
}

// signedRemConst computes x % ±2^k with the sign of the dividend:
//
//	negs t, x
//	and  r, x, #m
//	and  t, t, #m
//	csneg r, r, t, mi
func (s *funcSelector) signedRemConst(dst, x *asm.Register, v int64) bool {
	size := dst.Size
	abs := uint64(v)
	if v < 0 {
		abs = -abs
	}
	if v == 0 || !isPow2(abs) {
		return false
	}
	if abs == 1 {
		s.move(dst, s.pool.ZeroReg(size))
		return true
	}
	m := s.pool.NewImm(int64(abs-1), size, false)
	t := s.newInt(size)
	s.emit(asm.MOPnegs, s.pool.Flags(), t, x)
	s.emit(asm.MOPandrri, dst, x, m)
	s.emit(asm.MOPandrri, t, t, m)
	s.emit(asm.MOPcsneg, dst, dst, t, s.pool.Cond(asm.CondMI))
	return true
}

func (s *funcSelector) unsignedRemConst(dst, x *asm.Register, u uint64, ty ir.PrimType) bool {
	size := dst.Size
	switch {
	case u == 0:
		return false
	case u == 1:
		s.move(dst, s.pool.ZeroReg(size))
	case isPow2(u):
		s.emit(asm.MOPandrri, dst, x, s.pool.NewImm(int64(u-1), size, false))
	case u >= 1<<(size-1):
		// x % c is x or x - c.
		c := s.newInt(size)
		s.SelectCopyImm(c, int64(u), size, false, s.at())
		t := s.newInt(size)
		s.emit(asm.MOPcmprr, s.pool.Flags(), x, c)
		s.emit(asm.MOPsubrrr, t, x, c)
		s.emit(asm.MOPcsel, dst, t, x, s.pool.Cond(asm.CondHS))
	default:
		return false
	}
	return true
}
