package isel

import (
	"math"

	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// cmpOp sets the flags from x - y. Integer immediates use the 12-bit,
// shifted 12-bit or negated (CMN) encodings before falling back to a
// register.
func (s *funcSelector) cmpOp(x *asm.Register, y asm.Operand, ty ir.PrimType) {
	flags := s.pool.Flags()
	if x.IsFloat() {
		s.emit(asm.MOPfcmp, flags, x, s.toReg(y, ty))
		return
	}
	c, ok := y.(*asm.Immediate)
	if !ok {
		s.emit(asm.MOPcmprr, flags, x, y)
		return
	}
	v := narrowConst(c.Value, x.Size)
	switch {
	case asm.IsImm12(v):
		s.emit(asm.MOPcmpri, flags, x, s.pool.NewImm(v, x.Size, false))
	case asm.IsShiftedImm12(v):
		s.emit(asm.MOPcmpri24, flags, x, s.pool.NewImm(v>>12, x.Size, false), s.pool.Shift(asm.ShiftLSL, 12))
	case v < 0 && v != math.MinInt64 && asm.IsImm12(-v):
		s.emit(asm.MOPcmnri, flags, x, s.pool.NewImm(-v, x.Size, false))
	default:
		r := s.newInt(x.Size)
		s.SelectCopyImm(r, v, x.Size, true, s.at())
		s.emit(asm.MOPcmprr, flags, x, r)
	}
}

// condFor returns the condition that holds after cmp x, y when x op y.
// Float conditions are chosen so that inverting them is true for
// unordered operands.
func condFor(op ir.CmpOp, ty ir.PrimType) asm.Cond {
	switch op {
	case ir.Eq:
		return asm.CondEQ
	case ir.Ne:
		return asm.CondNE
	}
	var lt, le, gt, ge asm.Cond
	switch {
	case ty.IsFloat():
		lt, le, gt, ge = asm.CondMI, asm.CondLS, asm.CondGT, asm.CondGE
	case ty.IsSigned():
		lt, le, gt, ge = asm.CondLT, asm.CondLE, asm.CondGT, asm.CondGE
	default:
		lt, le, gt, ge = asm.CondLO, asm.CondLS, asm.CondHI, asm.CondHS
	}
	switch op {
	case ir.Lt:
		return lt
	case ir.Le:
		return le
	case ir.Gt:
		return gt
	case ir.Ge:
		return ge
	}
	ice.Fatalf("no condition code for comparison %d", op)
	return asm.CondAL
}

// canonCompare moves a constant operand to the right.
func canonCompare(e ir.Compare) ir.Compare {
	if e.Op == ir.Cmp3way {
		return e
	}
	_, xc := e.X.(ir.ConstVal)
	_, yc := e.Y.(ir.ConstVal)
	if xc && !yc {
		e.X, e.Y = e.Y, e.X
		e.Op = e.Op.Swapped()
	}
	return e
}

// compareFlags evaluates both operands of e and sets the flags. A float
// compare against +0.0 uses the zero form.
func (s *funcSelector) compareFlags(e ir.Compare) {
	ty := s.lower(e.OpndTy)
	if ty.IsFloat() {
		x := s.reg(e.X)
		if f, ok := e.Y.(ir.FloatConst); ok && f.Value == 0 && !math.Signbit(f.Value) {
			s.emit(asm.MOPfcmpz, s.pool.Flags(), x)
			return
		}
		s.emit(asm.MOPfcmp, s.pool.Flags(), x, s.reg(e.Y))
		return
	}
	x := s.reg(e.X)
	s.cmpOp(x, s.opnd(e.Y), ty)
}

func (s *funcSelector) selectCompare(dst *asm.Register, e ir.Compare) {
	e = canonCompare(e)
	ty := s.lower(e.OpndTy)
	s.compareFlags(e)
	if e.Op != ir.Cmp3way {
		s.emit(asm.MOPcset, dst, s.pool.Cond(condFor(e.Op, ty)))
		return
	}
	// -1, 0 or 1 without a branch:
	//	csinv dst, zr, zr, ge	(0 if x >= y, else -1)
	//	csinc dst, dst, zr, le	(keep if x <= y, else 1)
	zr := s.pool.ZeroReg(dst.Size)
	ge, le := asm.CondGE, asm.CondLE
	switch {
	case ty.IsFloat():
		le = asm.CondLS
	case !ty.IsSigned():
		ge, le = asm.CondHS, asm.CondLS
	}
	s.emit(asm.MOPcsinv, dst, zr, zr, s.pool.Cond(ge))
	s.emit(asm.MOPcsinc, dst, dst, zr, s.pool.Cond(le))
}

// condFlags sets the flags for a boolean value and returns the condition
// that holds when it is nonzero.
func (s *funcSelector) condFlags(e ir.Expr) asm.Cond {
	if c, ok := e.(ir.Compare); ok && c.Op != ir.Cmp3way {
		c = canonCompare(c)
		s.compareFlags(c)
		return condFor(c.Op, s.lower(c.OpndTy))
	}
	r := s.reg(e)
	if r.IsFloat() {
		s.emit(asm.MOPfcmpz, s.pool.Flags(), r)
	} else {
		s.cmpOp(r, s.pool.NewImm(0, r.Size, false), e.Type())
	}
	return asm.CondNE
}

func (s *funcSelector) selectSelect(dst *asm.Register, e ir.Select) {
	ty := s.lower(e.Ty)
	x := s.toReg(s.opnd(e.X), ty)
	y := s.toReg(s.opnd(e.Y), ty)
	c := s.condFlags(e.Cond)
	mop := asm.MOPcsel
	if ty.IsFloat() {
		mop = asm.MOPfcsel
	}
	s.emit(mop, dst, x, y, s.pool.Cond(c))
}
