package isel

import (
	"math"

	"modernc.org/mathutil"

	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// SelectBinary is the result-allocating entry point for a binary node.
// Sub-word integers compute in 32-bit registers; floats keep their width.
func (s *funcSelector) SelectBinary(e ir.Binary) *asm.Register {
	ty := e.Ty.Promoted()
	dst := s.newReg(ty)
	s.binaryInto(dst, e.Op, ty, e.X, e.Y)
	return dst
}

// binaryInto writes x op y to dst.
func (s *funcSelector) binaryInto(dst *asm.Register, op ir.BinOp, ty ir.PrimType, xe, ye ir.Expr) {
	ty = s.lower(ty)
	if ty.IsInteger() && (op == ir.Add || op == ir.Sub) {
		if s.addShifted(dst, op, xe, ye) {
			return
		}
	}
	x, y := s.opnd(xe), s.opnd(ye)
	if _, ok := x.(*asm.Immediate); ok && op.IsCommutative() {
		x, y = y, x
	}
	s.selectBinop(dst, op, ty, x, y)
}

// addShifted folds x + (y << k) and x - (y << k) into one shifted-register
// instruction.
func (s *funcSelector) addShifted(dst *asm.Register, op ir.BinOp, xe, ye ir.Expr) bool {
	sh, ok := ye.(ir.Binary)
	if !ok && op == ir.Add {
		sh, ok = xe.(ir.Binary)
		xe = ye
	}
	if !ok || sh.Op != ir.Shl {
		return false
	}
	k, ok := sh.Y.(ir.ConstVal)
	if !ok || k.Value <= 0 || k.Value >= int64(dst.Size) {
		return false
	}
	x := s.toReg(s.opnd(xe), xe.Type())
	y := s.reg(sh.X)
	mop := asm.MOPaddrrrs
	if op == ir.Sub {
		mop = asm.MOPsubrrrs
	}
	s.emit(mop, dst, x, y, s.pool.Shift(asm.ShiftLSL, uint8(k.Value)))
	return true
}

func (s *funcSelector) selectBinop(dst *asm.Register, op ir.BinOp, ty ir.PrimType, x, y asm.Operand) {
	if ty.IsFloat() {
		s.floatBinop(dst, op, s.toReg(x, ty), s.toReg(y, ty))
		return
	}
	xr := s.toReg(x, ty)
	switch op {
	case ir.Add:
		s.selectAdd(dst, xr, y, ty)
	case ir.Sub:
		s.selectSub(dst, xr, y, ty)
	case ir.Mul:
		s.selectMul(dst, xr, y, ty)
	case ir.Div:
		s.selectDiv(dst, xr, y, ty)
	case ir.Rem:
		s.selectRem(dst, xr, y, ty)
	case ir.Band, ir.Bior, ir.Bxor:
		s.selectLogic(dst, op, xr, y, ty)
	case ir.Shl, ir.Ashr, ir.Lshr:
		s.selectShift(dst, op, xr, y, ty)
	case ir.Min, ir.Max:
		s.selectMinMax(dst, op, xr, y, ty)
	default:
		ice.Fatalf("unsupported binary operator %d on %s", op, ty)
	}
}

func (s *funcSelector) floatBinop(dst *asm.Register, op ir.BinOp, x, y *asm.Register) {
	var mop asm.Mop
	switch op {
	case ir.Add:
		mop = asm.MOPfadd
	case ir.Sub:
		mop = asm.MOPfsub
	case ir.Mul:
		mop = asm.MOPfmul
	case ir.Div:
		mop = asm.MOPfdiv
	case ir.Min:
		mop = asm.MOPfmin
	case ir.Max:
		mop = asm.MOPfmax
	default:
		ice.Fatalf("unsupported float operator %d", op)
	}
	s.emit(mop, dst, x, y)
}

func (s *funcSelector) selectAdd(dst, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	if c, ok := y.(*asm.Immediate); ok {
		s.addImm(dst, x, narrowConst(c.Value, dst.Size), false, s.at())
		return
	}
	s.emit(asm.MOPaddrrr, dst, x, y)
}

func (s *funcSelector) selectSub(dst, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	if c, ok := y.(*asm.Immediate); ok && c.Value != math.MinInt64 {
		s.addImm(dst, x, -narrowConst(c.Value, dst.Size), false, s.at())
		return
	}
	s.emit(asm.MOPsubrrr, dst, x, s.toReg(y, ty))
}

// narrowConst sign-extends a constant of a 32-bit operation.
func narrowConst(v int64, size uint8) int64 {
	if size == 32 {
		return int64(int32(v))
	}
	return v
}

func isPow2(v uint64) bool { return v != 0 && v&(v-1) == 0 }

// log2 of a power of two.
func log2(v uint64) uint8 { return uint8(mathutil.Log2Uint64(v)) }

func (s *funcSelector) selectMul(dst, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	c, ok := y.(*asm.Immediate)
	if !ok {
		s.emit(asm.MOPmul, dst, x, y)
		return
	}
	size := dst.Size
	v := narrowConst(c.Value, size)
	switch v {
	case 0:
		s.move(dst, s.pool.ZeroReg(size))
		return
	case 1:
		s.move(dst, x)
		return
	case -1:
		s.emit(asm.MOPneg, dst, x)
		return
	}
	neg := v < 0
	abs := uint64(v)
	if neg {
		abs = -abs
	}
	b := log2(abs & -abs)
	m := abs >> b
	target := x
	if m != 1 {
		target = dst
		if b > 0 || neg {
			target = s.newInt(size)
		}
	}
	switch {
	case m == 1:
	case isPow2(m - 1):
		// x * (2^a + 1)
		s.emit(asm.MOPaddrrrs, target, x, x, s.pool.Shift(asm.ShiftLSL, log2(m-1)))
	case isPow2(m + 1):
		// x * (2^a - 1)
		t := s.newInt(size)
		s.emit(asm.MOPlslrri, t, x, s.pool.NewImm(int64(log2(m+1)), size, false))
		s.emit(asm.MOPsubrrr, target, t, x)
	default:
		r := s.newInt(size)
		s.SelectCopyImm(r, v, size, true, s.at())
		s.emit(asm.MOPmul, dst, x, r)
		return
	}
	cur := target
	if b > 0 {
		next := dst
		if neg {
			next = s.newInt(size)
		}
		s.emit(asm.MOPlslrri, next, cur, s.pool.NewImm(int64(b), size, false))
		cur = next
	}
	if neg {
		s.emit(asm.MOPneg, dst, cur)
	}
}

func logicOps(op ir.BinOp) (rrr, rri asm.Mop) {
	switch op {
	case ir.Band:
		return asm.MOPandrrr, asm.MOPandrri
	case ir.Bior:
		return asm.MOPorrrrr, asm.MOPorrrri
	}
	return asm.MOPeorrrr, asm.MOPeorrri
}

func (s *funcSelector) selectLogic(dst *asm.Register, op ir.BinOp, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	rrr, rri := logicOps(op)
	c, ok := y.(*asm.Immediate)
	if !ok {
		s.emit(rrr, dst, x, y)
		return
	}
	size := dst.Size
	v := uint64(c.Value)
	ones := uint64(math.MaxUint64)
	if size == 32 {
		v = uint64(uint32(v))
		ones = math.MaxUint32
	}
	switch {
	case v == 0 && op == ir.Band:
		s.move(dst, s.pool.ZeroReg(size))
	case v == 0, v == ones && op == ir.Band:
		s.move(dst, x)
	case v == ones && op == ir.Bxor:
		s.emit(asm.MOPmvn, dst, x)
	case asm.IsBitmaskImmediate(v, int(size)):
		s.emit(rri, dst, x, s.pool.NewImm(int64(v), size, false))
	default:
		r := s.newInt(size)
		s.SelectCopyImm(r, int64(v), size, false, s.at())
		s.emit(rrr, dst, x, r)
	}
}

func (s *funcSelector) selectShift(dst *asm.Register, op ir.BinOp, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	rri, rrr := asm.MOPlslrri, asm.MOPlslrrr
	switch op {
	case ir.Ashr:
		rri, rrr = asm.MOPasrrri, asm.MOPasrrrr
	case ir.Lshr:
		rri, rrr = asm.MOPlsrrri, asm.MOPlsrrrr
	}
	c, ok := y.(*asm.Immediate)
	if !ok {
		amt := y.(*asm.Register)
		if amt.Size != dst.Size {
			amt = s.pool.View(amt, dst.Size)
		}
		s.emit(rrr, dst, x, amt)
		return
	}
	n := c.Value & int64(dst.Size-1)
	if n == 0 {
		s.move(dst, x)
		return
	}
	s.emit(rri, dst, x, s.pool.NewImm(n, dst.Size, false))
}

func (s *funcSelector) selectMinMax(dst *asm.Register, op ir.BinOp, x *asm.Register, y asm.Operand, ty ir.PrimType) {
	yr := s.toReg(y, ty)
	s.cmpOp(x, y, ty)
	var c asm.Cond
	switch {
	case op == ir.Min && ty.IsSigned():
		c = asm.CondLT
	case op == ir.Min:
		c = asm.CondLO
	case ty.IsSigned():
		c = asm.CondGT
	default:
		c = asm.CondHI
	}
	s.emit(asm.MOPcsel, dst, x, yr, s.pool.Cond(c))
}

func (s *funcSelector) selectUnary(dst *asm.Register, e ir.Unary) {
	ty := s.lower(e.Ty.Promoted())
	x := s.reg(e.X)
	if ty.IsFloat() {
		switch e.Op {
		case ir.Neg:
			s.emit(asm.MOPfneg, dst, x)
		case ir.Abs:
			s.emit(asm.MOPfabs, dst, x)
		case ir.Sqrt:
			s.emit(asm.MOPfsqrt, dst, x)
		case ir.Lnot:
			s.emit(asm.MOPfcmpz, s.pool.Flags(), x)
			s.emit(asm.MOPcset, dst, s.pool.Cond(asm.CondEQ))
		default:
			ice.Fatalf("unsupported float unary operator %d", e.Op)
		}
		return
	}
	switch e.Op {
	case ir.Neg:
		s.emit(asm.MOPneg, dst, x)
	case ir.Bnot:
		s.emit(asm.MOPmvn, dst, x)
	case ir.Lnot:
		s.cmpOp(x, s.pool.NewImm(0, x.Size, false), ty)
		s.emit(asm.MOPcset, dst, s.pool.Cond(asm.CondEQ))
	case ir.Abs:
		s.cmpOp(x, s.pool.NewImm(0, x.Size, false), ty)
		s.emit(asm.MOPcsneg, dst, x, x, s.pool.Cond(asm.CondGE))
	default:
		ice.Fatalf("unsupported integer unary operator %d", e.Op)
	}
}

func (s *funcSelector) floatConst(dst *asm.Register, e ir.FloatConst) {
	var bits uint64
	if dst.Size == 32 {
		bits = uint64(math.Float32bits(float32(e.Value)))
	} else {
		bits = math.Float64bits(e.Value)
	}
	if bits == 0 {
		s.move(dst, s.pool.ZeroReg(dst.Size))
		return
	}
	t := s.newInt(dst.Size)
	s.SelectCopyImm(t, int64(bits), dst.Size, false, s.at())
	s.move(dst, t)
}
