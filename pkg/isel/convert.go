package isel

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// Float to integer opcodes by rounding kind, unsigned then signed.
var fcvtOps = map[ir.CvtKind][2]asm.Mop{
	ir.Cvt:   {asm.MOPfcvtzu, asm.MOPfcvtzs},
	ir.Trunc: {asm.MOPfcvtzu, asm.MOPfcvtzs},
	ir.Round: {asm.MOPfcvtau, asm.MOPfcvtas},
	ir.Floor: {asm.MOPfcvtmu, asm.MOPfcvtms},
	ir.Ceil:  {asm.MOPfcvtpu, asm.MOPfcvtps},
}

func (s *funcSelector) selectConvert(dst *asm.Register, e ir.Convert) {
	from, to := s.lower(e.From), s.lower(e.Ty)
	switch {
	case from.IsFloat() && to.IsFloat():
		if e.Kind != ir.Cvt {
			ice.Fatalf("%s: rounding conversion %s to %s", s.src.Name, from, to)
		}
		x := s.reg(e.X)
		if from.Bits() == to.Bits() {
			s.move(dst, x)
			return
		}
		s.emit(asm.MOPfcvt, dst, x)
	case from.IsInteger() && to.IsFloat():
		op := asm.MOPucvtf
		if from.IsSigned() {
			op = asm.MOPscvtf
		}
		s.emit(op, dst, s.reg(e.X))
	case from.IsFloat() && to.IsInteger():
		ops, ok := fcvtOps[e.Kind]
		if !ok {
			ice.Fatalf("%s: unknown conversion kind %d", s.src.Name, e.Kind)
		}
		s.emit(ops[b2i(to.IsSigned())], dst, s.reg(e.X))
		if b := to.Bits(); b < 32 {
			s.extendTo(dst, dst, uint8(b), to.IsSigned())
		}
	case from.IsInteger() && to.IsInteger():
		// A widened load extends in the load itself.
		if r, ok := e.X.(ir.Iread); ok && to.Bits() > from.Bits() && s.lower(r.Ty) == from {
			s.selectIread(dst, ir.Iread{Ty: from, TypeIdx: r.TypeIdx, Field: r.Field, Addr: r.Addr, Offset: r.Offset})
			return
		}
		s.intCast(dst, s.reg(e.X), from, to)
	default:
		ice.Fatalf("%s: cannot convert %s to %s", s.src.Name, from, to)
	}
}

// intCast converts between integer types. Sub-word values are held
// extended to 32 bits by their own signedness, so only a change of width
// into 64 bits or a change of sub-word interpretation needs code beyond a
// move.
func (s *funcSelector) intCast(dst, x *asm.Register, from, to ir.PrimType) {
	fb, tb := from.Bits(), to.Bits()
	if dst.Size == 64 && x.Size == 32 && from.IsSigned() {
		s.emit(asm.MOPsxtw, dst, x)
	} else {
		s.move(dst, x)
	}
	if tb < 32 && (tb < fb || from.IsSigned() != to.IsSigned()) {
		s.extendTo(dst, dst, uint8(tb), to.IsSigned())
	}
}
