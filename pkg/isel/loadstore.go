package isel

import (
	"math"

	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// Integer loads by [signed][log2 bytes]. A 4-byte signed load into an X
// register becomes LDRSW in load.
var intLoads = [2][4]asm.Mop{
	{asm.MOPldrb, asm.MOPldrh, asm.MOPldr, asm.MOPldr},
	{asm.MOPldrsb, asm.MOPldrsh, asm.MOPldr, asm.MOPldr},
}

var intStores = [4]asm.Mop{asm.MOPstrb, asm.MOPstrh, asm.MOPstr, asm.MOPstr}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// accessBits is the width of a memory access of type ty. References use
// the configured field width.
func (s *funcSelector) accessBits(ty ir.PrimType) uint8 {
	if ty == ir.Ref {
		return uint8(s.opts.RefWidth.FieldSize() * 8)
	}
	return s.valueBits(ty)
}

// load reads mem into dst. The access width comes from mem, the extension
// from ty.
func (s *funcSelector) load(dst *asm.Register, mem *asm.MemoryRef, ty ir.PrimType) {
	ty = s.lower(ty)
	if ty.IsFloat() {
		s.emit(asm.MOPldr, dst, mem)
		return
	}
	bytes := uint64(mem.Size / 8)
	op := intLoads[b2i(ty.IsSigned())][log2(bytes)]
	d := dst
	switch {
	case bytes == 8:
		d = s.pool.View(dst, 64)
	case bytes == 4 && ty.IsSigned() && dst.Size == 64:
		op = asm.MOPldrsw
	case !ty.IsSigned() || bytes == 4:
		d = s.pool.View(dst, 32)
	}
	s.emit(op, d, mem)
}

// store writes the value of x to mem. Literal zero comes from the zero
// register.
func (s *funcSelector) store(mem *asm.MemoryRef, x ir.Expr, ty ir.PrimType) {
	ty = s.lower(ty)
	var r *asm.Register
	switch c := x.(type) {
	case ir.ConstVal:
		if c.Value == 0 {
			r = s.pool.ZeroReg(64)
		}
	case ir.FloatConst:
		if c.Value == 0 && !math.Signbit(c.Value) {
			r = s.pool.ZeroReg(64)
		}
	}
	if r == nil {
		r = s.reg(x)
	}
	s.storeReg(r, mem, ty.IsFloat() && r.IsFloat())
}

// storeReg stores r with the width of mem.
func (s *funcSelector) storeReg(r *asm.Register, mem *asm.MemoryRef, float bool) {
	if float {
		s.emit(asm.MOPstr, s.pool.View(r, mem.Size), mem)
		return
	}
	bytes := uint64(mem.Size / 8)
	w := uint8(32)
	if bytes == 8 {
		w = 64
	}
	s.emit(intStores[log2(bytes)], s.pool.View(r, w), mem)
}

func (s *funcSelector) selectDread(dst *asm.Register, e ir.Dread) {
	if s.inReg(e.Sym) {
		s.move(dst, s.varReg(e.Sym))
		return
	}
	if s.lower(e.Ty) == ir.Agg {
		ice.Fatalf("%s: aggregate %s read as a value", s.src.Name, e.Sym)
	}
	mem := s.LegalizeMem(s.symMem(e.Sym, 0, s.accessBits(e.Ty)), false, s.at())
	s.load(dst, mem, e.Ty)
}

func (s *funcSelector) selectDassign(st ir.Dassign) {
	ty, typeIdx := s.symType(st.Sym)
	switch {
	case s.inReg(st.Sym):
		r := s.varReg(st.Sym)
		s.into(r, st.X)
		s.normalize(r, ty, st.X)
	case s.lower(ty) == ir.Agg:
		dst := s.newInt(64)
		s.symAddrInto(dst, st.Sym, 0)
		s.copyMem(dst, s.aggAddr(st.X), int64(s.sel.types.Size(typeIdx)))
	default:
		mem := s.LegalizeMem(s.symMem(st.Sym, 0, s.accessBits(ty)), false, s.at())
		s.store(mem, st.X, ty)
	}
}

func (s *funcSelector) selectIread(dst *asm.Register, e ir.Iread) {
	if s.lower(e.Ty) == ir.Agg {
		ice.Fatalf("%s: aggregate load used as a value", s.src.Name)
	}
	mem := s.memOperand(e.Addr, e.Offset+s.fieldOffset(e.TypeIdx, e.Field), s.accessBits(e.Ty))
	s.load(dst, mem, e.Ty)
}

func (s *funcSelector) selectIassign(st ir.Iassign) {
	off := st.Offset + s.fieldOffset(st.TypeIdx, st.Field)
	if s.lower(st.Ty) == ir.Agg {
		dst := s.newInt(64)
		s.addImm(dst, s.addrReg(st.Addr), off, false, s.at())
		s.copyMem(dst, s.aggAddr(st.X), s.fieldSize(st.TypeIdx, st.Field))
		return
	}
	mem := s.memOperand(st.Addr, off, s.accessBits(st.Ty))
	s.store(mem, st.X, st.Ty)
}

// pieceSize is the widest access of at most n bytes.
func pieceSize(n int64) int64 {
	for _, p := range [...]int64{8, 4, 2} {
		if n >= p {
			return p
		}
	}
	return 1
}

// copyMem copies size bytes from src to dst: LDP/STP per 16 bytes, then
// the widest single accesses that fit.
func (s *funcSelector) copyMem(dst, src *asm.Register, size int64) {
	var ofs int64
	for ; size-ofs >= 16; ofs += 16 {
		a, b := s.newInt(64), s.newInt(64)
		s.emit(asm.MOPldp, a, b, s.LegalizeMem(s.pool.CreateMemOpnd(src, ofs, 64, false), true, s.at()))
		s.emit(asm.MOPstp, a, b, s.LegalizeMem(s.pool.CreateMemOpnd(dst, ofs, 64, false), true, s.at()))
	}
	for ofs < size {
		p := pieceSize(size - ofs)
		t := s.newInt(64)
		s.load(t, s.LegalizeMem(s.pool.CreateMemOpnd(src, ofs, uint8(p*8), false), false, s.at()), ir.U64)
		s.storeReg(t, s.LegalizeMem(s.pool.CreateMemOpnd(dst, ofs, uint8(p*8), false), false, s.at()), false)
		ofs += p
	}
}

// loadPiece assembles n bytes (at most 8) at base+ofs in the 64-bit
// register dst, lowest address in the low bits.
func (s *funcSelector) loadPiece(dst, base *asm.Register, ofs, n int64) {
	var done int64
	for done < n {
		p := pieceSize(n - done)
		t := dst
		if done > 0 {
			t = s.newInt(64)
		}
		s.load(t, s.LegalizeMem(s.pool.CreateMemOpnd(base, ofs+done, uint8(p*8), false), false, s.at()), ir.U64)
		if done > 0 {
			s.emit(asm.MOPorrrrrs, dst, dst, t, s.pool.Shift(asm.ShiftLSL, uint8(8*done)))
		}
		done += p
	}
}

// storePiece writes the low n bytes of src to base+ofs.
func (s *funcSelector) storePiece(src, base *asm.Register, ofs, n int64) {
	var done int64
	r := src
	for done < n {
		p := pieceSize(n - done)
		s.storeReg(r, s.LegalizeMem(s.pool.CreateMemOpnd(base, ofs+done, uint8(p*8), false), false, s.at()), false)
		done += p
		if done < n {
			t := s.newInt(64)
			s.emit(asm.MOPlsrrri, t, r, s.pool.NewImm(8*p, 64, false))
			r = t
		}
	}
}
