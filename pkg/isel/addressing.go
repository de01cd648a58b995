package isel

import (
	"github.com/raymyers/ralph-isel/pkg/abi"
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// Variables live in one of three places. Scalars whose address is never
// taken get a virtual register. Addressed scalars and aggregates get a
// frame slot, except aggregates passed by hidden copy, which are reached
// through the pointer in symBase. Everything else is a global.

// allocFrameSymbols places the locals that must live in memory. Formals
// are placed by selectFormals once their incoming location is known.
func (s *funcSelector) allocFrameSymbols() {
	for _, sym := range s.src.Locals {
		if sym.Addressed || s.lower(sym.Ty) == ir.Agg {
			size, align := s.symLayout(sym.Ty, sym.TypeIdx)
			s.frame.allocSym(sym.Name, size, align)
		}
	}
}

// symLayout returns the slot size and alignment of a variable.
func (s *funcSelector) symLayout(ty ir.PrimType, typeIdx int) (int64, int64) {
	if s.lower(ty) == ir.Agg {
		size := int64(s.sel.types.Size(typeIdx))
		return alignUp(size, 8), int64(s.sel.types.Align(typeIdx))
	}
	n := int64(s.valueBits(ty) / 8)
	return n, n
}

// inReg reports whether a variable of this function lives in a register.
func (s *funcSelector) inReg(name string) bool {
	if _, ok := s.frame.slots[name]; ok {
		return false
	}
	if _, ok := s.symBase[name]; ok {
		return false
	}
	_, ok := s.src.Symbol(name)
	return ok
}

// varReg returns the register of a register-resident variable.
func (s *funcSelector) varReg(name string) *asm.Register {
	sym, _ := s.src.Symbol(name)
	return s.regs.mapVar(name, s.lower(sym.Ty), s.regSize(sym.Ty))
}

// symType returns the type of a local, formal or global.
func (s *funcSelector) symType(name string) (ir.PrimType, int) {
	if sym, ok := s.sel.mod.Lookup(s.src, name); ok {
		return sym.Ty, sym.TypeIdx
	}
	ice.Fatalf("%s: unknown symbol %s", s.src.Name, name)
	return ir.Void, 0
}

// symMem returns an unlegalized reference to bits at off bytes into a
// memory-resident variable.
func (s *funcSelector) symMem(name string, off int64, bits uint8) *asm.MemoryRef {
	if ofs, ok := s.frame.slots[name]; ok {
		return frameRef(s.pool, ofs+off, bits)
	}
	if base, ok := s.symBase[name]; ok {
		return s.pool.CreateMemOpnd(base, off, bits, false)
	}
	if _, ok := s.sel.mod.Global(name); !ok {
		ice.Fatalf("%s: %s is not in memory", s.src.Name, name)
	}
	page := s.newInt(64)
	s.emit(asm.MOPadrp, page, s.pool.Symbol(name, false))
	if off == 0 {
		return s.pool.GetOrCreateMemOpnd(asm.MemoryRef{Mode: asm.AddrLo12, Base: page, Symbol: name, Size: bits})
	}
	s.emit(asm.MOPaddlo12, page, page, s.pool.Symbol(name, true))
	return s.pool.CreateMemOpnd(page, off, bits, false)
}

// symAddrInto writes the address of a variable plus off to dst.
func (s *funcSelector) symAddrInto(dst *asm.Register, name string, off int64) {
	d := s.pool.View(dst, 64)
	if ofs, ok := s.frame.slots[name]; ok {
		s.addImm(d, s.pool.PhysReg(asm.FP, 64), ofs+off, true, s.at())
		return
	}
	if base, ok := s.symBase[name]; ok {
		s.addImm(d, base, off, false, s.at())
		return
	}
	if s.inReg(name) {
		ice.Fatalf("%s: address of register variable %s", s.src.Name, name)
	}
	s.globalAddrInto(d, name)
	if off != 0 {
		s.addImm(d, d, off, false, s.at())
	}
}

// globalAddrInto writes the address of a global or function to dst.
func (s *funcSelector) globalAddrInto(dst *asm.Register, name string) {
	d := s.pool.View(dst, 64)
	s.emit(asm.MOPadrp, d, s.pool.Symbol(name, false))
	s.emit(asm.MOPaddlo12, d, d, s.pool.Symbol(name, true))
}

// addrReg selects an address into a 64-bit register. 32-bit pointers are
// zero-extended by the write of their W register.
func (s *funcSelector) addrReg(e ir.Expr) *asm.Register {
	r := s.reg(e)
	if r.Size != 64 {
		return s.pool.View(r, 64)
	}
	return r
}

// memOperand builds the legalized reference for an access of bits at
// addr+off. Constant additions fold into the offset, variables use their
// home, and base + widened index * size becomes an indexed reference.
func (s *funcSelector) memOperand(addr ir.Expr, off int64, bits uint8) *asm.MemoryRef {
	for {
		b, ok := addr.(ir.Binary)
		if !ok || b.Op != ir.Add && b.Op != ir.Sub {
			break
		}
		c, ok := b.Y.(ir.ConstVal)
		if !ok {
			break
		}
		if b.Op == ir.Add {
			off += c.Value
		} else {
			off -= c.Value
		}
		addr = b.X
	}
	var mem *asm.MemoryRef
	switch a := addr.(type) {
	case ir.AddrOf:
		mem = s.symMem(a.Sym, a.Offset+off, bits)
	case ir.Binary:
		if off == 0 && a.Op == ir.Add {
			mem = s.indexedMem(a.X, a.Y, bits)
			if mem == nil {
				mem = s.indexedMem(a.Y, a.X, bits)
			}
		}
	case ir.ArrayElemAddr:
		if off == 0 && a.ElemSize == int64(bits/8) {
			base := s.addrReg(a.Array)
			t := s.newInt(64)
			s.addImm(t, base, abi.ArrayContentOffset, false, s.at())
			mem = s.indexRef(t, a.Index, log2(uint64(a.ElemSize)), bits)
		}
	}
	if mem == nil {
		mem = s.pool.CreateMemOpnd(s.addrReg(addr), off, bits, false)
	}
	return s.LegalizeMem(mem, false, s.at())
}

// indexedMem matches base + idx*size and base + (idx << k) where the scale
// equals the access size.
func (s *funcSelector) indexedMem(base, scaled ir.Expr, bits uint8) *asm.MemoryRef {
	b, ok := scaled.(ir.Binary)
	if !ok {
		return nil
	}
	c, ok := b.Y.(ir.ConstVal)
	if !ok {
		return nil
	}
	size := int64(bits / 8)
	var k uint8
	switch {
	case b.Op == ir.Mul && c.Value == size:
		k = log2(uint64(size))
	case b.Op == ir.Shl && c.Value >= 0 && c.Value < 8 && int64(1)<<c.Value == size:
		k = uint8(c.Value)
	default:
		return nil
	}
	idx := b.X
	if cv, ok := idx.(ir.Convert); !ok || !s.isIndexWidening(cv) {
		if s.lower(idx.Type()).Bits() != 64 {
			return nil
		}
	}
	return s.indexRef(s.addrReg(base), idx, k, bits)
}

// isIndexWidening reports whether c is a plain 32 to 64-bit integer
// widening.
func (s *funcSelector) isIndexWidening(c ir.Convert) bool {
	from, to := s.lower(c.From), s.lower(c.Ty)
	return from.IsInteger() && to.IsInteger() && from.Bits() == 32 && to.Bits() == 64
}

// indexRef returns [base, idx, ext #k]. A widened 32-bit index uses SXTW or
// UXTW; a 64-bit index uses LSL, or no extend at all when k is 0.
func (s *funcSelector) indexRef(base *asm.Register, idx ir.Expr, k uint8, bits uint8) *asm.MemoryRef {
	var ext *asm.ExtendShift
	var r *asm.Register
	if c, ok := idx.(ir.Convert); ok && s.isIndexWidening(c) {
		idx = c.X
		ty := s.lower(c.From)
		r = s.pool.View(s.reg(idx), 32)
		if ty.IsSigned() {
			ext = s.pool.Extend(asm.ExtSXTW, k)
		} else {
			ext = s.pool.Extend(asm.ExtUXTW, k)
		}
	} else {
		ty := s.lower(idx.Type())
		r = s.reg(idx)
		switch {
		case r.Size == 32 && ty.IsSigned():
			ext = s.pool.Extend(asm.ExtSXTW, k)
		case r.Size == 32:
			ext = s.pool.Extend(asm.ExtUXTW, k)
		case k != 0:
			ext = s.pool.Extend(asm.ExtUXTX, k)
		}
	}
	return s.pool.GetOrCreateMemOpnd(asm.MemoryRef{
		Mode:   asm.AddrBaseIndex,
		Base:   base,
		Index:  r,
		Extend: ext,
		Size:   bits,
	})
}

// arrayElemAddr writes base + content offset + index*elemSize to dst.
func (s *funcSelector) arrayElemAddr(dst *asm.Register, e ir.ArrayElemAddr) {
	d := s.pool.View(dst, 64)
	base := s.addrReg(e.Array)
	t := s.newInt(64)
	s.addImm(t, base, abi.ArrayContentOffset, false, s.at())
	idx := s.reg(e.Index)
	signed := s.lower(e.Index.Type()).IsSigned()
	es := uint64(e.ElemSize)
	switch {
	case isPow2(es) && log2(es) <= 4 && idx.Size == 32:
		kind := asm.ExtUXTW
		if signed {
			kind = asm.ExtSXTW
		}
		s.emit(asm.MOPaddrrre, d, t, idx, s.pool.Extend(kind, log2(es)))
	case isPow2(es) && idx.Size == 64:
		s.emit(asm.MOPaddrrrs, d, t, idx, s.pool.Shift(asm.ShiftLSL, log2(es)))
	default:
		wide := idx
		if idx.Size == 32 {
			wide = s.newInt(64)
			s.extendTo(wide, idx, 32, signed)
		}
		size := s.newInt(64)
		s.SelectCopyImm(size, e.ElemSize, 64, false, s.at())
		s.emit(asm.MOPmadd, d, wide, size, t)
	}
}

// aggAddr returns the address of an aggregate value.
func (s *funcSelector) aggAddr(e ir.Expr) *asm.Register {
	r := s.newInt(64)
	switch e := e.(type) {
	case ir.Dread:
		s.symAddrInto(r, e.Sym, 0)
	case ir.Iread:
		s.addImm(r, s.addrReg(e.Addr), e.Offset+s.fieldOffset(e.TypeIdx, e.Field), false, s.at())
	default:
		ice.Fatalf("%s: aggregate operand %T has no address", s.src.Name, e)
	}
	return r
}

// aggSize returns the byte size of an aggregate value.
func (s *funcSelector) aggSize(e ir.Expr) int64 {
	switch e := e.(type) {
	case ir.Dread:
		_, idx := s.symType(e.Sym)
		return int64(s.sel.types.Size(idx))
	case ir.Iread:
		return s.fieldSize(e.TypeIdx, e.Field)
	}
	ice.Fatalf("%s: aggregate operand %T has no size", s.src.Name, e)
	return 0
}

// fieldSize returns the size of a 1-based field, or of the whole type for
// field 0.
func (s *funcSelector) fieldSize(typeIdx, field int) int64 {
	if field > 0 {
		typeIdx = s.sel.types.Decl(typeIdx).Fields[field-1]
	}
	return int64(s.sel.types.Size(typeIdx))
}

// fieldOffset returns the offset of a 1-based field, or 0 for none.
func (s *funcSelector) fieldOffset(typeIdx, field int) int64 {
	if field == 0 {
		return 0
	}
	return int64(s.sel.types.FieldOffset(typeIdx, field-1))
}
