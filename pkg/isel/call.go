package isel

import (
	"github.com/raymyers/ralph-isel/pkg/abi"
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/callconv"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// callArg is one argument being marshaled. val is set once the value has
// been evaluated into a register: the hidden copy address, an aggregate
// address, or a non-leaf scalar.
type callArg struct {
	x    ir.Expr
	ty   ir.PrimType
	size int64 // aggregates only
	loc  callconv.CCLocInfo
	val  *asm.Register
}

// selectCall marshals the arguments, emits the call and copies the result
// out of its return location.
//
// Under AAPCS64 the non-leaf arguments are evaluated into virtual registers
// and copied to their locations first. Leaf arguments (constants, variables,
// addresses) are then written straight into their locations from a staging
// block appended after the copies, so no argument register is live across
// the evaluation of another argument. The other conventions marshal strictly
// left to right.
func (s *funcSelector) selectCall(st ir.Call) {
	conv := ir.CCDefault
	var callee *ir.Function
	if st.Target == nil {
		if callee = s.sel.mod.Func(st.Callee); callee != nil {
			conv = callee.Conv
		}
	}
	cc := callconv.New(conv, s.opts.BigEndian)

	var target *asm.Register
	if st.Target != nil {
		target = s.addrReg(st.Target)
	}
	var deopt []asm.Operand
	for _, e := range st.Deopt {
		deopt = append(deopt, s.opnd(e))
	}

	var args []*callArg
	var uses []*asm.Register
	hidden := false
	for i, x := range st.Args {
		a := &callArg{x: x, ty: s.lower(x.Type())}
		if a.ty == ir.Agg {
			a.size = s.argAggSize(st, i)
		}
		a.loc = cc.LocateNextParm(a.ty, a.size)
		if callee != nil && i < len(callee.Formals) && callee.Formals[i].Unused {
			continue
		}
		if a.loc.ByHiddenCopy {
			a.val = s.hiddenCopy(x, a.size)
			hidden = true
		}
		args = append(args, a)
		uses = append(uses, s.argRegs(a)...)
	}
	if cc.DeferLeafArgs() {
		s.marshalDeferred(args)
	} else {
		s.marshalInOrder(args)
	}
	if n := cc.StackSize(); n > s.fn.OutgoingArgSize {
		s.fn.OutgoingArgSize = n
	}

	rty := s.lower(st.Result)
	var rsize int64
	if rty == ir.Agg {
		rsize = s.resultAggSize(st, callee)
	}
	rloc := cc.LocateRetVal(rty, rsize)
	if rloc.Indirect {
		x8 := s.pool.PhysReg(asm.R8, 64)
		if st.ResultSym != "" {
			s.symAddrInto(x8, st.ResultSym, 0)
		} else {
			ofs := s.frame.alloc(alignUp(rsize, 8), stackAlignment)
			s.addImm(x8, s.pool.PhysReg(asm.FP, 64), ofs, true, s.at())
		}
		uses = append(uses, x8)
	}

	tail := st.Tail && !hidden && cc.StackSize() == 0 && !rloc.Indirect &&
		st.ResultSym == "" && st.ResultPreg == 0 && conv == s.src.Conv

	var in *asm.Insn
	switch {
	case target != nil && tail:
		in = s.emit(asm.MOPtailbr, target)
	case target != nil && s.opts.PAC == abi.PACFull:
		in = s.emit(asm.MOPblraaz, target)
	case target != nil:
		in = s.emit(asm.MOPblr, target)
	case tail:
		in = s.emit(asm.MOPtailb, s.pool.FuncName(st.Callee))
	default:
		in = s.emit(asm.MOPbl, s.pool.FuncName(st.Callee))
	}
	in.Uses = uses
	in.Deopt = deopt
	in.StackMap = st.StackMap

	if tail {
		s.cur.Kind = asm.BBReturn
		s.startBlock(s.fn.NewBB())
		return
	}
	s.cur.Kind = asm.BBCall
	s.startBlock(s.fn.NewBB())
	s.copyResult(st, rty, rsize, rloc)
}

func (s *funcSelector) marshalInOrder(args []*callArg) {
	for _, a := range args {
		s.placeArg(a)
	}
}

func (s *funcSelector) marshalDeferred(args []*callArg) {
	var leaves []*callArg
	for _, a := range args {
		switch {
		case a.val != nil:
		case s.isLeaf(a.x):
			leaves = append(leaves, a)
		case a.ty == ir.Agg:
			a.val = s.aggAddr(a.x)
		default:
			a.val = s.reg(a.x)
		}
	}
	for _, a := range args {
		if a.val != nil {
			s.placeArg(a)
		}
	}
	// Leaves go through a detached block so that nothing they emit lands
	// between the computed arguments' moves.
	main := s.cur
	stage := &asm.BB{}
	s.cur = stage
	for _, a := range leaves {
		s.placeArg(a)
	}
	s.cur = main
	main.Insns = append(main.Insns, stage.Insns...)
}

// isLeaf reports whether e needs no registers beyond its destination.
func (s *funcSelector) isLeaf(e ir.Expr) bool {
	switch e := e.(type) {
	case ir.ConstVal, ir.FloatConst, ir.Regread, ir.AddrOf, ir.AddrOfFunc:
		return true
	case ir.Dread:
		return s.lower(e.Ty) != ir.Agg
	}
	return false
}

// hiddenCopy copies an aggregate argument to a fresh frame temporary and
// returns the temporary's address.
func (s *funcSelector) hiddenCopy(x ir.Expr, size int64) *asm.Register {
	ofs := s.frame.alloc(alignUp(size, 8), stackAlignment)
	addr := s.newInt(64)
	s.addImm(addr, s.pool.PhysReg(asm.FP, 64), ofs, true, s.at())
	s.copyMem(addr, s.aggAddr(x), size)
	return addr
}

// placeArg writes an argument to its location, evaluating it in place when
// it has no value yet.
func (s *funcSelector) placeArg(a *callArg) {
	loc := a.loc
	sp := s.pool.PhysReg(asm.SP, 64)
	switch {
	case loc.ByHiddenCopy && loc.InRegs():
		s.move(s.pool.PhysReg(loc.Reg0, 64), a.val)
	case loc.ByHiddenCopy:
		s.storeReg(a.val, s.stackArg(loc.MemOffset, 64), false)
	case a.ty == ir.Agg:
		if a.val == nil {
			a.val = s.aggAddr(a.x)
		}
		if loc.InRegs() {
			for j := 0; j < loc.RegCount; j++ {
				ofs := int64(8 * j)
				s.loadPiece(s.pool.PhysReg(loc.Reg0+asm.RegNum(j), 64), a.val, ofs, min(8, a.size-ofs))
			}
			return
		}
		dst := s.newInt(64)
		s.addImm(dst, sp, loc.MemOffset, false, s.at())
		s.copyMem(dst, a.val, a.size)
	case loc.InRegs():
		r := s.pool.PhysReg(loc.Reg0, s.regSize(a.ty))
		if a.val != nil {
			s.move(r, a.val)
		} else {
			s.into(r, a.x)
		}
		if _, ok := a.x.(ir.ConstVal); !ok && a.ty.IsInteger() {
			if b := a.ty.Bits(); b < 32 {
				s.extendTo(r, r, uint8(b), a.ty.IsSigned())
			}
		}
	default:
		mem := s.stackArg(loc.MemOffset, uint8(loc.MemSize*8))
		if a.val != nil {
			s.storeReg(a.val, mem, a.ty.IsFloat())
		} else {
			s.store(mem, a.x, a.ty)
		}
	}
}

// stackArg returns the outgoing argument slot at ofs.
func (s *funcSelector) stackArg(ofs int64, bits uint8) *asm.MemoryRef {
	return s.LegalizeMem(s.pool.CreateMemOpnd(s.pool.PhysReg(asm.SP, 64), ofs, bits, false), false, s.at())
}

// argRegs lists the physical registers an argument occupies.
func (s *funcSelector) argRegs(a *callArg) []*asm.Register {
	switch {
	case !a.loc.InRegs():
		return nil
	case a.loc.ByHiddenCopy:
		return []*asm.Register{s.pool.PhysReg(a.loc.Reg0, 64)}
	case a.ty == ir.Agg:
		var rs []*asm.Register
		for j := 0; j < a.loc.RegCount; j++ {
			rs = append(rs, s.pool.PhysReg(a.loc.Reg0+asm.RegNum(j), 64))
		}
		return rs
	}
	return []*asm.Register{s.pool.PhysReg(a.loc.Reg0, s.regSize(a.ty))}
}

func (s *funcSelector) argAggSize(st ir.Call, i int) int64 {
	if i < len(st.ArgTypes) && st.ArgTypes[i] != 0 {
		return int64(s.sel.types.Size(st.ArgTypes[i]))
	}
	return s.aggSize(st.Args[i])
}

func (s *funcSelector) resultAggSize(st ir.Call, callee *ir.Function) int64 {
	switch {
	case st.ResultSym != "":
		_, idx := s.symType(st.ResultSym)
		return int64(s.sel.types.Size(idx))
	case callee != nil:
		return int64(s.sel.types.Size(callee.ResultTy))
	}
	ice.Fatalf("%s: aggregate result of %s has no type", s.src.Name, st.Callee)
	return 0
}

// copyResult moves the returned value to the result symbol or pseudo
// register. Results returned through x8 are already in place.
func (s *funcSelector) copyResult(st ir.Call, ty ir.PrimType, size int64, loc callconv.CCLocInfo) {
	if ty == ir.Void || loc.Indirect {
		return
	}
	if ty == ir.Agg {
		if st.ResultSym == "" {
			return
		}
		addr := s.newInt(64)
		s.symAddrInto(addr, st.ResultSym, 0)
		for j := 0; j < loc.RegCount; j++ {
			ofs := int64(8 * j)
			s.storePiece(s.pool.PhysReg(loc.Reg0+asm.RegNum(j), 64), addr, ofs, min(8, size-ofs))
		}
		return
	}
	ret := s.pool.PhysReg(loc.Reg0, s.regSize(ty))
	if st.ResultPreg != 0 {
		s.setResult(s.regs.mapPreg(st.ResultPreg, ty, s.regSize(ty)), ret, ty)
	}
	switch {
	case st.ResultSym == "":
	case s.inReg(st.ResultSym):
		s.setResult(s.varReg(st.ResultSym), ret, ty)
	default:
		mem := s.LegalizeMem(s.symMem(st.ResultSym, 0, s.accessBits(st.Result)), false, s.at())
		s.storeReg(ret, mem, ty.IsFloat())
	}
}

// setResult copies a returned value to r. The upper bits of a sub-word
// result are unspecified and get extended here.
func (s *funcSelector) setResult(r, ret *asm.Register, ty ir.PrimType) {
	if b := ty.Bits(); ty.IsInteger() && b < 32 {
		s.extendTo(r, ret, uint8(b), ty.IsSigned())
		return
	}
	s.move(r, ret)
}

// retLoc is the return location of the function being selected.
func (s *funcSelector) retLoc() callconv.CCLocInfo {
	ty := s.lower(s.src.Result)
	var size int64
	if ty == ir.Agg {
		size = int64(s.sel.types.Size(s.src.ResultTy))
	}
	return callconv.New(s.src.Conv, s.opts.BigEndian).LocateRetVal(ty, size)
}

func (s *funcSelector) selectReturn(st ir.Return) {
	ty := s.lower(s.src.Result)
	loc := s.retLoc()
	var uses []*asm.Register
	if st.X != nil {
		switch {
		case ty == ir.Agg && loc.Indirect:
			s.copyMem(s.retPtr, s.aggAddr(st.X), int64(s.sel.types.Size(s.src.ResultTy)))
		case ty == ir.Agg:
			size := int64(s.sel.types.Size(s.src.ResultTy))
			addr := s.aggAddr(st.X)
			for j := 0; j < loc.RegCount; j++ {
				r := s.pool.PhysReg(loc.Reg0+asm.RegNum(j), 64)
				ofs := int64(8 * j)
				s.loadPiece(r, addr, ofs, min(8, size-ofs))
				uses = append(uses, r)
			}
		case ty != ir.Void:
			r := s.pool.PhysReg(loc.Reg0, s.regSize(ty))
			s.into(r, st.X)
			uses = append(uses, r)
		}
	}
	op := asm.MOPret
	if s.opts.PAC >= abi.PACReturn {
		op = asm.MOPretaa
	}
	s.emit(op).Uses = uses
	s.cur.Kind = asm.BBReturn
	s.startBlock(s.fn.NewBB())
}

// incomingArg is a stack argument of the function being selected. It is
// addressed from argp, which sits above the whole frame.
func (s *funcSelector) incomingArg(ofs int64, bits uint8) *asm.MemoryRef {
	return s.LegalizeMem(argRef(s.pool, ofs, bits), false, s.at())
}

// selectFormals moves the incoming arguments to their homes: a virtual
// register, a frame slot, or for hidden copies the pointer kept in symBase.
func (s *funcSelector) selectFormals() {
	fp := s.pool.PhysReg(asm.FP, 64)
	if s.retLoc().Indirect {
		s.retPtr = s.newInt(64)
		s.move(s.retPtr, s.pool.PhysReg(asm.R8, 64))
	}
	cc := callconv.New(s.src.Conv, s.opts.BigEndian)
	for _, f := range s.src.Formals {
		ty := s.lower(f.Ty)
		var size int64
		if ty == ir.Agg {
			size = int64(s.sel.types.Size(f.TypeIdx))
		}
		loc := cc.LocateNextParm(ty, size)
		if f.Unused {
			continue
		}
		switch {
		case loc.ByHiddenCopy:
			bits := uint8(8 * s.sel.types.Size(s.sel.types.CreatePointerType(f.TypeIdx)))
			p := s.newInt(64)
			if loc.InRegs() {
				s.move(p, s.pool.PhysReg(loc.Reg0, bits))
			} else {
				s.load(p, s.incomingArg(loc.MemOffset, bits), ir.U64)
			}
			s.symBase[f.Name] = p
		case ty == ir.Agg:
			slot, align := s.symLayout(f.Ty, f.TypeIdx)
			dst := s.newInt(64)
			s.addImm(dst, fp, s.frame.allocSym(f.Name, slot, align), true, s.at())
			if !loc.InRegs() {
				src := s.newInt(64)
				s.addImm(src, s.pool.PhysReg(asm.ArgP, 64), loc.MemOffset, true, s.at())
				s.copyMem(dst, src, size)
				break
			}
			for j := 0; j < loc.RegCount; j++ {
				ofs := int64(8 * j)
				s.storePiece(s.pool.PhysReg(loc.Reg0+asm.RegNum(j), 64), dst, ofs, min(8, size-ofs))
			}
		case f.Addressed:
			slot, align := s.symLayout(f.Ty, f.TypeIdx)
			mem := s.LegalizeMem(frameRef(s.pool, s.frame.allocSym(f.Name, slot, align), s.accessBits(f.Ty)), false, s.at())
			r := s.pool.PhysReg(loc.Reg0, s.regSize(f.Ty))
			if !loc.InRegs() {
				r = s.newReg(f.Ty)
				s.load(r, s.incomingArg(loc.MemOffset, uint8(loc.MemSize*8)), f.Ty)
			}
			s.storeReg(r, mem, ty.IsFloat())
		default:
			r := s.varReg(f.Name)
			if loc.InRegs() {
				s.move(r, s.pool.PhysReg(loc.Reg0, r.Size))
			} else {
				s.load(r, s.incomingArg(loc.MemOffset, uint8(loc.MemSize*8)), f.Ty)
			}
		}
	}
}
