package isel

import (
	"cmp"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// maxJumpTableEntries bounds the span of a range goto.
const maxJumpTableEntries = 1 << 16

func (s *funcSelector) selectGoto(st ir.Goto) {
	s.jump(s.labelBlock(st.Label))
}

// jump ends the current block with b target.
func (s *funcSelector) jump(target *asm.BB) {
	s.emit(asm.MOPb, s.fn.BlockLabel(target))
	s.cur.Kind = asm.BBGoto
	s.cur.AddSucc(target)
	s.startBlock(s.fn.NewBB())
}

// endIf ends the current block after a conditional branch to target. The
// new block is the fallthrough.
func (s *funcSelector) endIf(target *asm.BB) {
	s.cur.Kind = asm.BBIf
	s.cur.AddSucc(target)
	s.startBlock(s.fn.NewBB())
}

func (s *funcSelector) selectCondGoto(st ir.CondGoto) {
	s.branchIf(st.Cond, st.IfTrue, s.labelBlock(st.Label))
}

// branchIf branches to target when cond is nonzero (sense) or zero
// (!sense), picking the shortest compare-and-branch form.
func (s *funcSelector) branchIf(cond ir.Expr, sense bool, target *asm.BB) {
	l := s.fn.BlockLabel(target)
	switch e := cond.(type) {
	case ir.ConstVal:
		if (e.Value != 0) == sense {
			s.jump(target)
		}
		return
	case ir.Unary:
		if e.Op == ir.Lnot && s.lower(e.X.Type()).IsInteger() {
			s.branchIf(e.X, !sense, target)
			return
		}
	case ir.Compare:
		if e.Op != ir.Cmp3way {
			s.branchCompare(canonCompare(e), sense, target)
			return
		}
	case ir.Binary:
		if e.Op == ir.Band && s.branchTest(e, sense, target) {
			return
		}
	}
	if _, ok := cond.(ir.Compare); !ok && s.lower(cond.Type()).IsInteger() {
		r := s.reg(cond)
		op := asm.MOPcbnz
		if !sense {
			op = asm.MOPcbz
		}
		s.emit(op, r, l)
		s.endIf(target)
		return
	}
	c := s.condFlags(cond)
	if !sense {
		c = c.Invert()
	}
	s.emit(asm.MOPbcond, s.pool.Cond(c), l)
	s.endIf(target)
}

// branchCompare handles comparisons against zero: CBZ/CBNZ for equality,
// a sign-bit TBZ/TBNZ for signed x < 0 and x >= 0, and the bit tests of
// (x & m) == 0. Other comparisons go through the flags.
func (s *funcSelector) branchCompare(e ir.Compare, sense bool, target *asm.BB) {
	ty := s.lower(e.OpndTy)
	l := s.fn.BlockLabel(target)
	if zero, ok := e.Y.(ir.ConstVal); ok && zero.Value == 0 && ty.IsInteger() {
		switch e.Op {
		case ir.Eq, ir.Ne:
			nonzero := (e.Op == ir.Ne) == sense
			if b, ok := e.X.(ir.Binary); ok && b.Op == ir.Band && s.branchTest(b, nonzero, target) {
				return
			}
			op := asm.MOPcbz
			if nonzero {
				op = asm.MOPcbnz
			}
			s.emit(op, s.reg(e.X), l)
			s.endIf(target)
			return
		case ir.Lt, ir.Ge:
			if !ty.IsSigned() || s.opts.OptLevel == 0 {
				break
			}
			x := s.reg(e.X)
			op := asm.MOPtbz
			if (e.Op == ir.Lt) == sense {
				op = asm.MOPtbnz
			}
			s.emit(op, x, s.pool.NewImm(int64(x.Size-1), x.Size, false), l)
			s.endIf(target)
			return
		}
	}
	s.compareFlags(e)
	c := condFor(e.Op, ty)
	if !sense {
		c = c.Invert()
	}
	s.emit(asm.MOPbcond, s.pool.Cond(c), l)
	s.endIf(target)
}

// branchTest branches on x & y being nonzero (sense) or zero. A single-bit
// constant mask becomes TBNZ/TBZ, anything else TST.
func (s *funcSelector) branchTest(b ir.Binary, sense bool, target *asm.BB) bool {
	if !s.lower(b.Ty).IsInteger() {
		return false
	}
	l := s.fn.BlockLabel(target)
	xe, ye := b.X, b.Y
	if _, ok := xe.(ir.ConstVal); ok {
		xe, ye = ye, xe
	}
	x := s.reg(xe)
	y := s.opnd(ye)
	if c, ok := y.(*asm.Immediate); ok {
		m := unsignedConst(c, x.Size)
		if isPow2(m) {
			op := asm.MOPtbz
			if sense {
				op = asm.MOPtbnz
			}
			s.emit(op, x, s.pool.NewImm(int64(log2(m)), x.Size, false), l)
			s.endIf(target)
			return true
		}
		if m != 0 && asm.IsBitmaskImmediate(m, int(x.Size)) {
			s.emit(asm.MOPtstri, s.pool.Flags(), x, s.pool.NewImm(int64(m), x.Size, false))
		} else {
			s.emit(asm.MOPtstrr, s.pool.Flags(), x, s.toReg(y, b.Ty))
		}
	} else {
		s.emit(asm.MOPtstrr, s.pool.Flags(), x, y)
	}
	c := asm.CondNE
	if !sense {
		c = asm.CondEQ
	}
	s.emit(asm.MOPbcond, s.pool.Cond(c), l)
	s.endIf(target)
	return true
}

// selectRangeGoto lowers a dense switch:
//
//	sub   idx, x, #(tagOffset + min)
//	cmp   idx, #(n - 1)
//	b.hi  fallthrough
//	adrp  base, table
//	add   base, base, :lo12:table
//	ldr   t, [base, idx, uxtw #3]
//	add   t, t, base
//	br    t
//
// Values without a case go to the fallthrough block.
func (s *funcSelector) selectRangeGoto(st ir.RangeGoto) {
	x := s.reg(st.X)
	if len(st.Cases) == 0 {
		return
	}
	cases := slices.Clone(st.Cases)
	slices.SortFunc(cases, func(a, b ir.Case) int { return cmp.Compare(a.Tag, b.Tag) })
	for i := 1; i < len(cases); i++ {
		if cases[i].Tag == cases[i-1].Tag {
			ice.Fatalf("%s: duplicate case tag %d", s.src.Name, cases[i].Tag)
		}
	}
	lo, hi := cases[0].Tag, cases[len(cases)-1].Tag
	n := hi - lo + 1
	if n <= 0 || n > maxJumpTableEntries {
		ice.Fatalf("%s: case range %d..%d too large for a jump table", s.src.Name, lo, hi)
	}

	idx := s.newInt(x.Size)
	s.addImm(idx, x, -(st.TagOffset + lo), false, s.at())
	s.cmpOp(idx, s.pool.NewImm(n-1, idx.Size, false), ir.U64)
	fall := s.fn.NewBB()
	s.emit(asm.MOPbcond, s.pool.Cond(asm.CondHI), s.fn.BlockLabel(fall))
	s.endIf(fall)

	table := &asm.JumpTable{
		Label:   s.pool.Label(fmt.Sprintf(".L%s.jt%d", s.src.Name, s.nextJT)),
		Targets: make([]*asm.Label, n),
	}
	s.nextJT++
	for i := range table.Targets {
		table.Targets[i] = s.fn.BlockLabel(fall)
	}
	for _, c := range cases {
		b := s.labelBlock(c.Label)
		table.Targets[c.Tag-lo] = b.Label
		s.cur.AddSucc(b)
	}
	if n > int64(len(cases)) {
		s.cur.AddSucc(fall)
	}
	s.fn.JumpTables = append(s.fn.JumpTables, table)

	base := s.newInt(64)
	s.emit(asm.MOPadrp, base, s.pool.Symbol(table.Label.Name, false))
	s.emit(asm.MOPaddlo12, base, base, s.pool.Symbol(table.Label.Name, true))
	ext := s.pool.Extend(asm.ExtUXTW, 3)
	if idx.Size == 64 {
		ext = s.pool.Extend(asm.ExtUXTX, 3)
	}
	entry := s.pool.GetOrCreateMemOpnd(asm.MemoryRef{
		Mode:   asm.AddrBaseIndex,
		Base:   base,
		Index:  idx,
		Extend: ext,
		Size:   64,
	})
	t := s.newInt(64)
	s.emit(asm.MOPldr, t, entry)
	s.emit(asm.MOPaddrrr, t, t, base)
	s.emit(asm.MOPbr, t)
	s.cur.Kind = asm.BBRangeGoto
	s.startBlock(fall)
}
