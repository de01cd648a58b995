// Package isel selects AArch64 machine instructions for IR functions.
//
// Each IR operator has one handler. A handler evaluates its operands into
// registers or immediates, picks the opcode by kind, width and signedness,
// legalizes operands that do not encode, and appends to the current block.
// Unsupported input is an internal compiler error.
package isel

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-isel/pkg/abi"
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
	"github.com/raymyers/ralph-isel/pkg/typelayout"
)

// Selector holds what the functions of one module share. It is safe to
// select different functions concurrently.
type Selector struct {
	mod   *ir.Module
	types *typelayout.Table
	opts  abi.Options
	trace io.Writer
}

// NewSelector creates a selector for the functions of mod.
func NewSelector(mod *ir.Module, types *typelayout.Table, opts abi.Options) *Selector {
	return &Selector{mod: mod, types: types, opts: opts}
}

// SetTrace makes the selector write one line per selected statement to w.
func (s *Selector) SetTrace(w io.Writer) { s.trace = w }

// SelectFunction lowers fn to machine code over a fresh operand pool.
func (s *Selector) SelectFunction(fn *ir.Function) *asm.Function {
	fs := newFuncSelector(s, fn)
	fs.run()
	return fs.fn
}

// funcSelector is the per-function state: operand pool, current block,
// variable registers and frame.
type funcSelector struct {
	*Legalizer
	sel  *Selector
	opts abi.Options
	src  *ir.Function
	fn   *asm.Function
	pool *asm.Pool

	cur    *asm.BB
	labels map[string]*asm.BB
	regs   *varRegs
	frame  *frameLayout
	// symBase holds the address of aggregates passed by hidden copy.
	symBase map[string]*asm.Register
	retPtr  *asm.Register
	nextJT  int
}

func newFuncSelector(s *Selector, fn *ir.Function) *funcSelector {
	pool := asm.NewPool()
	mf := asm.NewFunction(fn.Name, pool)
	return &funcSelector{
		Legalizer: NewLegalizer(mf, s.opts),
		sel:       s,
		opts:      s.opts,
		src:       fn,
		fn:        mf,
		pool:      pool,
		cur:       mf.Entry,
		labels:    make(map[string]*asm.BB),
		regs:      newVarRegs(pool),
		frame:     newFrameLayout(),
		symBase:   make(map[string]*asm.Register),
	}
}

func (s *funcSelector) run() {
	s.allocFrameSymbols()
	s.selectFormals()
	for _, st := range s.src.Body {
		s.fn.FrameSize = s.frame.frameSize()
		n := len(s.cur.Insns)
		b := s.cur
		s.selectStmt(st)
		if s.sel.trace != nil {
			if b != s.cur {
				n = 0
			}
			fmt.Fprintf(s.sel.trace, "ralph-isel: trace: %s: %s (%d insns)\n", s.src.Name, stmtName(st), len(s.cur.Insns)-n)
		}
	}
	s.fn.FrameSize = s.frame.frameSize()
}

func (s *funcSelector) selectStmt(st ir.Stmt) {
	switch st := st.(type) {
	case ir.Dassign:
		s.selectDassign(st)
	case ir.Regassign:
		r := s.regs.mapPreg(st.Preg, s.lower(st.Ty), s.regSize(st.Ty))
		s.into(r, st.X)
		s.normalize(r, st.Ty, st.X)
	case ir.Iassign:
		s.selectIassign(st)
	case ir.Call:
		s.selectCall(st)
	case ir.Return:
		s.selectReturn(st)
	case ir.Label:
		s.startBlock(s.labelBlock(st.Name))
	case ir.Goto:
		s.selectGoto(st)
	case ir.CondGoto:
		s.selectCondGoto(st)
	case ir.RangeGoto:
		s.selectRangeGoto(st)
	case ir.Eval:
		if _, ok := st.X.(ir.ConstVal); !ok {
			s.reg(st.X)
		}
	default:
		ice.Fatalf("%s: cannot select statement %T", s.src.Name, st)
	}
}

func stmtName(st ir.Stmt) string {
	switch st.(type) {
	case ir.Dassign:
		return "dassign"
	case ir.Regassign:
		return "regassign"
	case ir.Iassign:
		return "iassign"
	case ir.Call:
		return "call"
	case ir.Return:
		return "return"
	case ir.Label:
		return "label"
	case ir.Goto:
		return "goto"
	case ir.CondGoto:
		return "condgoto"
	case ir.RangeGoto:
		return "rangegoto"
	case ir.Eval:
		return "eval"
	}
	return fmt.Sprintf("%T", st)
}

// --- types and registers ---

func (s *funcSelector) lower(ty ir.PrimType) ir.PrimType { return ty.Lower(s.opts.PointerBits) }

// regSize is the register width holding a value of type ty.
func (s *funcSelector) regSize(ty ir.PrimType) uint8 {
	t := s.lower(ty)
	if t == ir.Agg {
		return 64
	}
	if b := t.Bits(); b > 32 {
		return uint8(b)
	}
	return 32
}

// valueBits is the width of the value itself: 8 or 16 for sub-word types.
func (s *funcSelector) valueBits(ty ir.PrimType) uint8 {
	if b := s.lower(ty).Bits(); b > 0 {
		return uint8(b)
	}
	return 64
}

func (s *funcSelector) newReg(ty ir.PrimType) *asm.Register {
	return s.regs.fresh(s.lower(ty), s.regSize(ty))
}

func (s *funcSelector) newInt(size uint8) *asm.Register {
	return s.pool.NewVReg(size, asm.ClassInt)
}

func (s *funcSelector) at() *InsertPoint { return AtEnd(s.cur) }

func (s *funcSelector) emit(op asm.Mop, opnds ...asm.Operand) *asm.Insn {
	return s.emitAt(s.at(), op, opnds...)
}

func (s *funcSelector) imm(v int64, size uint8) *asm.Immediate {
	return s.pool.NewImm(v, size, true)
}

// move copies src to dst, converting between register files and widths.
// A narrower source is zero-extended by writing the W view.
func (s *funcSelector) move(dst, src *asm.Register) {
	if dst == src {
		return
	}
	if dst.IsFloat() || src.IsFloat() {
		if !dst.IsFloat() || !src.IsFloat() {
			src = s.pool.View(src, dst.Size)
		}
		s.emit(asm.MOPfmov, dst, src)
		return
	}
	if dst.Size != src.Size {
		dst, src = s.pool.View(dst, 32), s.pool.View(src, 32)
		if dst == src {
			return
		}
	}
	s.emit(asm.MOPmovrr, dst, src)
}

// --- expressions ---

// opnd selects e into an operand: an immediate for integer constants, a
// register otherwise.
func (s *funcSelector) opnd(e ir.Expr) asm.Operand {
	if c, ok := e.(ir.ConstVal); ok && s.lower(c.Ty).IsInteger() {
		return s.pool.NewImm(s.constValue(c), s.regSize(c.Ty), c.Ty.IsSigned())
	}
	return s.reg(e)
}

// constValue normalizes a constant to its type.
func (s *funcSelector) constValue(c ir.ConstVal) int64 {
	bits := s.valueBits(c.Ty)
	if bits >= 64 {
		return c.Value
	}
	return extendImm(c.Value, uint(bits), c.Ty.IsSigned())
}

// reg selects e into a register. Variables and pseudo registers are
// returned as is.
func (s *funcSelector) reg(e ir.Expr) *asm.Register {
	switch e := e.(type) {
	case ir.Dread:
		if s.inReg(e.Sym) {
			return s.varReg(e.Sym)
		}
	case ir.Regread:
		return s.regs.mapPreg(e.Preg, s.lower(e.Ty), s.regSize(e.Ty))
	}
	dst := s.newReg(e.Type())
	s.into(dst, e)
	return dst
}

// toReg turns an operand into a register. Zero uses the zero register.
func (s *funcSelector) toReg(o asm.Operand, ty ir.PrimType) *asm.Register {
	switch o := o.(type) {
	case *asm.Register:
		return o
	case *asm.Immediate:
		if o.Value == 0 {
			return s.pool.ZeroReg(s.regSize(ty))
		}
		r := s.newReg(ty)
		s.SelectCopyImm(r, o.Value, s.regSize(ty), ty.IsSigned(), s.at())
		return r
	}
	ice.Fatalf("operand %T is not a value", o)
	return nil
}

// into selects e and writes the result to dst.
func (s *funcSelector) into(dst *asm.Register, e ir.Expr) {
	switch e := e.(type) {
	case ir.ConstVal:
		s.SelectCopyImm(dst, e.Value, s.copyBits(e.Ty, dst), e.Ty.IsSigned(), s.at())
	case ir.FloatConst:
		s.floatConst(dst, e)
	case ir.Dread:
		s.selectDread(dst, e)
	case ir.Regread:
		s.move(dst, s.reg(e))
	case ir.Iread:
		s.selectIread(dst, e)
	case ir.AddrOf:
		s.symAddrInto(dst, e.Sym, e.Offset)
	case ir.AddrOfFunc:
		s.globalAddrInto(dst, e.Name)
	case ir.Unary:
		s.selectUnary(dst, e)
	case ir.Binary:
		s.binaryInto(dst, e.Op, e.Ty.Promoted(), e.X, e.Y)
	case ir.Compare:
		s.selectCompare(dst, e)
	case ir.Convert:
		s.selectConvert(dst, e)
	case ir.Retype:
		s.move(dst, s.reg(e.X))
	case ir.Extractbits:
		s.selectExtractbits(dst, e)
	case ir.Extend:
		s.selectExtend(dst, e)
	case ir.Depositbits:
		s.selectDepositbits(dst, e)
	case ir.Select:
		s.selectSelect(dst, e)
	case ir.ArrayLength:
		base := s.addrReg(e.Array)
		s.load(dst, s.LegalizeMem(s.pool.CreateMemOpnd(base, abi.ArrayLengthOffset, 32, false), false, s.at()), ir.I32)
	case ir.ArrayElemAddr:
		s.arrayElemAddr(dst, e)
	default:
		ice.Fatalf("%s: cannot select expression %T", s.src.Name, e)
	}
}

// copyBits is the immediate width for a constant of type ty written to dst.
func (s *funcSelector) copyBits(ty ir.PrimType, dst *asm.Register) uint8 {
	b := s.valueBits(ty)
	if b > dst.Size {
		return dst.Size
	}
	if b == 32 && dst.Size == 64 {
		return 64
	}
	return b
}

// normalize re-extends a sub-word value written to a variable register so
// that the register always holds the value extended to 32 bits.
func (s *funcSelector) normalize(r *asm.Register, ty ir.PrimType, e ir.Expr) {
	bits := s.lower(ty).Bits()
	if bits != 8 && bits != 16 {
		return
	}
	switch x := e.(type) {
	case ir.ConstVal:
		return
	case ir.Dread, ir.Iread, ir.Regread:
		if x.Type() == ty {
			return
		}
	}
	s.extendTo(r, r, uint8(bits), ty.IsSigned())
}

// --- blocks ---

func (s *funcSelector) labelBlock(name string) *asm.BB {
	if b, ok := s.labels[name]; ok {
		return b
	}
	b := s.fn.NewBB()
	b.Label = s.pool.Label(fmt.Sprintf(".L%s.%s", s.src.Name, name))
	s.labels[name] = b
	return b
}

// startBlock links b after the current block and makes it current. The
// current block falls into b unless it ends in a jump.
func (s *funcSelector) startBlock(b *asm.BB) {
	switch s.cur.Kind {
	case asm.BBFallthru, asm.BBIf, asm.BBCall:
		s.cur.AddSucc(b)
	}
	s.fn.LinkAfter(s.cur, b)
	s.cur = b
}
