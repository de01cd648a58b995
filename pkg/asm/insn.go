package asm

import "fmt"

// Insn is one machine instruction.
type Insn struct {
	Op      Mop
	Opnds   []Operand
	Comment string

	// Calls and returns: the argument or result registers read. Calls
	// only: deopt bundle values and whether a stack map is recorded at the
	// return address.
	Uses     []*Register
	Deopt    []Operand
	StackMap bool
}

// Operand returns operand i.
func (i *Insn) Operand(n int) Operand { return i.Opnds[n] }

// SetOperand replaces operand n. Legalization builds a new operand and
// swaps it in; cached operands are never modified.
func (i *Insn) SetOperand(n int, o Operand) { i.Opnds[n] = o }

// MemOperand returns the memory operand of a load or store and its index.
func (i *Insn) MemOperand() (*MemoryRef, int) {
	for n, o := range i.Opnds {
		if m, ok := o.(*MemoryRef); ok {
			return m, n
		}
	}
	return nil, -1
}

// BranchTarget returns the label operand of a branch, or nil.
func (i *Insn) BranchTarget() *Label {
	for _, o := range i.Opnds {
		if l, ok := o.(*Label); ok {
			return l
		}
	}
	return nil
}

// BBKind describes how a block ends.
type BBKind uint8

const (
	BBFallthru BBKind = iota
	BBGoto
	BBIf
	BBRangeGoto
	BBReturn
	BBCall
)

func (k BBKind) String() string {
	return [...]string{"fallthru", "goto", "if", "rangegoto", "return", "call"}[k]
}

// BB is a basic block. Next is the layout successor.
type BB struct {
	ID    int
	Label *Label
	Kind  BBKind
	Insns []*Insn
	Preds []*BB
	Succs []*BB
	Next  *BB
}

// Append adds an instruction at the end of the block.
func (b *BB) Append(i *Insn) { b.Insns = append(b.Insns, i) }

// InsertBefore inserts i before pos, or appends it when pos is not in b.
func (b *BB) InsertBefore(pos, i *Insn) {
	for n, x := range b.Insns {
		if x == pos {
			b.Insns = append(b.Insns[:n], append([]*Insn{i}, b.Insns[n:]...)...)
			return
		}
	}
	b.Append(i)
}

// InsertAfter inserts i after pos, or appends it when pos is not in b.
func (b *BB) InsertAfter(pos, i *Insn) {
	for n, x := range b.Insns {
		if x == pos {
			b.Insns = append(b.Insns[:n+1], append([]*Insn{i}, b.Insns[n+1:]...)...)
			return
		}
	}
	b.Append(i)
}

// Last returns the last instruction or nil.
func (b *BB) Last() *Insn {
	if len(b.Insns) == 0 {
		return nil
	}
	return b.Insns[len(b.Insns)-1]
}

// AddSucc links b to s in both directions.
func (b *BB) AddSucc(s *BB) {
	for _, x := range b.Succs {
		if x == s {
			return
		}
	}
	b.Succs = append(b.Succs, s)
	s.Preds = append(s.Preds, b)
}

// ReplaceSucc redirects the edge b->old to b->repl.
func (b *BB) ReplaceSucc(old, repl *BB) {
	for n, x := range b.Succs {
		if x == old {
			b.Succs[n] = repl
		}
	}
	old.Preds = removeBB(old.Preds, b)
	repl.Preds = append(repl.Preds, b)
}

func removeBB(list []*BB, b *BB) []*BB {
	out := list[:0]
	for _, x := range list {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

// JumpTable is a read-only table of displacements to case labels,
// relative to the table label.
type JumpTable struct {
	Label   *Label
	Targets []*Label
}

// Function is the selected machine code of one function.
type Function struct {
	Name       string
	Entry      *BB
	JumpTables []*JumpTable

	// FrameSize is the current estimate of the local frame. It is final
	// only once FrameResolved is set by frame finalization.
	FrameSize     int64
	FrameResolved bool
	// OutgoingArgSize is the stack space needed by calls.
	OutgoingArgSize int64

	Pool *Pool

	nextBB int
}

// NewFunction creates an empty function with an entry block.
func NewFunction(name string, pool *Pool) *Function {
	f := &Function{Name: name, Pool: pool}
	f.Entry = f.NewBB()
	return f
}

// NewBB creates a block that is not yet linked into the layout.
func (f *Function) NewBB() *BB {
	b := &BB{ID: f.nextBB}
	f.nextBB++
	return b
}

// LinkAfter places b right after pos in layout order.
func (f *Function) LinkAfter(pos, b *BB) {
	b.Next = pos.Next
	pos.Next = b
}

// BlockLabel returns the label of b, creating one when b has none yet.
func (f *Function) BlockLabel(b *BB) *Label {
	if b.Label == nil {
		b.Label = f.Pool.Label(fmt.Sprintf(".L%s.bb%d", f.Name, b.ID))
	}
	return b.Label
}

// Blocks returns the blocks in layout order.
func (f *Function) Blocks() []*BB {
	var out []*BB
	for b := f.Entry; b != nil; b = b.Next {
		out = append(out, b)
	}
	return out
}

// Insns returns all instructions in layout order.
func (f *Function) Insns() []*Insn {
	var out []*Insn
	for b := f.Entry; b != nil; b = b.Next {
		out = append(out, b.Insns...)
	}
	return out
}
