package isel

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
)

const insnBytes = 4

// BranchRange returns the reach in bytes of a branch opcode in either
// direction.
func BranchRange(op asm.Mop) int64 {
	switch op {
	case asm.MOPtbz, asm.MOPtbnz:
		return 1 << 15
	case asm.MOPbcond, asm.MOPcbz, asm.MOPcbnz:
		return 1 << 20
	case asm.MOPb:
		return 1 << 27
	}
	ice.Fatalf("%s is not a direct branch", op)
	return 0
}

// InsertLongBranchPads rewrites every conditional branch whose target may be
// out of reach. The branch is inverted to skip over a new pad block that
// holds an unconditional b to the old target:
//
//	b.eq far		b.ne next
//	next:		=>	b    far
//				next:
//
// Padding moves code, so the scan repeats until nothing changes. It returns
// the number of pads inserted.
func InsertLongBranchPads(fn *asm.Function) int {
	pads := 0
	for {
		addr := blockAddresses(fn)
		byLabel := make(map[*asm.Label]*asm.BB)
		for _, b := range fn.Blocks() {
			if b.Label != nil {
				byLabel[b.Label] = b
			}
		}
		changed := false
		for _, b := range fn.Blocks() {
			br := b.Last()
			if br == nil || !br.Op.Is(asm.FlagCondBranch) {
				continue
			}
			target, ok := byLabel[br.BranchTarget()]
			if !ok {
				ice.Fatalf("%s: branch to unknown label", fn.Name)
			}
			pc := addr[b] + int64(len(b.Insns)-1)*insnBytes
			if d := addr[target] - pc; d >= -BranchRange(br.Op) && d < BranchRange(br.Op) {
				continue
			}
			addPad(fn, b, target)
			pads++
			changed = true
		}
		if !changed {
			return pads
		}
	}
}

func blockAddresses(fn *asm.Function) map[*asm.BB]int64 {
	addr := make(map[*asm.BB]int64)
	var pc int64
	for b := fn.Entry; b != nil; b = b.Next {
		addr[b] = pc
		pc += int64(len(b.Insns)) * insnBytes
	}
	return addr
}

func addPad(fn *asm.Function, b, target *asm.BB) {
	next := b.Next
	if next == nil {
		ice.Fatalf("%s: conditional branch at the end of the function", fn.Name)
	}
	n := len(b.Insns) - 1
	b.Insns[n] = invertBranch(fn, b.Insns[n], fn.BlockLabel(next))

	pad := fn.NewBB()
	pad.Kind = asm.BBGoto
	pad.Append(&asm.Insn{Op: asm.MOPb, Opnds: []asm.Operand{fn.BlockLabel(target)}})
	fn.LinkAfter(b, pad)
	b.ReplaceSucc(target, pad)
	pad.AddSucc(target)
}

// invertBranch builds the branch with the opposite condition to l.
func invertBranch(fn *asm.Function, br *asm.Insn, l *asm.Label) *asm.Insn {
	op := br.Op
	switch op {
	case asm.MOPcbz:
		op = asm.MOPcbnz
	case asm.MOPcbnz:
		op = asm.MOPcbz
	case asm.MOPtbz:
		op = asm.MOPtbnz
	case asm.MOPtbnz:
		op = asm.MOPtbz
	}
	opnds := make([]asm.Operand, len(br.Opnds))
	for i, o := range br.Opnds {
		switch o := o.(type) {
		case *asm.CondOperand:
			opnds[i] = fn.Pool.Cond(o.Code.Invert())
		case *asm.Label:
			opnds[i] = l
		default:
			opnds[i] = o
		}
	}
	return &asm.Insn{Op: op, Opnds: opnds, Comment: br.Comment}
}
