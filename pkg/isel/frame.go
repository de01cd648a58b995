package isel

import (
	"golang.org/x/exp/constraints"

	"github.com/raymyers/ralph-isel/pkg/asm"
)

const stackAlignment = 16

// Frame layout seen by selected code:
//
//	| Incoming stack arguments  |  argp + offset
//	+---------------------------+  <- argp
//	| Callee-saved registers    |  size known after allocation
//	| Locals and copies         |  FP + 16 + slot
//	| LR, old FP                |
//	+---------------------------+  <- FP
//	| Outgoing arguments        |  SP + offset
//	+---------------------------+  <- SP
//
// Slots are addressed from FP and incoming arguments from argp, both with
// vary offsets. Frame finalization rewrites argp to FP and adds the
// distance that is only known once the frame is complete.
type frameLayout struct {
	size int64 // bytes of locals, starting after the FP/LR pair
	// slots maps frame-resident symbols to their offset from FP.
	slots map[string]int64
}

func newFrameLayout() *frameLayout {
	return &frameLayout{slots: make(map[string]int64)}
}

// alloc reserves size bytes at the given alignment and returns the offset
// from FP.
func (f *frameLayout) alloc(size, align int64) int64 {
	if align < 1 {
		align = 1
	}
	f.size = alignUp(f.size, align)
	ofs := 16 + f.size
	f.size += size
	return ofs
}

// allocSym places a symbol once.
func (f *frameLayout) allocSym(name string, size, align int64) int64 {
	if ofs, ok := f.slots[name]; ok {
		return ofs
	}
	ofs := f.alloc(size, align)
	f.slots[name] = ofs
	return ofs
}

// frameSize returns the frame estimate: the FP/LR pair plus locals,
// rounded to the stack alignment.
func (f *frameLayout) frameSize() int64 {
	return alignUp(16+f.size, stackAlignment)
}

// alignUp rounds n up to a multiple of align
func alignUp[T constraints.Integer](n, align T) T {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// frameRef returns the interned [fp, #ofs] reference for a frame slot.
func frameRef(pool *asm.Pool, ofs int64, bits uint8) *asm.MemoryRef {
	return pool.CreateMemOpnd(pool.PhysReg(asm.FP, 64), ofs, bits, true)
}

// argRef returns the interned [argp, #ofs] reference for an incoming stack
// argument.
func argRef(pool *asm.Pool, ofs int64, bits uint8) *asm.MemoryRef {
	return pool.CreateMemOpnd(pool.PhysReg(asm.ArgP, 64), ofs, bits, true)
}
