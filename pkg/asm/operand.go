// Package asm defines the AArch64 machine representation produced by
// instruction selection: operands, opcodes, instructions and blocks, plus a
// GNU as printer.
package asm

import "fmt"

// RegNum numbers a register. Physical numbers come first; virtual registers
// start at FirstVirtual.
type RegNum uint32

// Physical register numbers.
const (
	R0  RegNum = 0
	R8  RegNum = 8 // indirect result location
	R16 RegNum = 16
	R17 RegNum = 17
	R19 RegNum = 19
	R28 RegNum = 28
	FP  RegNum = 29
	LR  RegNum = 30
	SP  RegNum = 31
	ZR  RegNum = 32
	V0  RegNum = 33
	V8  RegNum = V0 + 8
	V31 RegNum = V0 + 31

	RFlag RegNum = 65
	// ArgP points at the incoming stack arguments, the caller's SP at the
	// call. Frame finalization rewrites it to FP plus the frame size.
	ArgP RegNum = 66

	FirstVirtual RegNum = 100
)

// RegClass is the register file a register belongs to.
type RegClass uint8

const (
	ClassInt   RegClass = iota
	ClassFloat          // SIMD&FP
	ClassFlags          // NZCV
	ClassVary           // integer register holding a frame-size dependent address
)

// Operand is one operand of a machine instruction. The set of operand kinds
// is closed.
type Operand interface {
	implOperand()
}

// Register is a physical or virtual register of a given width in bits.
type Register struct {
	Num   RegNum
	Size  uint8
	Class RegClass
}

// IsVirtual reports whether the register awaits allocation.
func (r *Register) IsVirtual() bool { return r.Num >= FirstVirtual }

// IsInt reports whether the register lives in the integer file.
func (r *Register) IsInt() bool { return r.Class == ClassInt || r.Class == ClassVary }

// IsFloat reports whether the register lives in the SIMD&FP file.
func (r *Register) IsFloat() bool { return r.Class == ClassFloat }

// Is64 reports whether the register is used as a 64-bit register.
func (r *Register) Is64() bool { return r.Size == 64 }

// Immediate is an integer constant operand. Movable records whether a
// single MOVZ, MOVN or ORR can load it. Vary marks a frame offset that still
// changes when the final frame size is known.
type Immediate struct {
	Value   int64
	Size    uint8
	Signed  bool
	Movable bool
	Vary    bool
}

// AddrMode is the shape of a memory reference.
type AddrMode uint8

const (
	AddrBaseOffset AddrMode = iota // [base, #offset]
	AddrBaseIndex                  // [base, index{, extend #amount}]
	AddrLo12                       // [base, #:lo12:symbol]
)

// MemoryRef is a memory operand. Size is the access size in bits.
type MemoryRef struct {
	Mode   AddrMode
	Base   *Register
	Index  *Register
	Extend *ExtendShift
	Offset *Immediate
	Symbol string
	Size   uint8
}

// OffsetValue returns the constant offset, or 0 when there is none.
func (m *MemoryRef) OffsetValue() int64 {
	if m.Offset == nil {
		return 0
	}
	return m.Offset.Value
}

// Label is a branch target.
type Label struct {
	Name string
}

// Cond is an AArch64 condition code.
type Cond uint8

const (
	CondEQ Cond = iota // Equal (Z=1)
	CondNE             // Not equal (Z=0)
	CondHS             // Carry set / unsigned higher or same
	CondLO             // Carry clear / unsigned lower
	CondMI             // Minus / negative
	CondPL             // Plus / positive or zero
	CondVS             // Overflow
	CondVC             // No overflow
	CondHI             // Unsigned higher
	CondLS             // Unsigned lower or same
	CondGE             // Signed greater or equal
	CondLT             // Signed less than
	CondGT             // Signed greater than
	CondLE             // Signed less or equal
	CondAL             // Always
)

// String returns the condition code as a string
func (c Cond) String() string {
	names := []string{
		"eq", "ne", "hs", "lo", "mi", "pl", "vs", "vc",
		"hi", "ls", "ge", "lt", "gt", "le", "al",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "?"
}

// Invert returns the opposite condition. Conditions come in pairs that
// differ in the low bit.
func (c Cond) Invert() Cond {
	if c == CondAL {
		return CondAL
	}
	return c ^ 1
}

// CondOperand wraps a condition code.
type CondOperand struct {
	Code Cond
}

// ShiftKind is the shift applied to a register or immediate operand.
type ShiftKind uint8

const (
	ShiftLSL ShiftKind = iota
	ShiftLSR
	ShiftASR
)

func (k ShiftKind) String() string {
	return [...]string{"lsl", "lsr", "asr"}[k]
}

// BitShift is a shift amount attached to the preceding operand.
type BitShift struct {
	Kind   ShiftKind
	Amount uint8
}

// ExtendKind is a register extension.
type ExtendKind uint8

const (
	ExtUXTW ExtendKind = iota
	ExtSXTW
	ExtUXTX // also printed as lsl
	ExtSXTX
)

func (k ExtendKind) String() string {
	return [...]string{"uxtw", "sxtw", "lsl", "sxtx"}[k]
}

// ExtendShift extends an index register and shifts it.
type ExtendShift struct {
	Kind   ExtendKind
	Amount uint8
}

// FuncName is a call target.
type FuncName struct {
	Name string
}

// SymbolRef is a symbol address operand for ADRP (page) and the matching
// :lo12: ADD.
type SymbolRef struct {
	Name string
	Lo12 bool
}

func (*Register) implOperand()    {}
func (*Immediate) implOperand()   {}
func (*MemoryRef) implOperand()   {}
func (*Label) implOperand()       {}
func (*CondOperand) implOperand() {}
func (*BitShift) implOperand()    {}
func (*ExtendShift) implOperand() {}
func (*FuncName) implOperand()    {}
func (*SymbolRef) implOperand()   {}

// OperandKind classifies operands for opcode descriptors.
type OperandKind uint8

const (
	KindReg OperandKind = iota
	KindImm
	KindMem
	KindLabel
	KindCond
	KindShift
	KindExtend
	KindFunc
	KindSym
)

// KindOf returns the kind of an operand.
func KindOf(o Operand) OperandKind {
	switch o.(type) {
	case *Register:
		return KindReg
	case *Immediate:
		return KindImm
	case *MemoryRef:
		return KindMem
	case *Label:
		return KindLabel
	case *CondOperand:
		return KindCond
	case *BitShift:
		return KindShift
	case *ExtendShift:
		return KindExtend
	case *FuncName:
		return KindFunc
	case *SymbolRef:
		return KindSym
	}
	panic(fmt.Sprintf("asm: unknown operand %T", o))
}
