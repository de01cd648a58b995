package isel

import (
	"fmt"
	"math"
	"testing"

	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

var (
	inputs32 = []int64{0, 1, -1, 2, 7, -7, 8, -8, 100, -100, 12345, -12345, 0x7ffffff0, math.MaxInt32, math.MinInt32}
	inputs64 = []int64{0, 1, -1, 3, -3, 8, -9, 1 << 40, -(1 << 40) - 5, 0x123456789abcdef, math.MaxInt64, math.MinInt64}
)

func intTypes() []ir.PrimType { return []ir.PrimType{ir.I32, ir.U32, ir.I64, ir.U64} }

func inputsFor(ty ir.PrimType) []int64 {
	if ty.Bits() == 32 {
		return inputs32
	}
	return inputs64
}

// refBinary evaluates op on x and y the way Go does for the type.
func refBinary[T int32 | uint32 | int64 | uint64](op ir.BinOp, x, y T) T {
	switch op {
	case ir.Add:
		return x + y
	case ir.Sub:
		return x - y
	case ir.Mul:
		return x * y
	case ir.Div:
		return x / y
	case ir.Rem:
		return x % y
	case ir.Band:
		return x & y
	case ir.Bior:
		return x | y
	case ir.Bxor:
		return x ^ y
	case ir.Min:
		return min(x, y)
	case ir.Max:
		return max(x, y)
	}
	panic(fmt.Sprintf("no reference for operator %d", op))
}

// expect computes the expected register contents of a op b for ty.
func expect(op ir.BinOp, ty ir.PrimType, a, b int64) uint64 {
	bits := uint8(ty.Bits())
	sh := uint64(b) & uint64(bits-1)
	switch op {
	case ir.Shl:
		return uint64(a) << sh & mask(bits)
	case ir.Lshr:
		return uint64(a) & mask(bits) >> sh
	case ir.Ashr:
		return uint64(sext(uint64(a), bits)>>sh) & mask(bits)
	}
	switch ty {
	case ir.I32:
		return uint64(uint32(refBinary(op, int32(a), int32(b))))
	case ir.U32:
		return uint64(refBinary(op, uint32(a), uint32(b)))
	case ir.I64:
		return uint64(refBinary(op, a, b))
	}
	return refBinary(op, uint64(a), uint64(b))
}

// defined reports whether a op b is defined: no division by zero.
func defined(op ir.BinOp, ty ir.PrimType, b int64) bool {
	if op != ir.Div && op != ir.Rem {
		return true
	}
	return uint64(b)&mask(uint8(ty.Bits())) != 0
}

var binOps = []ir.BinOp{ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Rem, ir.Band, ir.Bior, ir.Bxor, ir.Shl, ir.Ashr, ir.Lshr, ir.Min, ir.Max}

func TestBinaryRegisterOperands(t *testing.T) {
	for _, ty := range intTypes() {
		for _, op := range binOps {
			t.Run(fmt.Sprintf("%s/%d", ty, op), func(t *testing.T) {
				fn := selectOne(t, binaryFunc(ty, ir.Binary{Op: op, Ty: ty, X: dread("a", ty), Y: dread("b", ty)}))
				for _, a := range inputsFor(ty) {
					for _, b := range inputsFor(ty) {
						if !defined(op, ty, b) {
							continue
						}
						if got, w := call2(t, fn, uint64(a), uint64(b)), expect(op, ty, a, b); got != w {
							t.Errorf("f(%d, %d) = %#x, want %#x", a, b, got, w)
						}
					}
				}
			})
		}
	}
}

func TestBinaryConstantOperands(t *testing.T) {
	consts := map[ir.BinOp][]int64{
		ir.Add:  {0, 1, 4095, 4096, 5000, 0x1000000, -1, -5000, math.MinInt32},
		ir.Sub:  {0, 1, 4095, 8192, 0x123456, -1, -4096},
		ir.Mul:  {0, 1, -1, 2, 3, 5, 6, 7, 9, -3, -6, -8, 10, 12345, 0x7fffffff},
		ir.Div:  {1, -1, 2, -2, 4, 8, -8, 16, 1024, 3, 7, -3, math.MinInt32, 0x80000000, 0xfffffff0},
		ir.Rem:  {1, -1, 2, -2, 4, 8, -8, 1024, 3, -7, math.MinInt32, 0x80000000, 0xfffffff0},
		ir.Band: {0, -1, 0xff, 0xff00ff, 0x12345, 0x7ffffff0},
		ir.Bior: {0, -1, 1, 0x5555, 0x12345},
		ir.Bxor: {0, -1, 0x0f0f0f0f, 0x1234},
		ir.Shl:  {0, 1, 7, 31, 32, 63},
		ir.Ashr: {0, 1, 7, 31, 63},
		ir.Lshr: {0, 1, 7, 31, 63},
		ir.Min:  {0, -1, 100, 5000, -5000},
		ir.Max:  {0, -1, 100, 5000, -5000},
	}
	for _, ty := range intTypes() {
		for _, op := range binOps {
			for _, c := range consts[op] {
				t.Run(fmt.Sprintf("%s/%d/%d", ty, op, c), func(t *testing.T) {
					fn := selectOne(t, binaryFunc(ty, ir.Binary{Op: op, Ty: ty, X: dread("a", ty), Y: konst(ty, c)}))
					for _, a := range inputsFor(ty) {
						if got, w := call2(t, fn, uint64(a), 0), expect(op, ty, a, c); got != w {
							t.Errorf("f(%d) = %#x, want %#x", a, got, w)
						}
					}
				})
			}
		}
	}
}

func TestConstantLeftOperand(t *testing.T) {
	for _, op := range []ir.BinOp{ir.Add, ir.Sub, ir.Mul, ir.Band, ir.Div} {
		fn := selectOne(t, binaryFunc(ir.I32, ir.Binary{Op: op, Ty: ir.I32, X: konst(ir.I32, 1000), Y: dread("a", ir.I32)}))
		for _, a := range []int64{1, 3, -7, 1000} {
			if got, w := call2(t, fn, uint64(a), 0), expect(op, ir.I32, 1000, a); got != w {
				t.Errorf("op %d: f(%d) = %#x, want %#x", op, a, got, w)
			}
		}
	}
}

func TestSignedDivisionByPowerOfTwoAvoidsDivide(t *testing.T) {
	fn := selectOne(t, binaryFunc(ir.I32, ir.Binary{Op: ir.Div, Ty: ir.I32, X: dread("a", ir.I32), Y: konst(ir.I32, 8)}))
	if n := countOp(fn, asm.MOPsdiv); n != 0 {
		t.Errorf("x / 8 uses %d sdiv", n)
	}
	if n := countOp(fn, asm.MOPasrrri); n != 2 {
		t.Errorf("x / 8 uses %d asr, want 2", n)
	}
	for _, a := range []int64{-9, -8, -7, -1, 0, 7, 8, 9} {
		if got, w := int32(call2(t, fn, uint64(a), 0)), int32(a)/8; got != w {
			t.Errorf("%d / 8 = %d, want %d", a, got, w)
		}
	}
}

func TestStrengthReducedForms(t *testing.T) {
	tests := []struct {
		op   ir.BinOp
		ty   ir.PrimType
		c    int64
		want []asm.Mop
	}{
		{ir.Mul, ir.I32, 9, []asm.Mop{asm.MOPaddrrrs}},
		{ir.Mul, ir.I32, 7, []asm.Mop{asm.MOPlslrri, asm.MOPsubrrr}},
		{ir.Mul, ir.I64, -8, []asm.Mop{asm.MOPlslrri, asm.MOPneg}},
		{ir.Div, ir.U32, 16, []asm.Mop{asm.MOPlsrrri}},
		{ir.Div, ir.U64, -2, []asm.Mop{asm.MOPcmnri, asm.MOPcset}},
		{ir.Rem, ir.U32, 64, []asm.Mop{asm.MOPandrri}},
		{ir.Rem, ir.I32, 4, []asm.Mop{asm.MOPnegs, asm.MOPandrri, asm.MOPandrri, asm.MOPcsneg}},
		{ir.Rem, ir.I32, 10, []asm.Mop{asm.MOPsdiv, asm.MOPmsub}},
	}
	for _, tt := range tests {
		fn := selectOne(t, binaryFunc(tt.ty, ir.Binary{Op: tt.op, Ty: tt.ty, X: dread("a", tt.ty), Y: konst(tt.ty, tt.c)}))
		var got []asm.Mop
		for _, op := range opcodes(fn) {
			switch op {
			case asm.MOPmovrr, asm.MOPret, asm.MOPmovz, asm.MOPmovn, asm.MOPmovk, asm.MOPorrrri:
				continue
			}
			got = append(got, op)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("%s %d %d: got %v, want %v", tt.ty, tt.op, tt.c, got, tt.want)
		}
	}
}

func TestShiftedOperandFolds(t *testing.T) {
	shl := ir.Binary{Op: ir.Shl, Ty: ir.I64, X: dread("b", ir.I64), Y: konst(ir.I64, 3)}
	fn := selectOne(t, binaryFunc(ir.I64, ir.Binary{Op: ir.Add, Ty: ir.I64, X: dread("a", ir.I64), Y: shl}))
	if n := countOp(fn, asm.MOPaddrrrs); n != 1 {
		t.Fatalf("a + (b << 3) did not fold: %v", opcodes(fn))
	}
	if got := call2(t, fn, 5, 7); got != 61 {
		t.Errorf("5 + (7 << 3) = %d, want 61", got)
	}
	fn = selectOne(t, binaryFunc(ir.I32, ir.Binary{Op: ir.Sub, Ty: ir.I32, X: dread("a", ir.I32),
		Y: ir.Binary{Op: ir.Shl, Ty: ir.I32, X: dread("b", ir.I32), Y: konst(ir.I32, 2)}}))
	if got := int32(call2(t, fn, 5, 7)); got != -23 {
		t.Errorf("5 - (7 << 2) = %d, want -23", got)
	}
}

func TestUnary(t *testing.T) {
	tests := []struct {
		op   ir.UnOp
		ty   ir.PrimType
		in   int64
		want uint64
	}{
		{ir.Neg, ir.I32, 5, 0xfffffffb},
		{ir.Neg, ir.I64, math.MinInt64, 1 << 63},
		{ir.Bnot, ir.U32, 0xf0, 0xffffff0f},
		{ir.Lnot, ir.I64, 0, 1},
		{ir.Lnot, ir.I64, -3, 0},
		{ir.Abs, ir.I32, -17, 17},
		{ir.Abs, ir.I32, 17, 17},
		{ir.Abs, ir.I64, -1 << 40, 1 << 40},
	}
	for _, tt := range tests {
		fn := selectOne(t, &ir.Function{
			Name:    "f",
			Result:  tt.ty,
			Formals: []ir.Symbol{formal("a", tt.ty)},
			Body:    []ir.Stmt{ir.Return{X: ir.Unary{Op: tt.op, Ty: tt.ty, X: dread("a", tt.ty)}}},
		})
		if got := call2(t, fn, uint64(tt.in), 0); got != tt.want {
			t.Errorf("%d %s (%d) = %#x, want %#x", tt.op, tt.ty, tt.in, got, tt.want)
		}
	}
}

func TestSubwordArithmeticWraps(t *testing.T) {
	fn := selectOne(t, &ir.Function{
		Name:    "f",
		Result:  ir.U8,
		Formals: []ir.Symbol{formal("a", ir.U8), formal("b", ir.U8)},
		Locals:  []ir.Symbol{local("v", ir.U8)},
		Body: []ir.Stmt{
			ir.Dassign{Sym: "v", X: ir.Binary{Op: ir.Mul, Ty: ir.U8, X: dread("a", ir.U8), Y: dread("b", ir.U8)}},
			ir.Return{X: dread("v", ir.U8)},
		},
	})
	if got := call2(t, fn, 200, 3); got != 88 {
		t.Errorf("u8 200 * 3 = %d, want 88", got)
	}
}
