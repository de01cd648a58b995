package ir

// Expr is an IR expression node.
type Expr interface {
	implExpr()
	Type() PrimType
}

// Stmt is an IR statement node.
type Stmt interface {
	implStmt()
}

// UnOp is a unary operator.
type UnOp int

const (
	Neg UnOp = iota
	Bnot
	Lnot
	Abs
	Sqrt
)

// BinOp is a binary arithmetic or logical operator.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Rem
	Band
	Bior
	Bxor
	Shl
	Ashr
	Lshr
	Min
	Max
)

// IsCommutative reports whether operands may be swapped.
func (op BinOp) IsCommutative() bool {
	switch op {
	case Add, Mul, Band, Bior, Bxor, Min, Max:
		return true
	}
	return false
}

// CmpOp is a comparison operator.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Cmp3way // yields -1, 0 or 1
)

// Swapped returns the operator for swapped operands.
func (op CmpOp) Swapped() CmpOp {
	switch op {
	case Lt:
		return Gt
	case Le:
		return Ge
	case Gt:
		return Lt
	case Ge:
		return Le
	}
	return op
}

// Negated returns the logical negation of op.
func (op CmpOp) Negated() CmpOp {
	switch op {
	case Eq:
		return Ne
	case Ne:
		return Eq
	case Lt:
		return Ge
	case Le:
		return Gt
	case Gt:
		return Le
	case Ge:
		return Lt
	}
	return op
}

// CvtKind distinguishes conversion flavors.
type CvtKind int

const (
	Cvt   CvtKind = iota // plain conversion, truncating for float to int
	Trunc                // float to int toward zero
	Round                // float to int to nearest, ties away
	Floor
	Ceil
)

// --- Expressions ---

// ConstVal is an integer constant.
type ConstVal struct {
	Ty    PrimType
	Value int64
}

// FloatConst is a floating-point constant.
type FloatConst struct {
	Ty    PrimType
	Value float64
}

// Dread reads a named variable.
type Dread struct {
	Ty  PrimType
	Sym string
}

// Regread reads a pseudo register.
type Regread struct {
	Ty   PrimType
	Preg int
}

// Iread loads through an address. Field is 1-based into TypeIdx's fields;
// zero means no field offset.
type Iread struct {
	Ty      PrimType
	TypeIdx int
	Field   int
	Addr    Expr
	Offset  int64
}

// AddrOf takes the address of a named variable.
type AddrOf struct {
	Sym    string
	Offset int64
}

// AddrOfFunc takes the address of a function.
type AddrOfFunc struct {
	Name string
}

// Unary applies a unary operator.
type Unary struct {
	Op UnOp
	Ty PrimType
	X  Expr
}

// Binary applies a binary operator.
type Binary struct {
	Op   BinOp
	Ty   PrimType
	X, Y Expr
}

// Compare compares X and Y of type OpndTy, yielding a value of type Ty.
type Compare struct {
	Op     CmpOp
	Ty     PrimType
	OpndTy PrimType
	X, Y   Expr
}

// Convert converts X from From to Ty.
type Convert struct {
	Kind CvtKind
	Ty   PrimType
	From PrimType
	X    Expr
}

// Retype reinterprets the bits of X as Ty.
type Retype struct {
	Ty PrimType
	X  Expr
}

// Extractbits reads Width bits of X starting at bit Offset. The result is
// sign-extended when Ty is signed.
type Extractbits struct {
	Ty     PrimType
	X      Expr
	Offset uint8
	Width  uint8
}

// Extend sign- or zero-extends the low Width bits of X.
type Extend struct {
	Signed bool
	Ty     PrimType
	X      Expr
	Width  uint8
}

// Depositbits replaces Width bits of X at Offset with the low bits of Y.
type Depositbits struct {
	Ty     PrimType
	X, Y   Expr
	Offset uint8
	Width  uint8
}

// Select yields X when Cond is nonzero, else Y.
type Select struct {
	Ty   PrimType
	Cond Expr
	X, Y Expr
}

// ArrayLength reads the length of a managed array.
type ArrayLength struct {
	Array Expr
}

// ArrayElemAddr computes the address of element Index of a managed array.
type ArrayElemAddr struct {
	Array    Expr
	Index    Expr
	ElemSize int64
}

func (ConstVal) implExpr()      {}
func (FloatConst) implExpr()    {}
func (Dread) implExpr()         {}
func (Regread) implExpr()       {}
func (Iread) implExpr()         {}
func (AddrOf) implExpr()        {}
func (AddrOfFunc) implExpr()    {}
func (Unary) implExpr()         {}
func (Binary) implExpr()        {}
func (Compare) implExpr()       {}
func (Convert) implExpr()       {}
func (Retype) implExpr()        {}
func (Extractbits) implExpr()   {}
func (Extend) implExpr()        {}
func (Depositbits) implExpr()   {}
func (Select) implExpr()        {}
func (ArrayLength) implExpr()   {}
func (ArrayElemAddr) implExpr() {}

func (e ConstVal) Type() PrimType    { return e.Ty }
func (e FloatConst) Type() PrimType  { return e.Ty }
func (e Dread) Type() PrimType       { return e.Ty }
func (e Regread) Type() PrimType     { return e.Ty }
func (e Iread) Type() PrimType       { return e.Ty }
func (AddrOf) Type() PrimType        { return Ptr }
func (AddrOfFunc) Type() PrimType    { return Ptr }
func (e Unary) Type() PrimType       { return e.Ty }
func (e Binary) Type() PrimType      { return e.Ty }
func (e Compare) Type() PrimType     { return e.Ty }
func (e Convert) Type() PrimType     { return e.Ty }
func (e Retype) Type() PrimType      { return e.Ty }
func (e Extractbits) Type() PrimType { return e.Ty }
func (e Extend) Type() PrimType      { return e.Ty }
func (e Depositbits) Type() PrimType { return e.Ty }
func (e Select) Type() PrimType      { return e.Ty }
func (ArrayLength) Type() PrimType   { return I32 }
func (ArrayElemAddr) Type() PrimType { return Ptr }

// --- Statements ---

// Dassign stores into a named variable.
type Dassign struct {
	Sym string
	X   Expr
}

// Regassign stores into a pseudo register.
type Regassign struct {
	Preg int
	Ty   PrimType
	X    Expr
}

// Iassign stores X through an address.
type Iassign struct {
	Ty      PrimType
	TypeIdx int
	Field   int
	Addr    Expr
	Offset  int64
	X       Expr
}

// Call calls Callee directly, or Target indirectly when Target is set.
// The result, if any, goes to ResultSym or ResultPreg.
type Call struct {
	Callee     string
	Target     Expr
	Args       []Expr
	ArgTypes   []int // type index per aggregate argument, 0 otherwise
	Result     PrimType
	ResultSym  string
	ResultPreg int
	Deopt      []Expr
	StackMap   bool
	Tail       bool
}

// Return returns X, or nothing when X is nil.
type Return struct {
	X Expr
}

// Label starts a new block.
type Label struct {
	Name string
}

// Goto branches unconditionally.
type Goto struct {
	Label string
}

// CondGoto branches to Label when Cond is nonzero (IfTrue) or zero.
type CondGoto struct {
	IfTrue bool
	Cond   Expr
	Label  string
}

// Case is one arm of a RangeGoto.
type Case struct {
	Tag   int64  `yaml:"tag"`
	Label string `yaml:"label"`
}

// RangeGoto dispatches on X - TagOffset through a jump table. Values with
// no case fall through.
type RangeGoto struct {
	X         Expr
	TagOffset int64
	Cases     []Case
}

// Eval evaluates X for its side effects.
type Eval struct {
	X Expr
}

func (Dassign) implStmt()   {}
func (Regassign) implStmt() {}
func (Iassign) implStmt()   {}
func (Call) implStmt()      {}
func (Return) implStmt()    {}
func (Label) implStmt()     {}
func (Goto) implStmt()      {}
func (CondGoto) implStmt()  {}
func (RangeGoto) implStmt() {}
func (Eval) implStmt()      {}
