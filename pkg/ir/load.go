package ir

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The YAML form mirrors the tree: every node is a mapping with an "op" key
// and the fields that op needs. Nodes decode into one flat struct first and
// are then converted to the typed node.

type rawNode struct {
	Op         string     `yaml:"op"`
	Ty         PrimType   `yaml:"ty"`
	From       PrimType   `yaml:"from"`
	OpndTy     PrimType   `yaml:"opnd_ty"`
	Sym        string     `yaml:"sym"`
	Name       string     `yaml:"name"`
	Preg       int        `yaml:"preg"`
	Value      int64      `yaml:"value"`
	FValue     float64    `yaml:"fvalue"`
	TypeIdx    int        `yaml:"type_idx"`
	Field      int        `yaml:"field"`
	Offset     int64      `yaml:"offset"`
	BitOffset  uint8      `yaml:"bit_offset"`
	Width      uint8      `yaml:"width"`
	ElemSize   int64      `yaml:"elem_size"`
	Label      string     `yaml:"label"`
	TagOffset  int64      `yaml:"tag_offset"`
	Cases      []Case     `yaml:"cases"`
	X          *rawNode   `yaml:"x"`
	Y          *rawNode   `yaml:"y"`
	Cond       *rawNode   `yaml:"cond"`
	Addr       *rawNode   `yaml:"addr"`
	Index      *rawNode   `yaml:"index"`
	Target     *rawNode   `yaml:"target"`
	Args       []*rawNode `yaml:"args"`
	ArgTypes   []int      `yaml:"arg_types"`
	Result     PrimType   `yaml:"result"`
	ResultSym  string     `yaml:"result_sym"`
	ResultPreg int        `yaml:"result_preg"`
	Deopt      []*rawNode `yaml:"deopt"`
	StackMap   bool       `yaml:"stack_map"`
	Tail       bool       `yaml:"tail"`

	line int
}

func (n *rawNode) UnmarshalYAML(v *yaml.Node) error {
	type plain rawNode
	if err := v.Decode((*plain)(n)); err != nil {
		return err
	}
	n.line = v.Line
	return nil
}

type rawSymbol struct {
	Name      string   `yaml:"name"`
	Ty        PrimType `yaml:"ty"`
	TypeIdx   int      `yaml:"type_idx"`
	Addressed bool     `yaml:"addressed"`
	Unused    bool     `yaml:"unused"`
}

type rawFunction struct {
	Name     string      `yaml:"name"`
	Conv     string      `yaml:"conv"`
	Result   PrimType    `yaml:"result"`
	ResultTy int         `yaml:"result_type"`
	Formals  []rawSymbol `yaml:"formals"`
	Locals   []rawSymbol `yaml:"locals"`
	Body     []*rawNode  `yaml:"body"`
}

type rawType struct {
	Kind   string   `yaml:"kind"`
	Name   string   `yaml:"name"`
	Prim   PrimType `yaml:"prim"`
	Elem   int      `yaml:"elem"`
	Fields []int    `yaml:"fields"`
}

type rawModule struct {
	Name    string         `yaml:"name"`
	Lang    string         `yaml:"lang"`
	Types   []rawType      `yaml:"types"`
	Globals []rawSymbol    `yaml:"globals"`
	Funcs   []*rawFunction `yaml:"funcs"`
}

var typeKinds = map[string]TypeKind{
	"scalar": KindScalar, "pointer": KindPointer, "ref": KindRef,
	"function": KindFunction, "struct": KindStruct, "class": KindClass,
	"union": KindUnion, "array": KindArray, "flexarray": KindFlexArray,
	"byname": KindByName, "void": KindVoid,
}

var callConvs = map[string]CallConv{
	"": CCDefault, "default": CCDefault, "aapcs64": CCDefault,
	"webkit_js": CCWebKitJS, "ghc": CCGHC,
}

var unOps = map[string]UnOp{
	"neg": Neg, "bnot": Bnot, "lnot": Lnot, "abs": Abs, "sqrt": Sqrt,
}

var binOps = map[string]BinOp{
	"add": Add, "sub": Sub, "mul": Mul, "div": Div, "rem": Rem,
	"band": Band, "bior": Bior, "bxor": Bxor,
	"shl": Shl, "ashr": Ashr, "lshr": Lshr, "min": Min, "max": Max,
}

var cmpOps = map[string]CmpOp{
	"eq": Eq, "ne": Ne, "lt": Lt, "le": Le, "gt": Gt, "ge": Ge, "cmp": Cmp3way,
}

var cvtKinds = map[string]CvtKind{
	"cvt": Cvt, "trunc": Trunc, "round": Round, "floor": Floor, "ceil": Ceil,
}

// LoadFile reads a module from a YAML file.
func LoadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	m, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return m, nil
}

// Load reads a module from YAML.
func Load(r io.Reader) (*Module, error) {
	var raw rawModule
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding module")
	}
	return raw.convert()
}

func (rm *rawModule) convert() (*Module, error) {
	m := &Module{Name: rm.Name}
	switch rm.Lang {
	case "", "c":
		m.Lang = LangC
	case "java":
		m.Lang = LangJava
	default:
		return nil, errors.Errorf("unknown language %q", rm.Lang)
	}
	for i, rt := range rm.Types {
		k, ok := typeKinds[rt.Kind]
		if !ok {
			return nil, errors.Errorf("type %d: unknown kind %q", i, rt.Kind)
		}
		m.Types = append(m.Types, TypeDecl{Kind: k, Name: rt.Name, Prim: rt.Prim, Elem: rt.Elem, Fields: rt.Fields})
	}
	for _, g := range rm.Globals {
		m.Globals = append(m.Globals, Global{Name: g.Name, Ty: g.Ty, TypeIdx: g.TypeIdx})
	}
	for _, rf := range rm.Funcs {
		f, err := rf.convert()
		if err != nil {
			return nil, errors.Wrapf(err, "function %s", rf.Name)
		}
		m.Funcs = append(m.Funcs, f)
	}
	return m, nil
}

func (rs rawSymbol) symbol(st Storage) Symbol {
	return Symbol{Name: rs.Name, Ty: rs.Ty, TypeIdx: rs.TypeIdx, Storage: st, Addressed: rs.Addressed, Unused: rs.Unused}
}

func (rf *rawFunction) convert() (*Function, error) {
	conv, ok := callConvs[rf.Conv]
	if !ok {
		return nil, errors.Errorf("unknown calling convention %q", rf.Conv)
	}
	f := &Function{Name: rf.Name, Conv: conv, Result: rf.Result, ResultTy: rf.ResultTy}
	for _, s := range rf.Formals {
		f.Formals = append(f.Formals, s.symbol(Formal))
	}
	for _, s := range rf.Locals {
		f.Locals = append(f.Locals, s.symbol(Auto))
	}
	for _, n := range rf.Body {
		s, err := n.stmt()
		if err != nil {
			return nil, err
		}
		f.Body = append(f.Body, s)
	}
	return f, nil
}

func (n *rawNode) errorf(format string, args ...interface{}) error {
	return errors.Errorf("line %d: "+format, append([]interface{}{n.line}, args...)...)
}

func (n *rawNode) stmt() (Stmt, error) {
	switch n.Op {
	case "dassign":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Dassign{Sym: n.Sym, X: x}, nil
	case "regassign":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Regassign{Preg: n.Preg, Ty: n.Ty, X: x}, nil
	case "iassign":
		addr, err := n.Addr.expr()
		if err != nil {
			return nil, err
		}
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Iassign{Ty: n.Ty, TypeIdx: n.TypeIdx, Field: n.Field, Addr: addr, Offset: n.Offset, X: x}, nil
	case "call", "icall":
		c := Call{
			Callee: n.Name, ArgTypes: n.ArgTypes, Result: n.Result,
			ResultSym: n.ResultSym, ResultPreg: n.ResultPreg,
			StackMap: n.StackMap, Tail: n.Tail,
		}
		var err error
		if n.Op == "icall" {
			if c.Target, err = n.Target.expr(); err != nil {
				return nil, err
			}
		}
		if c.Args, err = exprs(n.Args); err != nil {
			return nil, err
		}
		if c.Deopt, err = exprs(n.Deopt); err != nil {
			return nil, err
		}
		return c, nil
	case "return":
		if n.X == nil {
			return Return{}, nil
		}
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Return{X: x}, nil
	case "label":
		return Label{Name: n.Label}, nil
	case "goto":
		return Goto{Label: n.Label}, nil
	case "brtrue", "brfalse":
		c, err := n.Cond.expr()
		if err != nil {
			return nil, err
		}
		return CondGoto{IfTrue: n.Op == "brtrue", Cond: c, Label: n.Label}, nil
	case "rangegoto":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return RangeGoto{X: x, TagOffset: n.TagOffset, Cases: n.Cases}, nil
	case "eval":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Eval{X: x}, nil
	}
	return nil, n.errorf("unknown statement %q", n.Op)
}

func exprs(ns []*rawNode) ([]Expr, error) {
	var out []Expr
	for _, n := range ns {
		e, err := n.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (n *rawNode) expr() (Expr, error) {
	if n == nil {
		return nil, errors.New("missing operand")
	}
	if op, ok := unOps[n.Op]; ok {
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Unary{Op: op, Ty: n.Ty, X: x}, nil
	}
	if op, ok := binOps[n.Op]; ok {
		x, y, err := n.pair()
		if err != nil {
			return nil, err
		}
		return Binary{Op: op, Ty: n.Ty, X: x, Y: y}, nil
	}
	if op, ok := cmpOps[n.Op]; ok {
		x, y, err := n.pair()
		if err != nil {
			return nil, err
		}
		return Compare{Op: op, Ty: n.Ty, OpndTy: n.OpndTy, X: x, Y: y}, nil
	}
	if k, ok := cvtKinds[n.Op]; ok {
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Convert{Kind: k, Ty: n.Ty, From: n.From, X: x}, nil
	}
	switch n.Op {
	case "const":
		return ConstVal{Ty: n.Ty, Value: n.Value}, nil
	case "fconst":
		return FloatConst{Ty: n.Ty, Value: n.FValue}, nil
	case "dread":
		return Dread{Ty: n.Ty, Sym: n.Sym}, nil
	case "regread":
		return Regread{Ty: n.Ty, Preg: n.Preg}, nil
	case "iread":
		addr, err := n.Addr.expr()
		if err != nil {
			return nil, err
		}
		return Iread{Ty: n.Ty, TypeIdx: n.TypeIdx, Field: n.Field, Addr: addr, Offset: n.Offset}, nil
	case "addrof":
		return AddrOf{Sym: n.Sym, Offset: n.Offset}, nil
	case "addroffunc":
		return AddrOfFunc{Name: n.Name}, nil
	case "retype":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Retype{Ty: n.Ty, X: x}, nil
	case "extractbits":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Extractbits{Ty: n.Ty, X: x, Offset: n.BitOffset, Width: n.Width}, nil
	case "sext", "zext":
		x, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return Extend{Signed: n.Op == "sext", Ty: n.Ty, X: x, Width: n.Width}, nil
	case "depositbits":
		x, y, err := n.pair()
		if err != nil {
			return nil, err
		}
		return Depositbits{Ty: n.Ty, X: x, Y: y, Offset: n.BitOffset, Width: n.Width}, nil
	case "select":
		c, err := n.Cond.expr()
		if err != nil {
			return nil, err
		}
		x, y, err := n.pair()
		if err != nil {
			return nil, err
		}
		return Select{Ty: n.Ty, Cond: c, X: x, Y: y}, nil
	case "arraylength":
		a, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		return ArrayLength{Array: a}, nil
	case "arrayelemaddr":
		a, err := n.X.expr()
		if err != nil {
			return nil, err
		}
		i, err := n.Index.expr()
		if err != nil {
			return nil, err
		}
		return ArrayElemAddr{Array: a, Index: i, ElemSize: n.ElemSize}, nil
	}
	return nil, n.errorf("unknown expression %q", n.Op)
}

func (n *rawNode) pair() (Expr, Expr, error) {
	x, err := n.X.expr()
	if err != nil {
		return nil, nil, err
	}
	y, err := n.Y.expr()
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}
