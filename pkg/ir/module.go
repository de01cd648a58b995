package ir

// Storage classifies a symbol.
type Storage int

const (
	Auto Storage = iota
	Formal
	Static
)

// Lang is the source language of a module. It decides how the type table
// may grow.
type Lang int

const (
	LangC Lang = iota
	LangJava
)

// CallConv names a calling convention.
type CallConv int

const (
	CCDefault  CallConv = iota // AAPCS64
	CCWebKitJS                 // all arguments on the stack
	CCGHC                      // arguments in callee-saved registers
)

// Symbol is a variable visible in a function.
type Symbol struct {
	Name      string
	Ty        PrimType
	TypeIdx   int
	Storage   Storage
	Addressed bool // address taken, must live in memory
	Unused    bool // formal never read by the callee
}

// Function is one function body.
type Function struct {
	Name     string
	Conv     CallConv
	Formals  []Symbol
	Locals   []Symbol
	Result   PrimType
	ResultTy int // type index of an aggregate result
	Body     []Stmt
}

// Symbol looks up a formal or local by name.
func (f *Function) Symbol(name string) (Symbol, bool) {
	for _, s := range f.Formals {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range f.Locals {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// TypeKind classifies an entry of the module type table.
type TypeKind int

const (
	KindScalar TypeKind = iota
	KindPointer
	KindRef
	KindFunction
	KindStruct
	KindClass
	KindUnion
	KindArray
	KindFlexArray
	KindByName
	KindVoid
)

// TypeDecl is one entry of the module type table.
type TypeDecl struct {
	Kind   TypeKind
	Name   string
	Prim   PrimType
	Elem   int   // element type for pointers and arrays
	Fields []int // field types for structs, classes and unions
}

// Global is a module-level variable.
type Global struct {
	Name    string
	Ty      PrimType
	TypeIdx int
}

// Module is one translation unit.
type Module struct {
	Name    string
	Lang    Lang
	Types   []TypeDecl
	Globals []Global
	Funcs   []*Function
}

// Func looks up a function by name.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global looks up a global by name.
func (m *Module) Global(name string) (Global, bool) {
	for _, g := range m.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return Global{}, false
}

// Lookup resolves name in f's scope, then among the module's globals.
func (m *Module) Lookup(f *Function, name string) (Symbol, bool) {
	if s, ok := f.Symbol(name); ok {
		return s, true
	}
	if g, ok := m.Global(name); ok {
		return Symbol{Name: g.Name, Ty: g.Ty, TypeIdx: g.TypeIdx, Storage: Static, Addressed: true}, true
	}
	return Symbol{}, false
}
