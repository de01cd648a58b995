package asm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Pool interns operands for one function. Physical registers, offset
// immediates, memory references and the small descriptor operands are
// shared by value; plain immediates are always fresh.
type Pool struct {
	phys    map[physKey]*Register
	virt    map[RegNum]*Register
	views   map[physKey]*Register
	offsets map[offsetKey]*Immediate
	mems    map[uint64][]*MemoryRef
	labels  map[string]*Label
	funcs   map[string]*FuncName
	syms    map[SymbolRef]*SymbolRef
	shifts  map[BitShift]*BitShift
	exts    map[ExtendShift]*ExtendShift
	conds   [CondAL + 1]*CondOperand

	nextVirt RegNum
}

type physKey struct {
	num  RegNum
	size uint8
}

type offsetKey struct {
	value int64
	size  uint8
	vary  bool
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		phys:     make(map[physKey]*Register),
		virt:     make(map[RegNum]*Register),
		views:    make(map[physKey]*Register),
		offsets:  make(map[offsetKey]*Immediate),
		mems:     make(map[uint64][]*MemoryRef),
		labels:   make(map[string]*Label),
		funcs:    make(map[string]*FuncName),
		syms:     make(map[SymbolRef]*SymbolRef),
		shifts:   make(map[BitShift]*BitShift),
		exts:     make(map[ExtendShift]*ExtendShift),
		nextVirt: FirstVirtual,
	}
}

// sizeClass normalizes a register width to 32, 64 or 128 bits.
func sizeClass(size uint8) uint8 {
	switch {
	case size <= 32:
		return 32
	case size <= 64:
		return 64
	}
	return 128
}

// PhysReg returns the canonical physical register of the given width.
func (p *Pool) PhysReg(num RegNum, size uint8) *Register {
	k := physKey{num, sizeClass(size)}
	if r, ok := p.phys[k]; ok {
		return r
	}
	r := &Register{Num: num, Size: k.size, Class: classOf(num)}
	p.phys[k] = r
	return r
}

func classOf(num RegNum) RegClass {
	switch {
	case num >= V0 && num <= V31:
		return ClassFloat
	case num == RFlag:
		return ClassFlags
	case num == ArgP:
		return ClassVary
	}
	return ClassInt
}

// ZeroReg returns wzr or xzr.
func (p *Pool) ZeroReg(size uint8) *Register { return p.PhysReg(ZR, size) }

// Flags returns the condition flags register.
func (p *Pool) Flags() *Register { return p.PhysReg(RFlag, 32) }

// NewVReg allocates a fresh virtual register.
func (p *Pool) NewVReg(size uint8, class RegClass) *Register {
	r := &Register{Num: p.nextVirt, Size: size, Class: class}
	p.virt[r.Num] = r
	p.nextVirt++
	return r
}

// VReg returns a previously allocated virtual register by number.
func (p *Pool) VReg(num RegNum) (*Register, bool) {
	r, ok := p.virt[num]
	return r, ok
}

// View returns r used at another width, as w5 is to x5. Views of a virtual
// register share its number.
func (p *Pool) View(r *Register, size uint8) *Register {
	if !r.IsVirtual() {
		return p.PhysReg(r.Num, size)
	}
	if c, ok := p.virt[r.Num]; ok && c.Size == size {
		return c
	}
	if r.Size == size {
		return r
	}
	k := physKey{r.Num, size}
	if v, ok := p.views[k]; ok {
		return v
	}
	v := &Register{Num: r.Num, Size: size, Class: r.Class}
	p.views[k] = v
	return v
}

// NumVRegs returns how many virtual registers were allocated.
func (p *Pool) NumVRegs() int { return int(p.nextVirt - FirstVirtual) }

// NewImm creates a fresh immediate and records whether one instruction can
// load it.
func (p *Pool) NewImm(v int64, size uint8, signed bool) *Immediate {
	bits := int(size)
	if bits != 32 {
		bits = 64
	}
	return &Immediate{
		Value:   v,
		Size:    size,
		Signed:  signed,
		Movable: IsSingleInstructionMovable(uint64(v), bits),
	}
}

// GetOrCreateOfstOpnd returns the shared offset immediate.
func (p *Pool) GetOrCreateOfstOpnd(v int64, size uint8, vary bool) *Immediate {
	k := offsetKey{v, size, vary}
	if o, ok := p.offsets[k]; ok {
		return o
	}
	o := &Immediate{Value: v, Size: size, Signed: true, Vary: vary,
		Movable: IsSingleInstructionMovable(uint64(v), 64)}
	p.offsets[k] = o
	return o
}

// GetOrCreateMemOpnd returns the shared memory reference structurally equal
// to m. The argument is copied; callers may reuse it.
func (p *Pool) GetOrCreateMemOpnd(m MemoryRef) *MemoryRef {
	h := hashMem(&m)
	for _, c := range p.mems[h] {
		if equalMem(c, &m) {
			return c
		}
	}
	c := new(MemoryRef)
	*c = m
	p.mems[h] = append(p.mems[h], c)
	return c
}

// CreateMemOpnd builds [base, #offset] for an access of size bits.
func (p *Pool) CreateMemOpnd(base *Register, offset int64, size uint8, vary bool) *MemoryRef {
	return p.GetOrCreateMemOpnd(MemoryRef{
		Mode:   AddrBaseOffset,
		Base:   base,
		Offset: p.GetOrCreateOfstOpnd(offset, 64, vary),
		Size:   size,
	})
}

func hashMem(m *MemoryRef) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}
	put(uint64(m.Mode)<<8 | uint64(m.Size))
	put(regKey(m.Base))
	put(regKey(m.Index))
	if m.Extend != nil {
		put(1<<16 | uint64(m.Extend.Kind)<<8 | uint64(m.Extend.Amount))
	} else {
		put(0)
	}
	if m.Offset != nil {
		put(uint64(m.Offset.Value))
		if m.Offset.Vary {
			put(1)
		} else {
			put(2)
		}
	} else {
		put(0)
	}
	d.WriteString(m.Symbol)
	return d.Sum64()
}

func regKey(r *Register) uint64 {
	if r == nil {
		return 0
	}
	return uint64(r.Num)<<8 | uint64(r.Size) | 1<<40
}

func equalMem(a, b *MemoryRef) bool {
	if a.Mode != b.Mode || a.Size != b.Size || a.Symbol != b.Symbol {
		return false
	}
	if a.Base != b.Base || a.Index != b.Index {
		return false
	}
	if (a.Extend == nil) != (b.Extend == nil) || a.Extend != nil && *a.Extend != *b.Extend {
		return false
	}
	if (a.Offset == nil) != (b.Offset == nil) {
		return false
	}
	return a.Offset == nil || a.Offset.Value == b.Offset.Value && a.Offset.Vary == b.Offset.Vary
}

// Label returns the shared label with the given name.
func (p *Pool) Label(name string) *Label {
	if l, ok := p.labels[name]; ok {
		return l
	}
	l := &Label{Name: name}
	p.labels[name] = l
	return l
}

// FuncName returns the shared call target operand.
func (p *Pool) FuncName(name string) *FuncName {
	if f, ok := p.funcs[name]; ok {
		return f
	}
	f := &FuncName{Name: name}
	p.funcs[name] = f
	return f
}

// Symbol returns the shared symbol operand.
func (p *Pool) Symbol(name string, lo12 bool) *SymbolRef {
	k := SymbolRef{Name: name, Lo12: lo12}
	if s, ok := p.syms[k]; ok {
		return s
	}
	s := &SymbolRef{Name: name, Lo12: lo12}
	p.syms[k] = s
	return s
}

// Cond returns the shared condition operand.
func (p *Pool) Cond(c Cond) *CondOperand {
	if p.conds[c] == nil {
		p.conds[c] = &CondOperand{Code: c}
	}
	return p.conds[c]
}

// Shift returns the shared shift operand.
func (p *Pool) Shift(kind ShiftKind, amount uint8) *BitShift {
	k := BitShift{kind, amount}
	if s, ok := p.shifts[k]; ok {
		return s
	}
	s := &BitShift{kind, amount}
	p.shifts[k] = s
	return s
}

// Extend returns the shared extend operand.
func (p *Pool) Extend(kind ExtendKind, amount uint8) *ExtendShift {
	k := ExtendShift{kind, amount}
	if e, ok := p.exts[k]; ok {
		return e
	}
	e := &ExtendShift{kind, amount}
	p.exts[k] = e
	return e
}
