// Package typelayout computes size and alignment of module types lazily.
//
// Layout facts live in parallel arrays indexed by type index. The arrays only
// grow, so an index handed out once stays valid for the rest of the
// compilation unit. A nonzero field count marks an entry as computed.
package typelayout

import (
	"sync"

	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// Table is the type layout table of one compilation unit. It is safe for
// concurrent readers; growth takes the writer lock.
type Table struct {
	mu          sync.RWMutex
	lang        ir.Lang
	pointerBits int

	types []*ir.TypeDecl

	size   []uint64
	align  []uint8
	flex   []bool
	fields []uint32

	pointerTo map[int]int // element type -> derived pointer type
}

// New creates a table over the module's type declarations.
func New(m *ir.Module, pointerBits int) *Table {
	t := &Table{
		lang:        m.Lang,
		pointerBits: pointerBits,
		pointerTo:   make(map[int]int),
	}
	for i := range m.Types {
		d := m.Types[i]
		t.types = append(t.types, &d)
	}
	t.addNewTypeAfterBecommon(0, len(t.types))
	return t
}

// Len returns the number of type slots.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.size)
}

// Decl returns the declaration behind a type index.
func (t *Table) Decl(idx int) *ir.TypeDecl {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.check(idx)
	return t.types[idx]
}

// Size returns the size in bytes, computing the layout on first use.
func (t *Table) Size(idx int) uint64 {
	t.ensure(idx)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size[idx]
}

// Align returns the alignment in bytes, computing the layout on first use.
func (t *Table) Align(idx int) uint8 {
	t.ensure(idx)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.align[idx]
}

// HasFlexibleArray reports whether the type ends in a flexible array member.
func (t *Table) HasFlexibleArray(idx int) bool {
	t.ensure(idx)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flex[idx]
}

// FieldCount returns the recorded field count marker.
func (t *Table) FieldCount(idx int) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.check(idx)
	return t.fields[idx]
}

func (t *Table) ensure(idx int) {
	if !t.computed(idx) {
		t.ComputeTypeSizesAligns(idx, 0)
	}
}

func (t *Table) computed(idx int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.check(idx)
	return t.fields[idx] != 0
}

func (t *Table) check(idx int) {
	if idx < 0 || idx >= len(t.size) {
		ice.Fatalf("type index %d out of range (table has %d entries)", idx, len(t.size))
	}
}

// ComputeTypeSizesAligns computes and records the layout of a type. It is a
// no-op for a type whose layout is already recorded.
func (t *Table) ComputeTypeSizesAligns(idx int, extraAlign uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compute(idx, extraAlign)
}

func (t *Table) compute(idx int, extraAlign uint8) {
	t.check(idx)
	if t.fields[idx] != 0 {
		return
	}
	d := t.types[idx]
	if d == nil {
		ice.Fatalf("type %d has no declaration", idx)
	}
	var (
		size  uint64
		align uint8
		flex  bool
		count uint32 = 1
	)
	switch d.Kind {
	case ir.KindScalar, ir.KindPointer, ir.KindRef, ir.KindFunction:
		prim := d.Prim
		if d.Kind != ir.KindScalar {
			prim = ir.Ptr
		}
		prim = prim.Lower(t.pointerBits)
		size = uint64(prim.Bits() / 8)
		align = uint8(size)
	case ir.KindStruct, ir.KindClass:
		size, align, flex, count = t.computeStruct(d)
	case ir.KindUnion:
		for _, f := range d.Fields {
			t.compute(f, 0)
			if t.size[f] > size {
				size = t.size[f]
			}
			if t.align[f] > align {
				align = t.align[f]
			}
			count += t.fields[f]
		}
		size = alignUp(size, uint64(align))
	case ir.KindFlexArray:
		t.compute(d.Elem, 0)
		align = t.align[d.Elem]
		flex = true
	case ir.KindArray:
		ice.Fatalf("array type %d (%s) reached the layout table; arrays are lowered before selection", idx, d.Name)
	case ir.KindByName, ir.KindVoid:
		// size 0
	default:
		ice.Fatalf("unknown type kind %d for type %d", d.Kind, idx)
	}
	if extraAlign > align {
		align = extraAlign
	}
	if align == 0 {
		align = 1
	}
	t.size[idx] = size
	t.align[idx] = align
	t.flex[idx] = flex
	t.fields[idx] = count
}

func (t *Table) computeStruct(d *ir.TypeDecl) (size uint64, align uint8, flex bool, count uint32) {
	count = 1
	align = 1
	for i, f := range d.Fields {
		t.compute(f, 0)
		fd := t.types[f]
		if fd.Kind == ir.KindFlexArray {
			if i != len(d.Fields)-1 {
				ice.Fatalf("flexible array member of %s is not last", d.Name)
			}
			flex = true
		}
		fa := t.align[f]
		size = alignUp(size, uint64(fa))
		size += t.size[f]
		if fa > align {
			align = fa
		}
		count += t.fields[f]
	}
	return alignUp(size, uint64(align)), align, flex, count
}

// FieldOffset returns the byte offset of field i (0-based) of a struct,
// class or union type.
func (t *Table) FieldOffset(idx, field int) uint64 {
	t.ensure(idx)
	t.mu.RLock()
	defer t.mu.RUnlock()
	d := t.types[idx]
	if field < 0 || field >= len(d.Fields) {
		ice.Fatalf("field %d out of range for type %s", field, d.Name)
	}
	if d.Kind == ir.KindUnion {
		return 0
	}
	var ofs uint64
	for i, f := range d.Fields {
		ofs = alignUp(ofs, uint64(t.align[f]))
		if i == field {
			break
		}
		ofs += t.size[f]
	}
	return ofs
}

func alignUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
