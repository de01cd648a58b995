package typelayout

import (
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// AddNewTypeAfterBecommon extends the layout arrays after the type table grew
// from oldLen to newLen declarations. New slots start uncomputed.
func (t *Table) AddNewTypeAfterBecommon(oldLen, newLen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addNewTypeAfterBecommon(oldLen, newLen)
}

func (t *Table) addNewTypeAfterBecommon(oldLen, newLen int) {
	if oldLen != len(t.size) {
		ice.Fatalf("layout table has %d entries, growth starts at %d", len(t.size), oldLen)
	}
	if newLen < oldLen {
		ice.Fatalf("type table shrank from %d to %d", oldLen, newLen)
	}
	for len(t.types) < newLen {
		t.types = append(t.types, nil)
	}
	for i := oldLen; i < newLen; i++ {
		t.size = append(t.size, 0)
		t.align = append(t.align, 0)
		t.flex = append(t.flex, false)
		t.fields = append(t.fields, 0)
	}
}

// AddTypes appends declarations to the type table and returns the index of
// the first one. The layout arrays grow with them.
func (t *Table) AddTypes(decls ...ir.TypeDecl) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	first := len(t.types)
	for i := range decls {
		d := decls[i]
		t.types = append(t.types, &d)
	}
	t.addNewTypeAfterBecommon(first, len(t.types))
	return first
}

// FinalizeTypeTable records a type created after the table was built at
// index idx. Java-like modules must append exactly at the end of the table;
// C modules may leave a gap, which is backfilled with empty slots.
func (t *Table) FinalizeTypeTable(idx int, d ir.TypeDecl) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalize(idx, d)
}

func (t *Table) finalize(idx int, d ir.TypeDecl) {
	n := len(t.types)
	switch {
	case idx < n:
		ice.Fatalf("type index %d is already in the table", idx)
	case idx > n && t.lang == ir.LangJava:
		ice.Fatalf("type index %d does not match table length %d", idx, n)
	}
	for len(t.types) < idx {
		t.types = append(t.types, &ir.TypeDecl{Kind: ir.KindVoid})
	}
	t.types = append(t.types, &d)
	t.addNewTypeAfterBecommon(len(t.size), len(t.types))
}

// CreatePointerType returns the pointer type to elem, creating and laying it
// out on first request.
func (t *Table) CreatePointerType(elem int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.check(elem)
	if idx, ok := t.pointerTo[elem]; ok {
		return idx
	}
	idx := len(t.types)
	t.finalize(idx, ir.TypeDecl{Kind: ir.KindPointer, Elem: elem})
	t.compute(idx, 0)
	t.pointerTo[elem] = idx
	return idx
}
