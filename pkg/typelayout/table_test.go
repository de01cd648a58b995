package typelayout

import (
	"strings"
	"sync"
	"testing"

	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

func testModule(lang ir.Lang) *ir.Module {
	return &ir.Module{
		Lang: lang,
		Types: []ir.TypeDecl{
			{Kind: ir.KindScalar, Prim: ir.I32},                      // 0
			{Kind: ir.KindScalar, Prim: ir.I8},                       // 1
			{Kind: ir.KindScalar, Prim: ir.F64},                      // 2
			{Kind: ir.KindPointer, Elem: 0},                          // 3
			{Kind: ir.KindRef, Elem: 0},                              // 4
			{Kind: ir.KindStruct, Name: "s", Fields: []int{1, 0, 1}}, // 5
			{Kind: ir.KindUnion, Name: "u", Fields: []int{1, 2}},     // 6
			{Kind: ir.KindFlexArray, Elem: 2},                        // 7
			{Kind: ir.KindStruct, Name: "f", Fields: []int{0, 7}},    // 8
			{Kind: ir.KindArray, Name: "arr", Elem: 0},               // 9
			{Kind: ir.KindVoid},                                      // 10
			{Kind: ir.KindByName, Name: "later"},                     // 11
			{Kind: ir.KindFunction},                                  // 12
		},
	}
}

func TestScalarLayout(t *testing.T) {
	tab := New(testModule(ir.LangC), 64)
	if got := tab.Size(0); got != 4 {
		t.Errorf("i32 size = %d, want 4", got)
	}
	if got := tab.Align(0); got != 4 {
		t.Errorf("i32 align = %d, want 4", got)
	}
	if got := tab.Size(1); got != 1 {
		t.Errorf("i8 size = %d, want 1", got)
	}
}

func TestPointerLayoutFollowsPointerWidth(t *testing.T) {
	for _, bits := range []int{32, 64} {
		tab := New(testModule(ir.LangC), bits)
		want := uint64(bits / 8)
		for _, idx := range []int{3, 4, 12} {
			if got := tab.Size(idx); got != want {
				t.Errorf("bits=%d type %d size = %d, want %d", bits, idx, got, want)
			}
			if got := uint64(tab.Align(idx)); got != want {
				t.Errorf("bits=%d type %d align = %d, want %d", bits, idx, got, want)
			}
		}
	}
}

func TestAggregateLayout(t *testing.T) {
	tab := New(testModule(ir.LangC), 64)
	tests := []struct {
		idx   int
		size  uint64
		align uint8
		flex  bool
	}{
		{5, 12, 4, false}, // i8, pad 3, i32, i8, pad 3
		{6, 8, 8, false},
		{8, 8, 8, true}, // i32, pad to the f64 element, no size
		{10, 0, 1, false},
		{11, 0, 1, false},
	}
	for _, tt := range tests {
		if got := tab.Size(tt.idx); got != tt.size {
			t.Errorf("type %d size = %d, want %d", tt.idx, got, tt.size)
		}
		if got := tab.Align(tt.idx); got != tt.align {
			t.Errorf("type %d align = %d, want %d", tt.idx, got, tt.align)
		}
		if got := tab.HasFlexibleArray(tt.idx); got != tt.flex {
			t.Errorf("type %d flex = %v, want %v", tt.idx, got, tt.flex)
		}
	}
	if got := tab.FieldOffset(5, 1); got != 4 {
		t.Errorf("field 1 offset = %d, want 4", got)
	}
	if got := tab.FieldOffset(5, 2); got != 8 {
		t.Errorf("field 2 offset = %d, want 8", got)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	tab := New(testModule(ir.LangC), 64)
	tab.ComputeTypeSizesAligns(5, 16)
	size, align, count := tab.Size(5), tab.Align(5), tab.FieldCount(5)
	if align != 16 {
		t.Errorf("align with extra = %d, want 16", align)
	}
	if count == 0 {
		t.Fatal("field count marker not set")
	}
	// A second call with a different extra alignment does not recompute.
	tab.ComputeTypeSizesAligns(5, 0)
	if tab.Size(5) != size || tab.Align(5) != align || tab.FieldCount(5) != count {
		t.Error("layout changed on recomputation")
	}
}

func TestArrayIsFatal(t *testing.T) {
	tab := New(testModule(ir.LangC), 64)
	err := ice.Catch(func() { tab.Size(9) })
	if err == nil || !strings.Contains(err.Error(), "array type") {
		t.Errorf("expected array error, got %v", err)
	}
}

func TestFinalizeTypeTable(t *testing.T) {
	t.Run("java strict append", func(t *testing.T) {
		tab := New(testModule(ir.LangJava), 64)
		n := tab.Len()
		tab.FinalizeTypeTable(n, ir.TypeDecl{Kind: ir.KindScalar, Prim: ir.I16})
		if tab.Size(n) != 2 {
			t.Errorf("new type size = %d, want 2", tab.Size(n))
		}
		err := ice.Catch(func() {
			tab.FinalizeTypeTable(tab.Len()+2, ir.TypeDecl{Kind: ir.KindScalar, Prim: ir.I16})
		})
		if err == nil {
			t.Error("expected gap to be fatal for java")
		}
	})
	t.Run("c backfill", func(t *testing.T) {
		tab := New(testModule(ir.LangC), 64)
		n := tab.Len()
		tab.FinalizeTypeTable(n+3, ir.TypeDecl{Kind: ir.KindScalar, Prim: ir.I64})
		if got := tab.Len(); got != n+4 {
			t.Fatalf("Len = %d, want %d", got, n+4)
		}
		if tab.Size(n+3) != 8 {
			t.Errorf("size = %d, want 8", tab.Size(n+3))
		}
		if tab.Size(n+1) != 0 {
			t.Errorf("backfilled slot size = %d, want 0", tab.Size(n+1))
		}
	})
	t.Run("existing index", func(t *testing.T) {
		tab := New(testModule(ir.LangC), 64)
		if err := ice.Catch(func() { tab.FinalizeTypeTable(0, ir.TypeDecl{}) }); err == nil {
			t.Error("expected error for existing index")
		}
	})
}

func TestAddNewTypeAfterBecommon(t *testing.T) {
	tab := New(testModule(ir.LangC), 64)
	n := tab.Len()
	first := tab.AddTypes(ir.TypeDecl{Kind: ir.KindScalar, Prim: ir.U16})
	if first != n {
		t.Errorf("first = %d, want %d", first, n)
	}
	if tab.FieldCount(first) != 0 {
		t.Error("new slot should start uncomputed")
	}
	if tab.Size(first) != 2 {
		t.Errorf("size = %d, want 2", tab.Size(first))
	}
	// Existing entries keep their index and layout.
	if tab.Size(0) != 4 {
		t.Error("existing entry changed after growth")
	}
	if err := ice.Catch(func() { tab.AddNewTypeAfterBecommon(n, n+1) }); err == nil {
		t.Error("expected mismatched old length to be fatal")
	}
}

func TestCreatePointerType(t *testing.T) {
	tab := New(testModule(ir.LangJava), 32)
	p := tab.CreatePointerType(5)
	if p != tab.Len()-1 {
		t.Errorf("pointer type index = %d, want %d", p, tab.Len()-1)
	}
	if tab.FieldCount(p) == 0 {
		t.Error("pointer type should be computed immediately")
	}
	if tab.Size(p) != 4 {
		t.Errorf("size = %d, want 4", tab.Size(p))
	}
	if again := tab.CreatePointerType(5); again != p {
		t.Errorf("second request returned %d, want %d", again, p)
	}
}

func TestConcurrentReadersAndGrowth(t *testing.T) {
	tab := New(testModule(ir.LangC), 64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = tab.Size(j % 9)
				if j%10 == 0 {
					tab.CreatePointerType(i % 3)
				}
			}
		}(i)
	}
	wg.Wait()
	if tab.Size(5) != 12 {
		t.Errorf("size = %d, want 12", tab.Size(5))
	}
}
