package isel

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

func (s *funcSelector) selectExtractbits(dst *asm.Register, e ir.Extractbits) {
	x := s.reg(e.X)
	end := uint(e.Offset) + uint(e.Width)
	if e.Width == 0 || end > uint(x.Size) {
		ice.Fatalf("%s: bit field %d:%d outside a %d-bit value", s.src.Name, e.Offset, e.Width, x.Size)
	}
	signed := s.lower(e.Ty).IsSigned()
	switch {
	case e.Offset == 0 && e.Width == x.Size:
		s.move(dst, x)
	case e.Offset == 0 && !signed && e.Width < 32:
		mask := s.pool.NewImm(int64(1)<<e.Width-1, dst.Size, false)
		s.emit(asm.MOPandrri, dst, s.pool.View(x, dst.Size), mask)
	default:
		size := dst.Size
		if end > 32 {
			size = 64
		}
		op := asm.MOPubfx
		if signed {
			op = asm.MOPsbfx
		}
		s.emit(op, s.pool.View(dst, size), s.pool.View(x, size),
			s.pool.NewImm(int64(e.Offset), size, false), s.pool.NewImm(int64(e.Width), size, false))
	}
}

func (s *funcSelector) selectExtend(dst *asm.Register, e ir.Extend) {
	s.extendTo(dst, s.reg(e.X), e.Width, e.Signed)
}

// extendTo writes the low bits of src, sign- or zero-extended, to dst.
func (s *funcSelector) extendTo(dst, src *asm.Register, bits uint8, signed bool) {
	switch {
	case bits >= dst.Size:
		s.move(dst, src)
	case signed && bits == 8:
		s.emit(asm.MOPsxtb, dst, s.pool.View(src, 32))
	case signed && bits == 16:
		s.emit(asm.MOPsxth, dst, s.pool.View(src, 32))
	case signed && bits == 32:
		s.emit(asm.MOPsxtw, dst, s.pool.View(src, 32))
	case bits == 8:
		s.emit(asm.MOPuxtb, s.pool.View(dst, 32), s.pool.View(src, 32))
	case bits == 16:
		s.emit(asm.MOPuxth, s.pool.View(dst, 32), s.pool.View(src, 32))
	case bits == 32:
		s.emit(asm.MOPmovrr, s.pool.View(dst, 32), s.pool.View(src, 32))
	default:
		op := asm.MOPubfx
		if signed {
			op = asm.MOPsbfx
		}
		s.emit(op, dst, s.pool.View(src, dst.Size), s.pool.NewImm(0, dst.Size, false), s.pool.NewImm(int64(bits), dst.Size, false))
	}
}

// selectDepositbits copies X to dst and inserts the low bits of Y with
// BFI.
func (s *funcSelector) selectDepositbits(dst *asm.Register, e ir.Depositbits) {
	x := s.reg(e.X)
	y := s.reg(e.Y)
	if uint(e.Offset)+uint(e.Width) > uint(dst.Size) || e.Width == 0 {
		ice.Fatalf("%s: bit field %d:%d outside a %d-bit value", s.src.Name, e.Offset, e.Width, dst.Size)
	}
	if y == dst {
		t := s.newInt(y.Size)
		s.move(t, y)
		y = t
	}
	s.move(dst, x)
	s.emit(asm.MOPbfi, dst, s.pool.View(y, dst.Size),
		s.pool.NewImm(int64(e.Offset), dst.Size, false), s.pool.NewImm(int64(e.Width), dst.Size, false))
}
