package asm

// Encodability predicates for AArch64 immediate fields.

// IsImm12 reports whether v fits the unsigned 12-bit arithmetic immediate.
func IsImm12(v int64) bool { return v >= 0 && v <= 0xfff }

// IsShiftedImm12 reports whether v is a 12-bit immediate shifted left by 12.
func IsShiftedImm12(v int64) bool { return v > 0 && v&0xfff == 0 && v>>12 <= 0xfff }

// IsAddSubImm reports whether v encodes directly in ADD/SUB/CMP.
func IsAddSubImm(v int64) bool { return IsImm12(v) || IsShiftedImm12(v) }

// IsImm24 reports whether v can be added with two ADDs (shifted and plain).
func IsImm24(v int64) bool { return v >= 0 && v <= 0xffffff }

// IsBitmaskImmediate reports whether the low bits of v form a logical
// immediate for a register of the given width: a rotated run of ones,
// replicated across the register.
func IsBitmaskImmediate(v uint64, bits int) bool {
	x := v
	if bits == 32 {
		lo := uint64(uint32(v))
		x = lo | lo<<32
	}
	// All zeros and all ones are not bitmask immediates.
	if x == 0 || x == 0xffff_ffff_ffff_ffff {
		return false
	}
	switch {
	case x != x>>32|x<<32:
		// element of 64 bits
	case x != x>>16|x<<48:
		x = uint64(int32(x))
	case x != x>>8|x<<56:
		x = uint64(int16(x))
	case x != x>>4|x<<60:
		x = uint64(int8(x))
	default:
		// element of 4 or 2 bits: every such pattern is a run
		return true
	}
	return sequenceOfSetBits(x) || sequenceOfSetBits(^x)
}

// sequenceOfSetBits reports whether x is a single contiguous run of ones.
func sequenceOfSetBits(x uint64) bool {
	y := x & (^x + 1)
	y += x
	return (y-1)&y == 0
}

// MoveWideShift returns the shift for which v is a single 16-bit chunk, and
// whether one exists, for a register of the given width.
func MoveWideShift(v uint64, bits int) (uint8, bool) {
	if bits == 32 {
		v = uint64(uint32(v))
	}
	for sh := 0; sh < bits; sh += 16 {
		if v&^(0xffff<<uint(sh)) == 0 {
			return uint8(sh), true
		}
	}
	return 0, false
}

// IsMovzImm reports whether MOVZ alone materializes v.
func IsMovzImm(v uint64, bits int) bool {
	_, ok := MoveWideShift(v, bits)
	return ok
}

// IsMovnImm reports whether MOVN alone materializes v.
func IsMovnImm(v uint64, bits int) bool {
	if bits == 32 {
		return IsMovzImm(uint64(^uint32(v)), 32)
	}
	return IsMovzImm(^v, 64)
}

// IsSingleInstructionMovable reports whether one MOVZ, MOVN or ORR loads v
// into a register of the given width.
func IsSingleInstructionMovable(v uint64, bits int) bool {
	return IsMovzImm(v, bits) || IsMovnImm(v, bits) || IsBitmaskImmediate(v, bits)
}

// MemOffsetInRange reports whether a byte offset encodes in a load or
// store of the given access size in bits. Single accesses take either the
// signed 9-bit unscaled window or the unsigned 12-bit window scaled by the
// access size; pairs take the signed 7-bit scaled window.
func MemOffsetInRange(ofs int64, accessBits uint8, pair bool) bool {
	scale := int64(accessBits) / 8
	if scale == 0 {
		scale = 1
	}
	if pair {
		return ofs%scale == 0 && ofs/scale >= -64 && ofs/scale <= 63
	}
	if ofs >= -256 && ofs <= 255 {
		return true
	}
	return ofs >= 0 && ofs%scale == 0 && ofs/scale <= 4095
}
