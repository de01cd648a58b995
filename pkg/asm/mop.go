package asm

// Mop is a machine opcode. Opcodes are width agnostic: the register operands
// decide between the W and X (or S and D) forms.
type Mop uint16

const (
	MOPundef Mop = iota

	// Integer arithmetic
	MOPaddrrr
	MOPaddrri12
	MOPaddrri24 // add rd, rn, #imm, lsl #12
	MOPaddrrrs
	MOPaddrrre
	MOPaddlo12
	MOPsubrrr
	MOPsubrri12
	MOPsubrri24
	MOPsubrrrs
	MOPneg
	MOPnegs
	MOPmul
	MOPmadd
	MOPmsub
	MOPsdiv
	MOPudiv

	// Compare and test
	MOPcmprr
	MOPcmpri
	MOPcmpri24
	MOPcmnri
	MOPcmprrs
	MOPtstrr
	MOPtstri

	// Logical
	MOPandrrr
	MOPandrri
	MOPandrrrs
	MOPorrrrr
	MOPorrrri
	MOPorrrrrs
	MOPeorrrr
	MOPeorrri
	MOPeorrrrs
	MOPmvn

	// Shifts
	MOPlslrri
	MOPlslrrr
	MOPlsrrri
	MOPlsrrrr
	MOPasrrri
	MOPasrrrr

	// Bit fields and extension
	MOPsbfx
	MOPubfx
	MOPbfi
	MOPsxtb
	MOPsxth
	MOPsxtw
	MOPuxtb
	MOPuxth

	// Moves
	MOPmovrr
	MOPmovri
	MOPmovz
	MOPmovn
	MOPmovk

	// Conditional select
	MOPcsel
	MOPcsinc
	MOPcsinv
	MOPcsneg
	MOPcset

	// Floating point
	MOPfadd
	MOPfsub
	MOPfmul
	MOPfdiv
	MOPfmin
	MOPfmax
	MOPfneg
	MOPfabs
	MOPfsqrt
	MOPfcmp
	MOPfcmpz
	MOPfcsel
	MOPfmov
	MOPscvtf
	MOPucvtf
	MOPfcvtzs
	MOPfcvtzu
	MOPfcvtas
	MOPfcvtau
	MOPfcvtms
	MOPfcvtmu
	MOPfcvtps
	MOPfcvtpu
	MOPfcvt

	// Loads and stores
	MOPldrb
	MOPldrsb
	MOPldrh
	MOPldrsh
	MOPldr
	MOPldrsw
	MOPstrb
	MOPstrh
	MOPstr
	MOPldp
	MOPstp
	MOPadrp

	// Control flow
	MOPb
	MOPbcond
	MOPcbz
	MOPcbnz
	MOPtbz
	MOPtbnz
	MOPbr
	MOPbl
	MOPblr
	MOPblraaz
	MOPret
	MOPretaa
	MOPtailb  // b to a function symbol
	MOPtailbr // br to a function address

	numMops
)

// MopFlag describes properties of an opcode.
type MopFlag uint16

const (
	FlagLoad MopFlag = 1 << iota
	FlagStore
	FlagPair
	FlagBranch
	FlagCondBranch
	FlagCall
	FlagReturn
	FlagSetsFlags
	FlagUsesFlags
)

// OpndSpec describes one operand slot of an opcode.
type OpndSpec struct {
	Kind OperandKind
	Def  bool
	Use  bool
	// Check validates an immediate value for a register of the given width.
	Check func(v int64, bits int) bool
}

// MopDesc describes an opcode.
type MopDesc struct {
	Name  string
	Opnds []OpndSpec
	Flags MopFlag
}

var (
	oDst   = OpndSpec{Kind: KindReg, Def: true}
	oSrc   = OpndSpec{Kind: KindReg, Use: true}
	oUpd   = OpndSpec{Kind: KindReg, Def: true, Use: true}
	oFlags = OpndSpec{Kind: KindReg, Def: true}
	oMem   = OpndSpec{Kind: KindMem, Use: true}
	oLabel = OpndSpec{Kind: KindLabel}
	oCond  = OpndSpec{Kind: KindCond}
	oShift = OpndSpec{Kind: KindShift}
	oExt   = OpndSpec{Kind: KindExtend}
	oFn    = OpndSpec{Kind: KindFunc}
	oSym   = OpndSpec{Kind: KindSym}
)

func imm(check func(v int64, bits int) bool) OpndSpec {
	return OpndSpec{Kind: KindImm, Check: check}
}

func imm12(v int64, _ int) bool { return IsImm12(v) }

func imm16(v int64, _ int) bool { return v >= 0 && v <= 0xffff }

func logical(v int64, bits int) bool { return IsBitmaskImmediate(uint64(v), bits) }

func shiftAmount(v int64, bits int) bool { return v >= 0 && v < int64(bits) }

func bitPos(v int64, _ int) bool { return v >= 0 && v < 64 }

func bitWidth(v int64, bits int) bool { return v >= 1 && v <= int64(bits) }

func movable(v int64, bits int) bool { return IsSingleInstructionMovable(uint64(v), bits) }

func rrr(name string) MopDesc { return MopDesc{Name: name, Opnds: []OpndSpec{oDst, oSrc, oSrc}} }

func rr(name string) MopDesc { return MopDesc{Name: name, Opnds: []OpndSpec{oDst, oSrc}} }

func ld(name string) MopDesc {
	return MopDesc{Name: name, Opnds: []OpndSpec{oDst, oMem}, Flags: FlagLoad}
}

func st(name string) MopDesc {
	return MopDesc{Name: name, Opnds: []OpndSpec{oSrc, oMem}, Flags: FlagStore}
}

var mopTable = [numMops]MopDesc{
	MOPundef: {Name: "<undef>"},

	MOPaddrrr:   rrr("add"),
	MOPaddrri12: {Name: "add", Opnds: []OpndSpec{oDst, oSrc, imm(imm12)}},
	MOPaddrri24: {Name: "add", Opnds: []OpndSpec{oDst, oSrc, imm(imm12), oShift}},
	MOPaddrrrs:  {Name: "add", Opnds: []OpndSpec{oDst, oSrc, oSrc, oShift}},
	MOPaddrrre:  {Name: "add", Opnds: []OpndSpec{oDst, oSrc, oSrc, oExt}},
	MOPaddlo12:  {Name: "add", Opnds: []OpndSpec{oDst, oSrc, oSym}},
	MOPsubrrr:   rrr("sub"),
	MOPsubrri12: {Name: "sub", Opnds: []OpndSpec{oDst, oSrc, imm(imm12)}},
	MOPsubrri24: {Name: "sub", Opnds: []OpndSpec{oDst, oSrc, imm(imm12), oShift}},
	MOPsubrrrs:  {Name: "sub", Opnds: []OpndSpec{oDst, oSrc, oSrc, oShift}},
	MOPneg:      rr("neg"),
	MOPnegs:     {Name: "negs", Opnds: []OpndSpec{oFlags, oDst, oSrc}, Flags: FlagSetsFlags},
	MOPmul:      rrr("mul"),
	MOPmadd:     {Name: "madd", Opnds: []OpndSpec{oDst, oSrc, oSrc, oSrc}},
	MOPmsub:     {Name: "msub", Opnds: []OpndSpec{oDst, oSrc, oSrc, oSrc}},
	MOPsdiv:     rrr("sdiv"),
	MOPudiv:     rrr("udiv"),

	MOPcmprr:   {Name: "cmp", Opnds: []OpndSpec{oFlags, oSrc, oSrc}, Flags: FlagSetsFlags},
	MOPcmpri:   {Name: "cmp", Opnds: []OpndSpec{oFlags, oSrc, imm(imm12)}, Flags: FlagSetsFlags},
	MOPcmpri24: {Name: "cmp", Opnds: []OpndSpec{oFlags, oSrc, imm(imm12), oShift}, Flags: FlagSetsFlags},
	MOPcmnri:   {Name: "cmn", Opnds: []OpndSpec{oFlags, oSrc, imm(imm12)}, Flags: FlagSetsFlags},
	MOPcmprrs:  {Name: "cmp", Opnds: []OpndSpec{oFlags, oSrc, oSrc, oShift}, Flags: FlagSetsFlags},
	MOPtstrr:   {Name: "tst", Opnds: []OpndSpec{oFlags, oSrc, oSrc}, Flags: FlagSetsFlags},
	MOPtstri:   {Name: "tst", Opnds: []OpndSpec{oFlags, oSrc, imm(logical)}, Flags: FlagSetsFlags},

	MOPandrrr:  rrr("and"),
	MOPandrri:  {Name: "and", Opnds: []OpndSpec{oDst, oSrc, imm(logical)}},
	MOPandrrrs: {Name: "and", Opnds: []OpndSpec{oDst, oSrc, oSrc, oShift}},
	MOPorrrrr:  rrr("orr"),
	MOPorrrri:  {Name: "orr", Opnds: []OpndSpec{oDst, oSrc, imm(logical)}},
	MOPorrrrrs: {Name: "orr", Opnds: []OpndSpec{oDst, oSrc, oSrc, oShift}},
	MOPeorrrr:  rrr("eor"),
	MOPeorrri:  {Name: "eor", Opnds: []OpndSpec{oDst, oSrc, imm(logical)}},
	MOPeorrrrs: {Name: "eor", Opnds: []OpndSpec{oDst, oSrc, oSrc, oShift}},
	MOPmvn:     rr("mvn"),

	MOPlslrri: {Name: "lsl", Opnds: []OpndSpec{oDst, oSrc, imm(shiftAmount)}},
	MOPlslrrr: rrr("lsl"),
	MOPlsrrri: {Name: "lsr", Opnds: []OpndSpec{oDst, oSrc, imm(shiftAmount)}},
	MOPlsrrrr: rrr("lsr"),
	MOPasrrri: {Name: "asr", Opnds: []OpndSpec{oDst, oSrc, imm(shiftAmount)}},
	MOPasrrrr: rrr("asr"),

	MOPsbfx: {Name: "sbfx", Opnds: []OpndSpec{oDst, oSrc, imm(shiftAmount), imm(bitWidth)}},
	MOPubfx: {Name: "ubfx", Opnds: []OpndSpec{oDst, oSrc, imm(shiftAmount), imm(bitWidth)}},
	MOPbfi:  {Name: "bfi", Opnds: []OpndSpec{oUpd, oSrc, imm(shiftAmount), imm(bitWidth)}},
	MOPsxtb: rr("sxtb"),
	MOPsxth: rr("sxth"),
	MOPsxtw: rr("sxtw"),
	MOPuxtb: rr("uxtb"),
	MOPuxth: rr("uxth"),

	MOPmovrr: rr("mov"),
	MOPmovri: {Name: "mov", Opnds: []OpndSpec{oDst, imm(movable)}},
	MOPmovz:  {Name: "movz", Opnds: []OpndSpec{oDst, imm(imm16), oShift}},
	MOPmovn:  {Name: "movn", Opnds: []OpndSpec{oDst, imm(imm16), oShift}},
	MOPmovk:  {Name: "movk", Opnds: []OpndSpec{oUpd, imm(imm16), oShift}},

	MOPcsel:  {Name: "csel", Opnds: []OpndSpec{oDst, oSrc, oSrc, oCond}, Flags: FlagUsesFlags},
	MOPcsinc: {Name: "csinc", Opnds: []OpndSpec{oDst, oSrc, oSrc, oCond}, Flags: FlagUsesFlags},
	MOPcsinv: {Name: "csinv", Opnds: []OpndSpec{oDst, oSrc, oSrc, oCond}, Flags: FlagUsesFlags},
	MOPcsneg: {Name: "csneg", Opnds: []OpndSpec{oDst, oSrc, oSrc, oCond}, Flags: FlagUsesFlags},
	MOPcset:  {Name: "cset", Opnds: []OpndSpec{oDst, oCond}, Flags: FlagUsesFlags},

	MOPfadd:   rrr("fadd"),
	MOPfsub:   rrr("fsub"),
	MOPfmul:   rrr("fmul"),
	MOPfdiv:   rrr("fdiv"),
	MOPfmin:   rrr("fmin"),
	MOPfmax:   rrr("fmax"),
	MOPfneg:   rr("fneg"),
	MOPfabs:   rr("fabs"),
	MOPfsqrt:  rr("fsqrt"),
	MOPfcmp:   {Name: "fcmp", Opnds: []OpndSpec{oFlags, oSrc, oSrc}, Flags: FlagSetsFlags},
	MOPfcmpz:  {Name: "fcmp", Opnds: []OpndSpec{oFlags, oSrc}, Flags: FlagSetsFlags},
	MOPfcsel:  {Name: "fcsel", Opnds: []OpndSpec{oDst, oSrc, oSrc, oCond}, Flags: FlagUsesFlags},
	MOPfmov:   rr("fmov"),
	MOPscvtf:  rr("scvtf"),
	MOPucvtf:  rr("ucvtf"),
	MOPfcvtzs: rr("fcvtzs"),
	MOPfcvtzu: rr("fcvtzu"),
	MOPfcvtas: rr("fcvtas"),
	MOPfcvtau: rr("fcvtau"),
	MOPfcvtms: rr("fcvtms"),
	MOPfcvtmu: rr("fcvtmu"),
	MOPfcvtps: rr("fcvtps"),
	MOPfcvtpu: rr("fcvtpu"),
	MOPfcvt:   rr("fcvt"),

	MOPldrb:  ld("ldrb"),
	MOPldrsb: ld("ldrsb"),
	MOPldrh:  ld("ldrh"),
	MOPldrsh: ld("ldrsh"),
	MOPldr:   ld("ldr"),
	MOPldrsw: ld("ldrsw"),
	MOPstrb:  st("strb"),
	MOPstrh:  st("strh"),
	MOPstr:   st("str"),
	MOPldp:   {Name: "ldp", Opnds: []OpndSpec{oDst, oDst, oMem}, Flags: FlagLoad | FlagPair},
	MOPstp:   {Name: "stp", Opnds: []OpndSpec{oSrc, oSrc, oMem}, Flags: FlagStore | FlagPair},
	MOPadrp:  {Name: "adrp", Opnds: []OpndSpec{oDst, oSym}},

	MOPb:      {Name: "b", Opnds: []OpndSpec{oLabel}, Flags: FlagBranch},
	MOPbcond:  {Name: "b", Opnds: []OpndSpec{oCond, oLabel}, Flags: FlagBranch | FlagCondBranch | FlagUsesFlags},
	MOPcbz:    {Name: "cbz", Opnds: []OpndSpec{oSrc, oLabel}, Flags: FlagBranch | FlagCondBranch},
	MOPcbnz:   {Name: "cbnz", Opnds: []OpndSpec{oSrc, oLabel}, Flags: FlagBranch | FlagCondBranch},
	MOPtbz:    {Name: "tbz", Opnds: []OpndSpec{oSrc, imm(bitPos), oLabel}, Flags: FlagBranch | FlagCondBranch},
	MOPtbnz:   {Name: "tbnz", Opnds: []OpndSpec{oSrc, imm(bitPos), oLabel}, Flags: FlagBranch | FlagCondBranch},
	MOPbr:     {Name: "br", Opnds: []OpndSpec{oSrc}, Flags: FlagBranch},
	MOPbl:     {Name: "bl", Opnds: []OpndSpec{oFn}, Flags: FlagCall},
	MOPblr:    {Name: "blr", Opnds: []OpndSpec{oSrc}, Flags: FlagCall},
	MOPblraaz: {Name: "blraaz", Opnds: []OpndSpec{oSrc}, Flags: FlagCall},
	MOPret:    {Name: "ret", Flags: FlagReturn},
	MOPretaa:  {Name: "retaa", Flags: FlagReturn},
	MOPtailb:  {Name: "b", Opnds: []OpndSpec{oFn}, Flags: FlagBranch | FlagCall | FlagReturn},
	MOPtailbr: {Name: "br", Opnds: []OpndSpec{oSrc}, Flags: FlagBranch | FlagCall | FlagReturn},
}

// Desc returns the descriptor of an opcode.
func (m Mop) Desc() *MopDesc { return &mopTable[m] }

func (m Mop) String() string { return mopTable[m].Name }

// Is reports whether the opcode has all of the given oFlags.
func (m Mop) Is(f MopFlag) bool { return mopTable[m].Flags&f == f }

// IsOperandImmValid reports whether o is acceptable as operand idx of m,
// without building an instruction. Immediates are checked against the
// opcode's immediate field; memory operands against the load/store offset
// window; other kinds only need to match the slot.
func (m Mop) IsOperandImmValid(o Operand, idx int) bool {
	d := m.Desc()
	if idx < 0 || idx >= len(d.Opnds) {
		return false
	}
	spec := d.Opnds[idx]
	if KindOf(o) != spec.Kind {
		return false
	}
	switch v := o.(type) {
	case *Immediate:
		if spec.Check == nil {
			return true
		}
		bits := int(v.Size)
		if bits == 0 {
			bits = 64
		}
		return spec.Check(v.Value, bits)
	case *MemoryRef:
		if v.Mode != AddrBaseOffset || v.Offset == nil {
			return true
		}
		return MemOffsetInRange(v.Offset.Value, v.Size, d.Flags&FlagPair != 0)
	}
	return true
}
