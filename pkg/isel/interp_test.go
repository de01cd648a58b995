package isel

import (
	"math"
	"testing"

	"github.com/raymyers/ralph-isel/pkg/asm"
)

// machine executes selected code so tests can check values instead of
// listings. Registers are keyed by number, so a W view shares storage with
// its X register, and a 32-bit write clears the upper half as on hardware.
type machine struct {
	t          *testing.T
	regs       map[asm.RegNum]uint64
	mem        map[uint64]byte
	n, z, c, v bool
	steps      int
	// onCall runs at each call instruction in place of the callee.
	onCall func(m *machine, in *asm.Insn)
}

const (
	testFP = 0x100000
	testSP = 0x80000
	// The caller's outgoing area, above the callee frame.
	testArgs = testFP + 0x1000
)

func newMachine(t *testing.T) *machine {
	m := &machine{t: t, regs: make(map[asm.RegNum]uint64), mem: make(map[uint64]byte)}
	m.regs[asm.FP] = testFP
	m.regs[asm.SP] = testSP
	m.regs[asm.ArgP] = testArgs
	return m
}

func mask(size uint8) uint64 {
	if size >= 64 {
		return ^uint64(0)
	}
	return 1<<size - 1
}

func sext(v uint64, bits uint8) int64 {
	sh := 64 - bits
	return int64(v<<sh) >> sh
}

func (m *machine) get(r *asm.Register) uint64 {
	if r.Num == asm.ZR {
		return 0
	}
	return m.regs[r.Num] & mask(r.Size)
}

func (m *machine) set(r *asm.Register, v uint64) {
	if r.Num == asm.ZR || r.Class == asm.ClassFlags {
		return
	}
	m.regs[r.Num] = v & mask(r.Size)
}

func (m *machine) getFloat(r *asm.Register) float64 {
	if r.Size == 32 {
		return float64(math.Float32frombits(uint32(m.get(r))))
	}
	return math.Float64frombits(m.get(r))
}

func (m *machine) setFloat(r *asm.Register, f float64) {
	if r.Size == 32 {
		m.set(r, uint64(math.Float32bits(float32(f))))
		return
	}
	m.set(r, math.Float64bits(f))
}

func (m *machine) val(o asm.Operand, size uint8) uint64 {
	switch o := o.(type) {
	case *asm.Register:
		return m.get(o)
	case *asm.Immediate:
		return uint64(o.Value) & mask(size)
	}
	m.t.Fatalf("interp: operand %T is not a value", o)
	return 0
}

func shifted(v uint64, sh *asm.BitShift, size uint8) uint64 {
	switch sh.Kind {
	case asm.ShiftLSR:
		return v >> sh.Amount
	case asm.ShiftASR:
		return uint64(sext(v, size)>>sh.Amount) & mask(size)
	}
	return v << sh.Amount & mask(size)
}

func extended(v uint64, e *asm.ExtendShift, size uint8) uint64 {
	if e == nil {
		return v
	}
	switch e.Kind {
	case asm.ExtUXTW:
		v = uint64(uint32(v))
	case asm.ExtSXTW:
		v = uint64(int64(int32(v)))
	}
	return v << e.Amount & mask(size)
}

func (m *machine) subFlags(a, b uint64, size uint8) {
	mk, top := mask(size), uint64(1)<<(size-1)
	a, b = a&mk, b&mk
	res := (a - b) & mk
	m.n, m.z = res&top != 0, res == 0
	m.c = a >= b
	m.v = (a^b)&(a^res)&top != 0
}

func (m *machine) addFlags(a, b uint64, size uint8) {
	mk, top := mask(size), uint64(1)<<(size-1)
	a, b = a&mk, b&mk
	res := (a + b) & mk
	m.n, m.z = res&top != 0, res == 0
	m.c = res < a
	m.v = ^(a^b)&(a^res)&top != 0
}

func (m *machine) logicFlags(res uint64, size uint8) {
	m.n, m.z = res&(1<<(size-1)) != 0, res&mask(size) == 0
	m.c, m.v = false, false
}

func (m *machine) floatFlags(a, b float64) {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		m.n, m.z, m.c, m.v = false, false, true, true
	case a == b:
		m.n, m.z, m.c, m.v = false, true, true, false
	case a < b:
		m.n, m.z, m.c, m.v = true, false, false, false
	default:
		m.n, m.z, m.c, m.v = false, false, true, false
	}
}

func (m *machine) cond(o asm.Operand) bool {
	switch o.(*asm.CondOperand).Code {
	case asm.CondEQ:
		return m.z
	case asm.CondNE:
		return !m.z
	case asm.CondHS:
		return m.c
	case asm.CondLO:
		return !m.c
	case asm.CondMI:
		return m.n
	case asm.CondPL:
		return !m.n
	case asm.CondVS:
		return m.v
	case asm.CondVC:
		return !m.v
	case asm.CondHI:
		return m.c && !m.z
	case asm.CondLS:
		return !(m.c && !m.z)
	case asm.CondGE:
		return m.n == m.v
	case asm.CondLT:
		return m.n != m.v
	case asm.CondGT:
		return !m.z && m.n == m.v
	case asm.CondLE:
		return m.z || m.n != m.v
	}
	return true
}

func (m *machine) addr(mem *asm.MemoryRef) uint64 {
	base := m.regs[mem.Base.Num]
	switch mem.Mode {
	case asm.AddrBaseOffset:
		return base + uint64(mem.OffsetValue())
	case asm.AddrBaseIndex:
		return base + extended(m.get(mem.Index), mem.Extend, 64)
	}
	m.t.Fatalf("interp: cannot address %v", mem.Mode)
	return 0
}

func (m *machine) load(a uint64, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(m.mem[a+uint64(i)])
	}
	return v
}

func (m *machine) store(a, v uint64, n int) {
	for i := 0; i < n; i++ {
		m.mem[a+uint64(i)] = byte(v >> (8 * i))
	}
}

// run executes fn from its entry block until a return.
func (m *machine) run(fn *asm.Function) {
	m.t.Helper()
	labels := make(map[string]*asm.BB)
	for _, b := range fn.Blocks() {
		if b.Label != nil {
			labels[b.Label.Name] = b
		}
	}
	for b := fn.Entry; b != nil; {
		next := b.Next
		for _, in := range b.Insns {
			m.steps++
			if m.steps > 100000 {
				m.t.Fatalf("interp: %s does not terminate", fn.Name)
			}
			target, ret := m.exec(in)
			if ret {
				return
			}
			if target != nil {
				if next = labels[target.Name]; next == nil {
					m.t.Fatalf("interp: branch to unknown label %s", target.Name)
				}
				break
			}
		}
		b = next
	}
	m.t.Fatalf("interp: %s fell off its last block", fn.Name)
}

// exec runs one instruction. It returns the branch target when a branch is
// taken and whether the function returned.
func (m *machine) exec(in *asm.Insn) (*asm.Label, bool) {
	ops := in.Opnds
	reg := func(i int) *asm.Register { return ops[i].(*asm.Register) }
	immv := func(i int) uint64 { return uint64(ops[i].(*asm.Immediate).Value) }
	var d *asm.Register
	var size uint8
	if len(ops) > 0 {
		if r, ok := ops[0].(*asm.Register); ok {
			d, size = r, r.Size
		}
	}
	src := func(i int) uint64 { return m.val(ops[i], size) }

	switch in.Op {
	case asm.MOPmovz:
		m.set(d, immv(1)<<ops[2].(*asm.BitShift).Amount)
	case asm.MOPmovn:
		m.set(d, ^(immv(1) << ops[2].(*asm.BitShift).Amount))
	case asm.MOPmovk:
		sh := ops[2].(*asm.BitShift).Amount
		m.set(d, m.get(d)&^(0xffff<<sh)|immv(1)<<sh)
	case asm.MOPmovri:
		m.set(d, immv(1))
	case asm.MOPmovrr, asm.MOPfmov:
		m.set(d, m.get(reg(1)))

	case asm.MOPaddrrr, asm.MOPaddrri12:
		m.set(d, src(1)+src(2))
	case asm.MOPaddrri24:
		m.set(d, src(1)+shifted(src(2), ops[3].(*asm.BitShift), 64))
	case asm.MOPaddrrrs:
		m.set(d, src(1)+shifted(src(2), ops[3].(*asm.BitShift), size))
	case asm.MOPaddrrre:
		m.set(d, src(1)+extended(src(2), ops[3].(*asm.ExtendShift), size))
	case asm.MOPsubrrr, asm.MOPsubrri12:
		m.set(d, src(1)-src(2))
	case asm.MOPsubrri24:
		m.set(d, src(1)-shifted(src(2), ops[3].(*asm.BitShift), 64))
	case asm.MOPsubrrrs:
		m.set(d, src(1)-shifted(src(2), ops[3].(*asm.BitShift), size))
	case asm.MOPneg:
		m.set(d, -src(1))
	case asm.MOPnegs:
		x := reg(2)
		xv := m.get(x)
		m.set(reg(1), -xv)
		m.subFlags(0, xv, x.Size)
	case asm.MOPmul:
		m.set(d, src(1)*src(2))
	case asm.MOPmadd:
		m.set(d, src(1)*src(2)+src(3))
	case asm.MOPmsub:
		m.set(d, src(3)-src(1)*src(2))
	case asm.MOPsdiv:
		x, y := sext(src(1), size), sext(src(2), size)
		switch {
		case y == 0:
			m.set(d, 0)
		case y == -1:
			m.set(d, uint64(-x))
		default:
			m.set(d, uint64(x/y))
		}
	case asm.MOPudiv:
		if y := src(2); y != 0 {
			m.set(d, src(1)/y)
		} else {
			m.set(d, 0)
		}

	case asm.MOPcmprr, asm.MOPcmpri:
		x := reg(1)
		m.subFlags(m.get(x), m.val(ops[2], x.Size), x.Size)
	case asm.MOPcmpri24:
		x := reg(1)
		m.subFlags(m.get(x), shifted(m.val(ops[2], x.Size), ops[3].(*asm.BitShift), 64), x.Size)
	case asm.MOPcmprrs:
		x := reg(1)
		m.subFlags(m.get(x), shifted(m.val(ops[2], x.Size), ops[3].(*asm.BitShift), x.Size), x.Size)
	case asm.MOPcmnri:
		x := reg(1)
		m.addFlags(m.get(x), m.val(ops[2], x.Size), x.Size)
	case asm.MOPtstrr, asm.MOPtstri:
		x := reg(1)
		m.logicFlags(m.get(x)&m.val(ops[2], x.Size), x.Size)

	case asm.MOPandrrr, asm.MOPandrri:
		m.set(d, src(1)&src(2))
	case asm.MOPandrrrs:
		m.set(d, src(1)&shifted(src(2), ops[3].(*asm.BitShift), size))
	case asm.MOPorrrrr, asm.MOPorrrri:
		m.set(d, src(1)|src(2))
	case asm.MOPorrrrrs:
		m.set(d, src(1)|shifted(src(2), ops[3].(*asm.BitShift), size))
	case asm.MOPeorrrr, asm.MOPeorrri:
		m.set(d, src(1)^src(2))
	case asm.MOPeorrrrs:
		m.set(d, src(1)^shifted(src(2), ops[3].(*asm.BitShift), size))
	case asm.MOPmvn:
		m.set(d, ^src(1))

	case asm.MOPlslrri, asm.MOPlslrrr:
		m.set(d, src(1)<<(src(2)%uint64(size)))
	case asm.MOPlsrrri, asm.MOPlsrrrr:
		m.set(d, src(1)>>(src(2)%uint64(size)))
	case asm.MOPasrrri, asm.MOPasrrrr:
		m.set(d, uint64(sext(src(1), size)>>(src(2)%uint64(size))))

	case asm.MOPsbfx, asm.MOPubfx:
		lsb, width := uint8(immv(2)), uint8(immv(3))
		v := src(1) >> lsb & mask(width)
		if in.Op == asm.MOPsbfx {
			v = uint64(sext(v, width))
		}
		m.set(d, v)
	case asm.MOPbfi:
		lsb, width := uint8(immv(2)), uint8(immv(3))
		field := mask(width) << lsb
		m.set(d, m.get(d)&^field|src(1)<<lsb&field)
	case asm.MOPsxtb:
		m.set(d, uint64(sext(m.get(reg(1)), 8)))
	case asm.MOPsxth:
		m.set(d, uint64(sext(m.get(reg(1)), 16)))
	case asm.MOPsxtw:
		m.set(d, uint64(sext(m.get(reg(1)), 32)))
	case asm.MOPuxtb:
		m.set(d, m.get(reg(1))&0xff)
	case asm.MOPuxth:
		m.set(d, m.get(reg(1))&0xffff)

	case asm.MOPcsel, asm.MOPfcsel:
		if m.cond(ops[3]) {
			m.set(d, src(1))
		} else {
			m.set(d, src(2))
		}
	case asm.MOPcsinc, asm.MOPcsinv, asm.MOPcsneg:
		if m.cond(ops[3]) {
			m.set(d, src(1))
			break
		}
		y := src(2)
		switch in.Op {
		case asm.MOPcsinc:
			y++
		case asm.MOPcsinv:
			y = ^y
		default:
			y = -y
		}
		m.set(d, y)
	case asm.MOPcset:
		if m.cond(ops[1]) {
			m.set(d, 1)
		} else {
			m.set(d, 0)
		}

	case asm.MOPfadd:
		m.setFloat(d, m.getFloat(reg(1))+m.getFloat(reg(2)))
	case asm.MOPfsub:
		m.setFloat(d, m.getFloat(reg(1))-m.getFloat(reg(2)))
	case asm.MOPfmul:
		m.setFloat(d, m.getFloat(reg(1))*m.getFloat(reg(2)))
	case asm.MOPfdiv:
		m.setFloat(d, m.getFloat(reg(1))/m.getFloat(reg(2)))
	case asm.MOPfneg:
		m.setFloat(d, -m.getFloat(reg(1)))
	case asm.MOPfabs:
		m.setFloat(d, math.Abs(m.getFloat(reg(1))))
	case asm.MOPfcvt:
		m.setFloat(d, m.getFloat(reg(1)))
	case asm.MOPfcmp:
		m.floatFlags(m.getFloat(reg(1)), m.getFloat(reg(2)))
	case asm.MOPfcmpz:
		m.floatFlags(m.getFloat(reg(1)), 0)
	case asm.MOPscvtf:
		x := reg(1)
		m.setFloat(d, float64(sext(m.get(x), x.Size)))
	case asm.MOPucvtf:
		m.setFloat(d, float64(m.get(reg(1))))
	case asm.MOPfcvtzs, asm.MOPfcvtas, asm.MOPfcvtms, asm.MOPfcvtps:
		m.set(d, uint64(int64(roundFor(in.Op, m.getFloat(reg(1))))))
	case asm.MOPfcvtzu, asm.MOPfcvtau, asm.MOPfcvtmu, asm.MOPfcvtpu:
		f := roundFor(in.Op, m.getFloat(reg(1)))
		if f < 0 {
			f = 0
		}
		m.set(d, uint64(f))

	case asm.MOPldrb, asm.MOPldrh, asm.MOPldr:
		mem := ops[1].(*asm.MemoryRef)
		m.set(d, m.load(m.addr(mem), int(mem.Size/8)))
	case asm.MOPldrsb, asm.MOPldrsh, asm.MOPldrsw:
		mem := ops[1].(*asm.MemoryRef)
		m.set(d, uint64(sext(m.load(m.addr(mem), int(mem.Size/8)), mem.Size)))
	case asm.MOPstrb, asm.MOPstrh, asm.MOPstr:
		mem := ops[1].(*asm.MemoryRef)
		m.store(m.addr(mem), m.get(d), int(mem.Size/8))
	case asm.MOPldp:
		a, n := m.addr(ops[2].(*asm.MemoryRef)), int(size/8)
		m.set(d, m.load(a, n))
		m.set(reg(1), m.load(a+uint64(n), n))
	case asm.MOPstp:
		a, n := m.addr(ops[2].(*asm.MemoryRef)), int(size/8)
		m.store(a, m.get(d), n)
		m.store(a+uint64(n), m.get(reg(1)), n)

	case asm.MOPb:
		return ops[0].(*asm.Label), false
	case asm.MOPbcond:
		if m.cond(ops[0]) {
			return ops[1].(*asm.Label), false
		}
	case asm.MOPcbz, asm.MOPcbnz:
		if (m.get(d) == 0) == (in.Op == asm.MOPcbz) {
			return ops[1].(*asm.Label), false
		}
	case asm.MOPtbz, asm.MOPtbnz:
		if (m.get(d)>>immv(1)&1 == 0) == (in.Op == asm.MOPtbz) {
			return ops[2].(*asm.Label), false
		}
	case asm.MOPbl, asm.MOPblr, asm.MOPblraaz:
		if m.onCall != nil {
			m.onCall(m, in)
		}
	case asm.MOPtailb, asm.MOPtailbr:
		if m.onCall != nil {
			m.onCall(m, in)
		}
		return nil, true
	case asm.MOPret, asm.MOPretaa:
		return nil, true
	default:
		m.t.Fatalf("interp: unsupported instruction %s", in.Op)
	}
	return nil, false
}

func roundFor(op asm.Mop, f float64) float64 {
	switch op {
	case asm.MOPfcvtas, asm.MOPfcvtau:
		return math.Round(f)
	case asm.MOPfcvtms, asm.MOPfcvtmu:
		return math.Floor(f)
	case asm.MOPfcvtps, asm.MOPfcvtpu:
		return math.Ceil(f)
	}
	return math.Trunc(f)
}
