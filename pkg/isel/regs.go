package isel

import (
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ir"
)

// varRegs maps register-resident variables and pseudo registers to the
// virtual registers that hold them.
type varRegs struct {
	pool  *asm.Pool
	vars  map[string]*asm.Register
	pregs map[int]*asm.Register
}

func newVarRegs(pool *asm.Pool) *varRegs {
	return &varRegs{
		pool:  pool,
		vars:  make(map[string]*asm.Register),
		pregs: make(map[int]*asm.Register),
	}
}

// fresh allocates a virtual register for a value of type ty.
func (v *varRegs) fresh(ty ir.PrimType, size uint8) *asm.Register {
	if ty.IsFloat() {
		return v.pool.NewVReg(size, asm.ClassFloat)
	}
	return v.pool.NewVReg(size, asm.ClassInt)
}

// mapVar returns the register of a variable, allocating it on first use.
func (v *varRegs) mapVar(name string, ty ir.PrimType, size uint8) *asm.Register {
	if r, ok := v.vars[name]; ok {
		return r
	}
	r := v.fresh(ty, size)
	v.vars[name] = r
	return r
}

// mapPreg returns the register of a pseudo register.
func (v *varRegs) mapPreg(n int, ty ir.PrimType, size uint8) *asm.Register {
	if r, ok := v.pregs[n]; ok {
		return r
	}
	r := v.fresh(ty, size)
	v.pregs[n] = r
	return r
}
