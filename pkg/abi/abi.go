// Package abi holds the runtime ABI constants read by instruction selection
// and the read-only target options that pick between equivalent sequences.
package abi

import (
	"strings"

	"github.com/pkg/errors"
)

// Layout of generated objects and managed arrays.
const (
	ObjectAlignment    = 8
	ArrayLengthOffset  = 12
	ArrayContentOffset = 16
)

// RefWidth selects the width of reference fields in managed objects.
type RefWidth int

const (
	RefCompact RefWidth = iota // 4-byte references
	RefWide                    // 8-byte references
)

// FieldSize returns the size and alignment of a reference field in bytes.
func (w RefWidth) FieldSize() int64 {
	if w == RefCompact {
		return 4
	}
	return 8
}

func (w RefWidth) String() string {
	if w == RefCompact {
		return "compact"
	}
	return "wide"
}

// Set implements pflag.Value.
func (w *RefWidth) Set(s string) error {
	switch strings.ToLower(s) {
	case "compact", "4":
		*w = RefCompact
	case "wide", "8":
		*w = RefWide
	default:
		return errors.Errorf("invalid reference width %q (want compact or wide)", s)
	}
	return nil
}

// Type implements pflag.Value.
func (w *RefWidth) Type() string { return "refwidth" }

// PAC is the pointer-authentication variant.
type PAC int

const (
	PACNone PAC = iota
	PACReturn
	PACFull
)

var pacNames = []string{"none", "return", "full"}

func (p PAC) String() string {
	if int(p) < len(pacNames) {
		return pacNames[p]
	}
	return "?"
}

// Set implements pflag.Value.
func (p *PAC) Set(s string) error {
	for i, n := range pacNames {
		if strings.EqualFold(n, s) {
			*p = PAC(i)
			return nil
		}
	}
	return errors.Errorf("invalid pointer authentication mode %q (want none, return or full)", s)
}

// Type implements pflag.Value.
func (p *PAC) Type() string { return "pac" }

// UnresolvedFrameSlack is added on top of the current frame estimate when an
// offset is checked against an unresolved frame. It covers the callee-save
// area that is only known after register allocation.
const UnresolvedFrameSlack = 0xff
