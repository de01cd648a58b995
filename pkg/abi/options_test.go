package abi

import (
	"fmt"
	"strings"
	"testing"
)

func TestRefWidthFieldSize(t *testing.T) {
	if got := RefCompact.FieldSize(); got != 4 {
		t.Errorf("compact field size = %d, want 4", got)
	}
	if got := RefWide.FieldSize(); got != 8 {
		t.Errorf("wide field size = %d, want 8", got)
	}
}

func TestLoadOptions(t *testing.T) {
	src := `
opt_level: 0
ref_width: compact
big_endian: true
pac: full
`
	opts, err := LoadOptions(strings.NewReader(src), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.OptLevel != 0 {
		t.Errorf("OptLevel = %d, want 0", opts.OptLevel)
	}
	if opts.RefWidth != RefCompact {
		t.Errorf("RefWidth = %v, want compact", opts.RefWidth)
	}
	if !opts.BigEndian {
		t.Error("expected BigEndian")
	}
	if opts.PAC != PACFull {
		t.Errorf("PAC = %v, want full", opts.PAC)
	}
	if opts.PointerBits != 64 {
		t.Errorf("PointerBits = %d, want default 64", opts.PointerBits)
	}
}

func TestLoadOptionsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"opt level", "opt_level: 7\n"},
		{"pointer bits", "pointer_bits: 16\n"},
		{"pac", "pac: sometimes\n"},
		{"unknown key", "frobnicate: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadOptions(strings.NewReader(tt.src), DefaultOptions()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestEmptyOptionsKeepBase(t *testing.T) {
	base := DefaultOptions()
	base.OptLevel = 3
	opts, err := LoadOptions(strings.NewReader(""), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts != base {
		t.Errorf("got %+v, want %+v", opts, base)
	}
}

func TestFlagValueErrors(t *testing.T) {
	var w RefWidth
	var p PAC
	tests := []struct {
		name  string
		err   error
		want  string
		frame string
	}{
		{"ref width", w.Set("huge"), `invalid reference width "huge"`, "abi.(*RefWidth).Set"},
		{"pac", p.Set("sometimes"), `invalid pointer authentication mode "sometimes"`, "abi.(*PAC).Set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.HasPrefix(tt.err.Error(), tt.want) {
				t.Errorf("error %q does not start with %q", tt.err, tt.want)
			}
			if trace := fmt.Sprintf("%+v", tt.err); !strings.Contains(trace, tt.frame) {
				t.Errorf("expected %s in the stack, got:\n%s", tt.frame, trace)
			}
		})
	}
}
