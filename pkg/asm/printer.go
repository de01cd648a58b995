package asm

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Printer outputs ARM64 assembly in GNU as syntax. Virtual registers print
// with a % prefix so unallocated code is still readable.
type Printer struct {
	w          io.Writer
	isDarwin   bool
	commentCol int
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, isDarwin: runtime.GOOS == "darwin", commentCol: 40}
}

// SetCommentColumn sets the column at which instruction comments start.
func (p *Printer) SetCommentColumn(col int) { p.commentCol = col }

// SetDarwin forces Mach-O symbol conventions on or off.
func (p *Printer) SetDarwin(on bool) { p.isDarwin = on }

// PrintFunctions outputs a text section holding the given functions.
func (p *Printer) PrintFunctions(fns []*Function) {
	fmt.Fprintf(p.w, "\t.text\n")
	for _, f := range fns {
		p.PrintFunction(f)
	}
}

// symbolName returns the symbol name with platform-appropriate prefix
func (p *Printer) symbolName(name string) string {
	if p.isDarwin {
		return "_" + name
	}
	return name
}

// PrintFunction outputs one function and its jump tables.
func (p *Printer) PrintFunction(f *Function) {
	name := p.symbolName(f.Name)
	fmt.Fprintf(p.w, "\t.align\t2\n")
	fmt.Fprintf(p.w, "\t.global\t%s\n", name)
	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.type\t%s, %%function\n", name)
	}
	fmt.Fprintf(p.w, "%s:\n", name)

	for b := f.Entry; b != nil; b = b.Next {
		if b.Label != nil {
			fmt.Fprintf(p.w, "%s:\n", b.Label.Name)
		}
		for _, i := range b.Insns {
			p.PrintInsn(i)
		}
	}

	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.size\t%s, .-%s\n", name, name)
	}
	if len(f.JumpTables) > 0 {
		p.printJumpTables(f.JumpTables)
	}
	fmt.Fprintf(p.w, "\n")
}

func (p *Printer) printJumpTables(tables []*JumpTable) {
	if p.isDarwin {
		fmt.Fprintf(p.w, "\t.section\t__TEXT,__const\n")
	} else {
		fmt.Fprintf(p.w, "\t.section\t.rodata\n")
	}
	for _, jt := range tables {
		fmt.Fprintf(p.w, "\t.p2align\t3\n")
		fmt.Fprintf(p.w, "%s:\n", jt.Label.Name)
		for _, t := range jt.Targets {
			fmt.Fprintf(p.w, "\t.xword\t%s-%s\n", t.Name, jt.Label.Name)
		}
	}
	fmt.Fprintf(p.w, "\t.text\n")
}

// PrintInsn outputs one instruction line.
func (p *Printer) PrintInsn(i *Insn) {
	var sb strings.Builder
	sb.WriteByte('\t')
	sb.WriteString(p.FormatInsn(i))
	comment := i.Comment
	if i.StackMap {
		comment = joinComment(comment, "stackmap")
	}
	if len(i.Deopt) > 0 {
		parts := make([]string, len(i.Deopt))
		for n, o := range i.Deopt {
			parts[n] = p.formatOperand(o)
		}
		comment = joinComment(comment, "deopt: "+strings.Join(parts, ", "))
	}
	if comment != "" {
		// a tab counts as 8 columns
		col := 8 + len(sb.String()) - 1
		for col < p.commentCol {
			sb.WriteByte(' ')
			col++
		}
		sb.WriteString(" // ")
		sb.WriteString(comment)
	}
	sb.WriteByte('\n')
	io.WriteString(p.w, sb.String())
}

func joinComment(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// FormatInsn renders an instruction without indentation or newline.
func (p *Printer) FormatInsn(i *Insn) string {
	name := i.Op.String()
	var ops []string
	switch i.Op {
	case MOPbcond:
		c := i.Opnds[0].(*CondOperand)
		return fmt.Sprintf("b.%s\t%s", c.Code, p.formatOperand(i.Opnds[1]))
	case MOPfcmpz:
		return fmt.Sprintf("fcmp\t%s, #0.0", p.formatOperand(i.Opnds[1]))
	case MOPmovz, MOPmovn, MOPmovk:
		imm := i.Opnds[1].(*Immediate)
		sh := i.Opnds[2].(*BitShift)
		s := fmt.Sprintf("%s\t%s, #%d", name, p.formatOperand(i.Opnds[0]), imm.Value)
		if sh.Amount != 0 {
			s += fmt.Sprintf(", lsl #%d", sh.Amount)
		}
		return s
	}
	for _, o := range i.Opnds {
		if r, ok := o.(*Register); ok && r.Class == ClassFlags {
			continue
		}
		ops = append(ops, p.formatOperand(o))
	}
	if len(ops) == 0 {
		return name
	}
	return name + "\t" + strings.Join(ops, ", ")
}

func (p *Printer) formatOperand(o Operand) string {
	switch v := o.(type) {
	case *Register:
		return regName(v)
	case *Immediate:
		return fmt.Sprintf("#%d", v.Value)
	case *MemoryRef:
		return p.formatMem(v)
	case *Label:
		return v.Name
	case *CondOperand:
		return v.Code.String()
	case *BitShift:
		return fmt.Sprintf("%s #%d", v.Kind, v.Amount)
	case *ExtendShift:
		if v.Amount == 0 {
			return v.Kind.String()
		}
		return fmt.Sprintf("%s #%d", v.Kind, v.Amount)
	case *FuncName:
		return p.symbolName(v.Name)
	case *SymbolRef:
		return p.formatSym(v)
	}
	return "?"
}

func (p *Printer) formatSym(s *SymbolRef) string {
	name := p.symbolName(s.Name)
	if strings.HasPrefix(s.Name, ".L") {
		name = s.Name
	}
	switch {
	case p.isDarwin && s.Lo12:
		return name + "@PAGEOFF"
	case p.isDarwin:
		return name + "@PAGE"
	case s.Lo12:
		return ":lo12:" + name
	}
	return name
}

func (p *Printer) formatMem(m *MemoryRef) string {
	base := regName(m.Base)
	switch m.Mode {
	case AddrBaseIndex:
		idx := regName(m.Index)
		if m.Extend == nil {
			return fmt.Sprintf("[%s, %s]", base, idx)
		}
		return fmt.Sprintf("[%s, %s, %s]", base, idx, p.formatOperand(m.Extend))
	case AddrLo12:
		return fmt.Sprintf("[%s, #%s]", base, p.formatSym(&SymbolRef{Name: m.Symbol, Lo12: true}))
	}
	if m.Offset == nil || m.Offset.Value == 0 && !m.Offset.Vary {
		return fmt.Sprintf("[%s]", base)
	}
	return fmt.Sprintf("[%s, #%d]", base, m.Offset.Value)
}

// regName returns the assembler name of a register for its width.
func regName(r *Register) string {
	if r.IsVirtual() {
		return "%" + regPrefix(r) + fmt.Sprint(r.Num)
	}
	switch r.Num {
	case SP:
		if r.Is64() {
			return "sp"
		}
		return "wsp"
	case ZR:
		if r.Is64() {
			return "xzr"
		}
		return "wzr"
	case RFlag:
		return "nzcv"
	case ArgP:
		return "argp"
	}
	if r.IsFloat() {
		return fmt.Sprintf("%s%d", regPrefix(r), r.Num-V0)
	}
	return fmt.Sprintf("%s%d", regPrefix(r), r.Num)
}

func regPrefix(r *Register) string {
	if r.IsFloat() {
		switch r.Size {
		case 32:
			return "s"
		case 128:
			return "q"
		}
		return "d"
	}
	if r.Is64() {
		return "x"
	}
	return "w"
}
