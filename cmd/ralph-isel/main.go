package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/raymyers/ralph-isel/pkg/abi"
	"github.com/raymyers/ralph-isel/pkg/asm"
	"github.com/raymyers/ralph-isel/pkg/ice"
	"github.com/raymyers/ralph-isel/pkg/ir"
	"github.com/raymyers/ralph-isel/pkg/isel"
	"github.com/raymyers/ralph-isel/pkg/typelayout"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var version = "0.1.0"

// Selection options
var (
	optLevel    int
	refWidth    abi.RefWidth
	pac         abi.PAC
	pointerBits int
	bigEndian   bool
	configFile  string
)

// Driver options
var (
	jobs      int
	funcNames []string
	showStats bool
	trace     bool
	darwin    bool
	noPads    bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// singleDashFlags lists long flags that are also accepted with one dash,
// the way compiler drivers spell them.
var singleDashFlags = []string{"stats", "trace", "config", "darwin"}

// normalizeFlags converts single-dash long flags like -stats to --stats.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		for _, name := range singleDashFlags {
			if arg == "-"+name {
				result[i] = "--" + name
				break
			}
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	defaults := abi.DefaultOptions()
	refWidth = defaults.RefWidth
	pac = defaults.PAC

	rootCmd := &cobra.Command{
		Use:   "ralph-isel [file]",
		Short: "ralph-isel selects AArch64 instructions for an IR module",
		Long: `ralph-isel reads a tree IR module written as YAML, selects
AArch64 machine instructions for each function and prints them as
assembly over virtual registers. Immediates and memory offsets that
do not encode are legalized during selection.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			opts, err := resolveOptions(cmd.Flags(), defaults)
			if err != nil {
				fmt.Fprintf(errOut, "ralph-isel: %v\n", err)
				return err
			}
			return doSelect(args[0], opts, out, errOut, cmd.Flags().Changed("darwin"))
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().IntVarP(&optLevel, "opt-level", "O", defaults.OptLevel, "Optimization level (0-3)")
	rootCmd.Flags().Var(&refWidth, "ref-width", "Width of managed references (compact or wide)")
	rootCmd.Flags().Var(&pac, "pac", "Pointer authentication (none, return or full)")
	rootCmd.Flags().IntVar(&pointerBits, "pointer-bits", defaults.PointerBits, "Pointer width in bits (32 or 64)")
	rootCmd.Flags().BoolVar(&bigEndian, "big-endian", defaults.BigEndian, "Select for a big-endian target")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Read selection options from a YAML file")

	rootCmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "Number of functions selected in parallel")
	rootCmd.Flags().StringSliceVarP(&funcNames, "func", "f", nil, "Select only the named functions")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "Print selection statistics to stderr")
	rootCmd.Flags().BoolVar(&trace, "trace", false, "Trace selected statements to stderr")
	rootCmd.Flags().BoolVar(&darwin, "darwin", false, "Use Mach-O symbol conventions")
	rootCmd.Flags().BoolVar(&noPads, "no-long-branch-pads", false, "Skip rewriting out-of-range conditional branches")

	return rootCmd
}

// resolveOptions layers the config file over the defaults, then applies
// the flags that were given explicitly.
func resolveOptions(flags *pflag.FlagSet, defaults abi.Options) (abi.Options, error) {
	opts := defaults
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return opts, errors.Wrapf(err, "opening %s", configFile)
		}
		defer f.Close()
		if opts, err = abi.LoadOptions(f, opts); err != nil {
			return opts, errors.Wrapf(err, "reading %s", configFile)
		}
	}
	flags.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "opt-level":
			opts.OptLevel = optLevel
		case "ref-width":
			opts.RefWidth = refWidth
		case "pac":
			opts.PAC = pac
		case "pointer-bits":
			opts.PointerBits = pointerBits
		case "big-endian":
			opts.BigEndian = bigEndian
		}
	})
	if jobs < 1 {
		return opts, errors.Errorf("--jobs must be at least 1, got %d", jobs)
	}
	return opts, opts.Validate()
}

// selectedFuncs returns the functions named by --func, or all of them.
func selectedFuncs(mod *ir.Module) ([]*ir.Function, error) {
	if len(funcNames) == 0 {
		return mod.Funcs, nil
	}
	var fns []*ir.Function
	for _, name := range funcNames {
		f := mod.Func(name)
		if f == nil {
			return nil, errors.Errorf("no function %q in module %s", name, mod.Name)
		}
		fns = append(fns, f)
	}
	return fns, nil
}

// selection is the result of selecting one function.
type selection struct {
	fn   *asm.Function
	pads int
}

// selectAll selects fns with at most jobs functions in flight. An internal
// compiler error in any function fails the whole module.
func selectAll(sel *isel.Selector, fns []*ir.Function, jobs int) ([]selection, error) {
	results := make([]selection, len(fns))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, f := range fns {
		g.Go(func() error {
			return ice.Catch(func() {
				mf := sel.SelectFunction(f)
				r := selection{fn: mf}
				if !noPads {
					r.pads = isel.InsertLongBranchPads(mf)
				}
				results[i] = r
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func doSelect(filename string, opts abi.Options, out, errOut io.Writer, forceDarwin bool) error {
	mod, err := ir.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-isel: %v\n", err)
		return err
	}
	fns, err := selectedFuncs(mod)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-isel: %v\n", err)
		return err
	}

	sel := isel.NewSelector(mod, typelayout.New(mod, opts.PointerBits), opts)
	n := jobs
	if trace {
		// Trace lines of concurrent functions would interleave.
		sel.SetTrace(errOut)
		n = 1
	}
	results, err := selectAll(sel, fns, n)
	if err != nil {
		if trace {
			fmt.Fprintf(errOut, "ralph-isel: %+v\n", err)
		} else {
			fmt.Fprintf(errOut, "ralph-isel: %v\n", err)
		}
		return err
	}

	p := asm.NewPrinter(out)
	if forceDarwin {
		p.SetDarwin(darwin)
	}
	if col, ok := commentColumn(out); ok {
		p.SetCommentColumn(col)
	}
	mfs := make([]*asm.Function, len(results))
	for i, r := range results {
		mfs[i] = r.fn
	}
	p.PrintFunctions(mfs)

	if showStats {
		printStats(errOut, results)
	}
	return nil
}

// commentColumn narrows the comment column when writing to a terminal
// that is too narrow for the default.
func commentColumn(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width >= 80 {
		return 0, false
	}
	return max(width/2, 24), true
}

func printStats(w io.Writer, results []selection) {
	var insns, pads, frame int64
	var vregs int
	for _, r := range results {
		insns += int64(len(r.fn.Insns()))
		pads += int64(r.pads)
		frame += r.fn.FrameSize
		vregs += r.fn.Pool.NumVRegs()
	}
	fmt.Fprintf(w, "ralph-isel: %s functions, %s instructions (%s of code)\n",
		humanize.Comma(int64(len(results))), humanize.Comma(insns), humanize.IBytes(uint64(insns)*4))
	fmt.Fprintf(w, "ralph-isel: %s virtual registers, %s frame bytes, %s long-branch pads\n",
		humanize.Comma(int64(vregs)), humanize.Comma(frame), humanize.Comma(pads))
}
