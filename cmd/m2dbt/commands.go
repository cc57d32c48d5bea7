package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/sarchlab/m2dbt/codegen"
	"github.com/sarchlab/m2dbt/insts"
	"github.com/sarchlab/m2dbt/jit"
	"github.com/sarchlab/m2dbt/loader"
	"github.com/sarchlab/m2dbt/state"
	"github.com/sarchlab/m2dbt/translate"
)

func newRootCmd() *cobra.Command {
	var verbosity string

	root := &cobra.Command{
		Use:           "m2dbt",
		Short:         "AArch64 binary translation core",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbosity != "" {
				tlog.SetVerbosity(verbosity)
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&verbosity, "verbose", "", "Log topics to enable (translate,codegen,jit,cache)")

	root.AddCommand(
		newLayoutCmd(),
		newTranslateCmd(),
		newCompileCmd(),
		newDisasmCmd(),
	)

	return root
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Print the guest state block layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLayout(cmd.OutOrStdout())
		},
	}
}

func printLayout(w io.Writer) error {
	fmt.Fprintf(w, "%-18s %6s %4s\n", "slot", "offset", "size")
	for _, l := range state.Locations() {
		off, err := state.OffsetOf(l)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-18v %6d %4d\n", l, off, l.Size())
	}
	fmt.Fprintf(w, "%-18s %6d\n", "total", state.Size)

	return nil
}

func newTranslateCmd() *cobra.Command {
	var (
		stepCounting bool
		maxInsts     int
	)

	cmd := &cobra.Command{
		Use:   "translate <insts.json>",
		Short: "Lower a guest instruction list to IR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readInstructions(args[0])
			if err != nil {
				return err
			}

			t := translate.New(
				translate.WithStepCounting(stepCounting),
				translate.WithMaxInstructions(maxInsts),
			)

			fn, err := t.Translate(list[0].Address, list)
			if err != nil {
				return errors.Wrap(err, "translate")
			}

			_, err = io.WriteString(cmd.OutOrStdout(), fn.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&stepCounting, "step-counting", false, "Decrement the step counter on unit entry")
	cmd.Flags().IntVar(&maxInsts, "max-instructions", 0, "Stop the unit after this many instructions (0 = no limit)")

	return cmd
}

func newCompileCmd() *cobra.Command {
	var (
		configPath string
		breakpoint bool
	)

	cmd := &cobra.Command{
		Use:   "compile <insts.json>",
		Short: "Compile a guest instruction list to host code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readInstructions(args[0])
			if err != nil {
				return err
			}

			config := jit.DefaultConfig()
			if configPath != "" {
				config, err = jit.LoadConfig(configPath)
				if err != nil {
					return err
				}
			}

			var opts []jit.Option
			if breakpoint {
				opts = append(opts, jit.WithBreakpoints())
			}

			c, err := jit.NewCompiler(config, opts...)
			if err != nil {
				return err
			}

			ctx := tlog.ContextWithSpan(cmd.Context(), tlog.Root())

			return compileUnit(ctx, cmd.OutOrStdout(), c, list)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a JSON compiler configuration")
	cmd.Flags().BoolVar(&breakpoint, "breakpoint", false, "Place a BRK at the unit entry")

	return cmd
}

func compileUnit(ctx context.Context, w io.Writer, c *jit.Compiler, list []*insts.Instruction) error {
	f, err := c.Compile(ctx, list[0].Address, list)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "unit %#x: %d bytes\n", f.Address, f.Size)
	for _, l := range codegen.Disassemble(f.Code) {
		fmt.Fprintf(w, "  %s\n", l)
	}

	s := c.Cache().Stats()
	fmt.Fprintf(w, "cache: %d entries, %d lookups, %d hits, %d misses\n",
		c.Cache().Len(), s.Lookups, s.Hits, s.Misses)

	return nil
}

func newDisasmCmd() *cobra.Command {
	var base uint64

	cmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "Disassemble the executable segments of an ELF or raw code image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loader.Load(args[0], base)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s image, entry %#x\n", img.Format, img.Entry)
			for _, seg := range img.Code() {
				fmt.Fprintf(w, "segment %#x (%d bytes):\n", seg.Addr, len(seg.Data))
				for _, l := range codegen.DisassembleAt(seg.Data, seg.Addr) {
					fmt.Fprintf(w, "  %s\n", l)
				}
			}

			return nil
		},
	}

	cmd.Flags().Uint64Var(&base, "base", 0, "Load address of a raw image")

	return cmd
}

func readInstructions(path string) ([]*insts.Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read instructions")
	}

	var list []*insts.Instruction
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "parse %s", path)
	}
	if len(list) == 0 {
		return nil, errors.New("%s: no instructions", path)
	}

	return list, nil
}
