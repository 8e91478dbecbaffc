package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"specgen/pkg/compiler"
	"specgen/pkg/generator"
)

func newGenerateCmd(a *app) *cobra.Command {
	var flags projectFlags
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "generate [suite files...]",
		Short: "Compile suites into _test.go files",
		Long: `Compiles the given suite files, or the suites listed in specgen.yml when no
files are given, into one _test.go file per suite.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProject(&flags, args)
			if err != nil {
				return err
			}
			return a.generate(cmd.Context(), p, dryRun, cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print generated files to stdout instead of writing them")
	return cmd
}

func (a *app) generate(ctx context.Context, p *project, dryRun bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	suites, err := loadSuites(p.paths)
	if err != nil {
		return err
	}
	res, err := compiler.New(p.opts).Compile(ctx, suites)
	if err != nil {
		return err
	}
	for _, warning := range res.Warnings {
		a.logger.Warn(warning)
	}
	if dryRun {
		for _, name := range res.Names() {
			fmt.Fprintf(out, "// %s\n%s\n", name, res.Files[name])
		}
		return nil
	}
	if err := res.Write(p.output); err != nil {
		return err
	}
	a.logger.Info("generated tests", zap.Int("files", len(res.Files)), zap.String("output", p.output))
	fmt.Fprintf(out, "wrote %d file(s) to %s\n", len(res.Files), p.output)
	return nil
}

func newListCmd(a *app) *cobra.Command {
	var flags projectFlags
	cmd := &cobra.Command{
		Use:   "list [suite files...]",
		Short: "Print the tests and benchmarks each suite generates",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProject(&flags, args)
			if err != nil {
				return err
			}
			suites, err := loadSuites(p.paths)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range suites {
				item, err := generator.Generate(s.Root)
				if err != nil {
					return fmt.Errorf("%s: %w", s.Path, err)
				}
				tests, benchmarks := generator.Count(item)
				fmt.Fprintf(out, "%s (%d tests, %d benchmarks)\n", s.Path, tests, benchmarks)
				printItem(out, item, 1)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func printItem(out io.Writer, item generator.Item, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := item.(type) {
	case *generator.Group:
		fmt.Fprintf(out, "%s%s/\n", indent, n.Name)
		for _, member := range n.Members() {
			printItem(out, member, depth+1)
		}
	case *generator.Unit:
		fmt.Fprintf(out, "%s%s [%s, %d statements]\n", indent, n.Name, n.Kind, n.Body.Len())
	}
}
