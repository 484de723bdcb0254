package main

import (
	"fmt"
	"io"

	"github.com/apk-analysis/frida-enum/internal/catalog"
	"github.com/apk-analysis/frida-enum/internal/frida"
	"github.com/apk-analysis/frida-enum/internal/netdump"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newClassesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List every loaded class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newCatalog(cmd)
			if err != nil {
				return err
			}
			names, err := c.EnumerateAllClasses(cmd.Context())
			if err != nil {
				return err
			}
			return a.printClasses(cmd, names)
		},
	}
	cmd.Flags().Bool("json", false, "Print the list as one JSON array")
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <pattern>",
		Short: "List loaded classes whose name matches a pattern (regular expression by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, err := buildPattern(cmd, args[0])
			if err != nil {
				return err
			}
			c, err := a.newCatalog(cmd)
			if err != nil {
				return err
			}
			names, err := c.FindClasses(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			return a.printClasses(cmd, names)
		},
	}
	cmd.Flags().BoolP("ignore-case", "i", false, "Case-insensitive match")
	cmd.Flags().Bool("glob", false, "Treat the pattern as a shell glob")
	cmd.Flags().Bool("substring", false, "Treat the pattern as a plain substring (always case-insensitive)")
	cmd.Flags().Bool("json", false, "Print the list as one JSON array")
	return cmd
}

func buildPattern(cmd *cobra.Command, expr string) (catalog.Pattern, error) {
	glob, _ := cmd.Flags().GetBool("glob")
	substring, _ := cmd.Flags().GetBool("substring")
	ignoreCase, _ := cmd.Flags().GetBool("ignore-case")

	switch {
	case glob && substring:
		return nil, fmt.Errorf("--glob and --substring are mutually exclusive")
	case glob:
		return catalog.Glob(expr), nil
	case substring:
		return catalog.Substring(expr), nil
	}
	return catalog.CompilePattern(expr, ignoreCase)
}

func newMethodsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "methods <class>",
		Short: "List the methods declared by a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newCatalog(cmd)
			if err != nil {
				return err
			}
			methods, err := c.EnumMethods(cmd.Context(), catalog.ClassName(args[0]))
			if catalog.IsNotFound(err) {
				return fmt.Errorf("class %s is not loaded: %w", args[0], err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range methods {
				fmt.Fprintln(out, m.String())
			}
			a.console.Assert(len(methods) > 0, args[0], "declares no methods")
			return nil
		},
	}
}

func newNetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "net",
		Short: "Print buffers passed to send/sendto (and recv/recvfrom with --inbound) until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.fridaRuntime()
			if err != nil {
				return err
			}

			inbound, _ := cmd.Flags().GetBool("inbound")
			if cmd.Flags().Changed("inbound") {
				a.cfg.Frida.Inbound = inbound
			}
			showBytes, _ := cmd.Flags().GetBool("bytes")
			noColor, _ := cmd.Flags().GetBool("no-color")

			printer := netdump.NewPrinter(cmd.OutOrStdout(), !noColor && !color.NoColor && isTerminal(cmd.OutOrStdout()))
			opts := frida.TraceOptions{Inbound: a.cfg.Frida.Inbound, MaxCapture: a.cfg.Frida.MaxCapture}
			return rt.TraceNet(cmd.Context(), opts, func(p netdump.Packet) error {
				printed, err := printer.Print(p)
				if err != nil {
					return err
				}
				if printed && showBytes {
					a.console.Log(p.Function, p.Data)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("inbound", false, "Also hook recv and recvfrom")
	cmd.Flags().Bool("bytes", false, "Also log the raw bytes of each buffer")
	cmd.Flags().Bool("no-color", false, "Disable colored titles")
	cmd.Flags().Int("max-capture", frida.DefaultMaxCapture, "Maximum bytes captured per buffer")
	return cmd
}

func newPackageInfoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package-info",
		Short: "Print the PackageInfo of the target app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.fridaRuntime()
			if err != nil {
				return err
			}
			info, err := rt.PackageInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read package info: %w", err)
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				a.console.LogJSON(info)
				return nil
			}
			a.console.Log(info)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the package info as JSON")
	return cmd
}

// printClasses 逐行输出，--json 时整体输出一个数组
func (a *app) printClasses(cmd *cobra.Command, names []catalog.ClassName) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		a.console.LogJSON(names)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, n := range names {
		if _, err := fmt.Fprintln(out, n); err != nil {
			return err
		}
	}
	a.logger.WithField("count", len(names)).Debug("Classes listed")
	return nil
}

func isTerminal(w io.Writer) bool {
	type fdWriter interface{ Fd() uintptr }
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
