package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schaermu/ecm/internal/component"
	"github.com/schaermu/ecm/internal/ecm"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the components folder and an empty manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.manager.Init(ctx)
		if err != nil {
			return err
		}
		if created {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "created empty manifest")
		} else {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "manifest already exists")
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <manifest-url>",
	Short: "Install a component and its missing dependencies",
	Long: `Add fetches the descriptor at the given URL, installs the component and any
requirement that is not already satisfied, records it in the manifest and
regenerates the export index.

A component with the same name is replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.manager.Add(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), "added", res)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Update an installed component to its latest published version",
	Long: `Update fetches the latest descriptor of the named component and, when it is
an upgrade, installs it together with new or incompatible requirements.

With --all every top-level component with an available update is updated;
a failing component does not stop the others.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if updateAll && len(args) > 0 {
			return errors.New("--all does not take a component name")
		}
		if !updateAll && len(args) != 1 {
			return errors.New("requires a component name or --all")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, dryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if updateAll {
			results, err := a.manager.UpdateAll(ctx)
			for _, res := range results {
				printResult(out, "updated", res)
			}
			if len(results) == 0 && err == nil {
				_, _ = fmt.Fprintln(out, "all components are up to date")
			}
			return err
		}

		res, err := a.manager.Update(ctx, args[0])
		if err != nil {
			return err
		}
		if !res.Changed {
			_, _ = fmt.Fprintf(out, "%s is up to date (%s)\n", res.Record.Name, res.Record.Version)
			return nil
		}
		printResult(out, "updated", res)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove an installed component",
	Long: `Delete removes the named top-level component and its source file.
Dependencies it pulled in stay installed; use "ecm orphans" to find them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.Delete(ctx, args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report components with a newer published version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		available, err := a.manager.CheckUpdates(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(available) == 0 {
			_, _ = fmt.Fprintln(out, "all components are up to date")
			return nil
		}
		for _, u := range available {
			_, _ = fmt.Fprintf(out, "%s %s -> %s\n", u.Name, u.Installed, u.Latest)
		}
		return nil
	},
}

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show installed components and their dependencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.Reload(ctx); err != nil {
			return err
		}
		forest := a.manager.List()

		out := cmd.OutOrStdout()
		if listJSON {
			if forest == nil {
				forest = component.Forest{}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(forest)
		}
		if len(forest) == 0 {
			_, _ = fmt.Fprintln(out, "no components installed")
			return nil
		}
		renderTree(out, forest)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Regenerate the export index from the manifest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		text, err := a.manager.RegenerateIndex(ctx)
		if err != nil {
			return err
		}
		if text != "" {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), text)
		}
		return nil
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List component files that no installed component references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := setupSignalHandler()
		defer cancel()

		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		orphans, err := a.manager.Orphans(ctx)
		if err != nil {
			return err
		}
		for _, o := range orphans {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), o)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the forest as JSON")
}

func printResult(w io.Writer, verb string, res ecm.Result) {
	prefix := ""
	if res.DryRun {
		prefix = "[dry-run] would have "
	}
	_, _ = fmt.Fprintf(w, "%s%s %s %s\n", prefix, verb, res.Record.Name, res.Record.Version)
	if len(res.Planned) > 0 {
		_, _ = fmt.Fprintf(w, "  installed: %s\n", strings.Join(res.Planned, ", "))
	}
}

// renderTree prints the forest with one indented line per record
func renderTree(w io.Writer, forest component.Forest) {
	forest.Walk(func(r component.Record, depth int) bool {
		marker := ""
		if r.Protected {
			marker = " (protected)"
		}
		_, _ = fmt.Fprintf(w, "%s%s %s%s\n", strings.Repeat("  ", depth), r.Name, r.Version, marker)
		return true
	})
}
