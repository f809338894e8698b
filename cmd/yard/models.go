package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/console"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "List, deploy and delete trained models",
	}

	cmd.AddCommand(newModelsListCmd())
	cmd.AddCommand(newModelsActionCmd("promote", "Deploy a model, retiring the active one", (*console.Registry).Promote))
	cmd.AddCommand(newModelsActionCmd("remove", "Delete a model and its files", (*console.Registry).Remove))
	return cmd
}

// registry builds a registry with the configured notifiers and refreshes it.
func (f *clientFlags) registry(cmd *cobra.Command, confirm console.Confirmer) (*console.Registry, error) {
	e, err := f.load(cmd)
	if err != nil {
		return nil, err
	}
	s, err := e.session("", confirm)
	if err != nil {
		return nil, err
	}
	if err := s.Registry.Refresh(cmd.Context()); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return s.Registry, nil
}

func printRegistry(w io.Writer, r *console.Registry) {
	a, ok := r.Active()
	console.RenderActive(w, a, ok)
	fmt.Fprintln(w)
	console.RenderArtifacts(w, r.Artifacts())
}

func newModelsListCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := flags.registry(cmd, nil)
			if err != nil {
				return err
			}
			printRegistry(cmd.OutOrStdout(), r)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

func newModelsActionCmd(use, short string, action func(*console.Registry, context.Context, string) error) *cobra.Command {
	var (
		flags clientFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := flags.registry(cmd, confirmer(cmd, yes))
			if err != nil {
				return err
			}
			if _, ok := r.Find(args[0]); !ok {
				return fmt.Errorf("no model with job id %q", args[0])
			}
			if err := action(r, cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("%s %s: %w", use, args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, r.Notice().Text)
			fmt.Fprintln(out)
			printRegistry(out, r)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
