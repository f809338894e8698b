package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/console"
	"github.com/zulandar/modelyard/internal/models"
)

func newTrainCmd() *cobra.Command {
	var (
		flags  datasetFlags
		sets   []string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Start a fine-tuning run",
		Long: "Builds a training configuration from the task kind's defaults and any --set overrides, " +
			"then submits it. The backend trains synchronously, so the command waits for the logs.",
		Example: "  yard train --task oa-qna --set num_train_epochs=5 --set optim=adamw_torch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, &flags, sets, dryRun)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a field as name=value (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the configuration without submitting it")
	return cmd
}

// applySets parses name=value overrides onto the form.
func applySets(p *console.ParameterSession, sets []string) error {
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q: want name=value", s)
		}
		if err := p.Set(strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	return nil
}

func runTrain(cmd *cobra.Command, flags *datasetFlags, sets []string, dryRun bool) error {
	out := cmd.OutOrStdout()
	kind, err := models.ParseTaskKind(flags.task)
	if err != nil {
		return err
	}
	e, err := flags.load(cmd)
	if err != nil {
		return err
	}
	s, err := e.session(kind, nil)
	if err != nil {
		return err
	}
	p := s.Params()
	if err := applySets(p, sets); err != nil {
		return err
	}
	if dryRun {
		console.RenderFields(out, p.Fields())
		return nil
	}

	fmt.Fprintf(out, "Training %s on %s data. This can take a while...\n", p.Fields().Format(console.FieldModelID), kind)
	err = p.Submit(cmd.Context())
	o := p.Outcome()
	fmt.Fprintln(out, o.Status)
	fmt.Fprintln(out, o.Logs)
	if err != nil {
		return fmt.Errorf("training failed")
	}
	return nil
}
