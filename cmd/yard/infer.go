package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/console"
)

type inferOpts struct {
	model      string
	job        string
	question   string
	schema     string
	schemaFile string
	dtype      string
}

func newInferCmd() *cobra.Command {
	var (
		flags clientFlags
		opts  inferOpts
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run one inference request against a model",
		Long: "Asks the backend for a prediction. The target is --model, or the merged output of the " +
			"registered model named by --job, or the default base model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfer(cmd, &flags, &opts)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model id or path to run")
	cmd.Flags().StringVarP(&opts.job, "job", "j", "", "use the merged output of this registered job")
	cmd.Flags().StringVarP(&opts.question, "question", "q", "", "question to ask")
	cmd.Flags().StringVarP(&opts.schema, "schema", "s", "", "schema passed with the question")
	cmd.Flags().StringVar(&opts.schemaFile, "schema-file", "", "read the schema from a file")
	cmd.Flags().StringVar(&opts.dtype, "dtype", "", "compute dtype (bfloat16, float16, float32)")
	cmd.MarkFlagsMutuallyExclusive("model", "job")
	cmd.MarkFlagsMutuallyExclusive("schema", "schema-file")
	return cmd
}

func runInfer(cmd *cobra.Command, flags *clientFlags, opts *inferOpts) error {
	ctx := cmd.Context()
	e, err := flags.load(cmd)
	if err != nil {
		return err
	}
	s, err := e.session("", nil)
	if err != nil {
		return err
	}

	if opts.job != "" {
		if err := s.Registry.Refresh(ctx); err != nil {
			return fmt.Errorf("list models: %w", err)
		}
		a, ok := s.Registry.Find(opts.job)
		if !ok {
			return fmt.Errorf("no model with job id %q", opts.job)
		}
		s.Registry.SelectForInference(a.JobID, a.MergedPath)
	}
	if opts.schemaFile != "" {
		data, err := os.ReadFile(opts.schemaFile)
		if err != nil {
			return err
		}
		opts.schema = string(data)
	}

	sets := []struct {
		field, value string
		set          bool
	}{
		{console.InferTarget, opts.model, opts.model != ""},
		{console.InferQuestion, opts.question, cmd.Flags().Changed("question")},
		{console.InferSchema, opts.schema, cmd.Flags().Changed("schema") || opts.schemaFile != ""},
		{console.InferDtype, opts.dtype, opts.dtype != ""},
	}
	for _, f := range sets {
		if !f.set {
			continue
		}
		if err := s.Inference.Set(f.field, f.value); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running %s...\n", s.Inference.Target())
	err = s.Inference.Run(ctx)
	fmt.Fprintln(out, s.Inference.View().Result)
	if err != nil {
		return fmt.Errorf("inference failed")
	}
	return nil
}
