package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/console"
	"github.com/zulandar/modelyard/internal/models"
)

// datasetFlags are shared by every dataset subcommand.
type datasetFlags struct {
	clientFlags
	task string
}

func (f *datasetFlags) bind(cmd *cobra.Command) {
	f.clientFlags.bind(cmd)
	cmd.Flags().StringVarP(&f.task, "task", "t", string(models.TaskTextToSQL), "task kind (text-to-sql or oa-qna)")
}

// table loads the dataset of the selected kind.
func (f *datasetFlags) table(cmd *cobra.Command, confirm console.Confirmer) (*console.DatasetTable, error) {
	kind, err := models.ParseTaskKind(f.task)
	if err != nil {
		return nil, err
	}
	e, err := f.load(cmd)
	if err != nil {
		return nil, err
	}
	s, err := e.session(kind, confirm)
	if err != nil {
		return nil, err
	}
	d := s.Dataset()
	if err := d.Load(cmd.Context()); err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return d, nil
}

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage labeled training examples",
	}

	cmd.AddCommand(newDatasetListCmd())
	cmd.AddCommand(newDatasetAddCmd())
	cmd.AddCommand(newDatasetUpdateCmd())
	cmd.AddCommand(newDatasetDeleteCmd())
	cmd.AddCommand(newDatasetUploadCmd())
	return cmd
}

func newDatasetListCmd() *cobra.Command {
	var flags datasetFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the dataset of a task kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.table(cmd, nil)
			if err != nil {
				return err
			}
			console.RenderDataset(cmd.OutOrStdout(), d.Kind(), d.Rows(), -1)
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}

// entryText holds the column values given on the command line.
type entryText struct {
	question, answer, schema string
}

func (t *entryText) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.question, "question", "q", "", "question text")
	cmd.Flags().StringVarP(&t.answer, "answer", "a", "", "answer text")
	cmd.Flags().StringVarP(&t.schema, "schema", "s", "", "table schema (text-to-sql only)")
}

// apply copies the flags the user set onto row. Unset flags keep the row's
// current text.
func (t *entryText) apply(cmd *cobra.Command, d *console.DatasetTable, row int) error {
	for _, col := range []struct{ flag, value string }{
		{"question", t.question},
		{"answer", t.answer},
		{"schema", t.schema},
	} {
		if !cmd.Flags().Changed(col.flag) {
			continue
		}
		if err := d.Edit(row, col.flag, col.value); err != nil {
			return err
		}
	}
	return nil
}

func newDatasetAddCmd() *cobra.Command {
	var (
		flags datasetFlags
		text  entryText
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a labeled example",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetAdd(cmd, &flags, &text)
		},
	}

	flags.bind(cmd)
	text.bind(cmd)
	cmd.MarkFlagRequired("question")
	cmd.MarkFlagRequired("answer")
	return cmd
}

func runDatasetAdd(cmd *cobra.Command, flags *datasetFlags, text *entryText) error {
	d, err := flags.table(cmd, nil)
	if err != nil {
		return err
	}
	row, err := d.BeginAdd()
	if err != nil {
		return err
	}
	if err := text.apply(cmd, d, row); err != nil {
		return err
	}
	if err := d.Save(cmd.Context(), row); err != nil {
		return fmt.Errorf("add entry: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s entries.\n", d.Notice().Text, len(d.Rows()), d.Kind())
	return nil
}

// rowByID returns the table index of the persisted row with id.
func rowByID(d *console.DatasetTable, arg string) (int, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("invalid entry id %q", arg)
	}
	for i, r := range d.Rows() {
		if r.ID != nil && *r.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no %s entry with id %d", d.Kind(), id)
}

func newDatasetUpdateCmd() *cobra.Command {
	var (
		flags datasetFlags
		text  entryText
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the text of a labeled example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetUpdate(cmd, &flags, &text, args[0])
		},
	}

	flags.bind(cmd)
	text.bind(cmd)
	return cmd
}

func runDatasetUpdate(cmd *cobra.Command, flags *datasetFlags, text *entryText, idArg string) error {
	d, err := flags.table(cmd, nil)
	if err != nil {
		return err
	}
	row, err := rowByID(d, idArg)
	if err != nil {
		return err
	}
	if err := d.BeginEdit(row); err != nil {
		return err
	}
	if err := text.apply(cmd, d, row); err != nil {
		return err
	}
	if err := d.Save(cmd.Context(), row); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), d.Notice().Text)
	return nil
}

func newDatasetDeleteCmd() *cobra.Command {
	var (
		flags datasetFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a labeled example",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.table(cmd, confirmer(cmd, yes))
			if err != nil {
				return err
			}
			row, err := rowByID(d, args[0])
			if err != nil {
				return err
			}
			if err := d.Delete(cmd.Context(), row); err != nil {
				return fmt.Errorf("delete entry: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Notice().Text)
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newDatasetUploadCmd() *cobra.Command {
	var flags datasetFlags

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Replace a task kind's dataset with a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.table(cmd, nil)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if err := d.Upload(cmd.Context(), args[0], f); err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%d %s entries.\n", d.Notice().Text, len(d.Rows()), d.Kind())
			return nil
		},
	}

	flags.bind(cmd)
	return cmd
}
