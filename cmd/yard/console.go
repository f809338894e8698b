package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/console"
	"github.com/zulandar/modelyard/internal/models"
	"github.com/zulandar/modelyard/internal/prompt"
)

const consoleHelp = `Commands:
  kind [text-to-sql|oa-qna]        show or switch the task kind
  fields                           show the training configuration
  set <field> <value>              change a configuration field
  train                            submit the configuration
  data load|show                   fetch or print the dataset
  data add                         append a draft row and edit it
  data edit <row>                  edit a row
  data set <row> <column> <value>  change a column of the row under edit
  data save <row>                  save the row under edit
  data cancel                      leave edit mode
  data delete <row>                delete a row
  data upload <file>               replace the dataset with a file
  models [refresh]                 list registered models
  models promote|remove <job-id>   deploy or delete a model
  models select <job-id>           use a model for inference
  infer [show]                     print the inference form
  infer set <field> <value>        change model_id, question, schema_info or bnb_4bit_compute_dtype
  infer run                        run inference
  help                             show this help
  quit                             leave the console
Values may use \n for line breaks.`

func newConsoleCmd() *cobra.Command {
	var (
		flags datasetFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open an interactive operator session",
		Long:  "Opens one session holding the training form, dataset table, model registry and inference tester for a task kind.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, &flags, yes)
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "approve destructive actions without asking")
	return cmd
}

func runConsole(cmd *cobra.Command, flags *datasetFlags, yes bool) error {
	kind, err := models.ParseTaskKind(flags.task)
	if err != nil {
		return err
	}
	e, err := flags.load(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	p := prompt.New(cmd.InOrStdin(), out)
	var confirm console.Confirmer = p
	if yes {
		confirm = console.AlwaysConfirm
	}
	s, err := e.session(kind, confirm)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Fprintf(out, "Connected to %s. Task kind: %s. Type \"help\" for commands.\n", e.client.BaseURL(), kind)
	r := &repl{s: s, p: p, out: out}
	r.bootstrap(ctx)
	return r.run(ctx)
}

// repl reads console commands and dispatches them to the session.
type repl struct {
	s   *console.Session
	p   *prompt.Prompter
	out io.Writer
}

// bootstrap loads what a fresh session shows first. Failures are reported
// and the session stays usable.
func (r *repl) bootstrap(ctx context.Context) {
	if err := r.s.Dataset().Load(ctx); err != nil {
		fmt.Fprintln(r.out, r.s.Dataset().Notice().Text)
	}
	if err := r.s.Registry.Refresh(ctx); err != nil {
		fmt.Fprintln(r.out, r.s.Registry.Notice().Text)
		return
	}
	a, ok := r.s.Registry.Active()
	console.RenderActive(r.out, a, ok)
}

func (r *repl) run(ctx context.Context) error {
	for {
		line, err := r.p.ReadLine(fmt.Sprintf("yard [%s]> ", r.s.Kind()))
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		quit, err := r.exec(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "error: %s\n", api.Message(err))
		}
		if quit {
			return nil
		}
	}
}

// splitArgs splits line into at most n words; the last keeps its inner spaces.
func splitArgs(line string, n int) []string {
	var out []string
	rest := strings.TrimSpace(line)
	for rest != "" && len(out) < n-1 {
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, rest[:i])
		rest = strings.TrimSpace(rest[i:])
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func rowArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return -1, fmt.Errorf("row number required")
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return -1, fmt.Errorf("invalid row %q", args[i])
	}
	return n, nil
}

func (r *repl) exec(ctx context.Context, line string) (bool, error) {
	args := splitArgs(line, 2)
	if len(args) == 0 {
		return false, nil
	}
	rest := ""
	if len(args) > 1 {
		rest = args[1]
	}
	switch args[0] {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		fmt.Fprintln(r.out, consoleHelp)
	case "kind":
		return false, r.kind(ctx, rest)
	case "fields":
		console.RenderFields(r.out, r.s.Params().Fields())
	case "set":
		a := splitArgs(rest, 2)
		if len(a) < 1 {
			return false, fmt.Errorf("usage: set <field> <value>")
		}
		value := ""
		if len(a) == 2 {
			value = unescape(a[1])
		}
		if err := r.s.Params().Set(a[0], value); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s = %s\n", a[0], r.s.Params().Fields().Format(a[0]))
	case "train":
		return false, r.train(ctx)
	case "data":
		return false, r.data(ctx, rest)
	case "models":
		return false, r.models(ctx, rest)
	case "infer":
		return false, r.infer(ctx, rest)
	default:
		return false, fmt.Errorf("unknown command %q (try \"help\")", args[0])
	}
	return false, nil
}

func (r *repl) kind(ctx context.Context, arg string) error {
	if arg == "" {
		fmt.Fprintln(r.out, r.s.Kind())
		return nil
	}
	kind, err := models.ParseTaskKind(arg)
	if err != nil {
		return err
	}
	r.s.SwitchKind(kind)
	fmt.Fprintf(r.out, "Task kind: %s\n", kind)
	if err := r.s.Dataset().Load(ctx); err != nil {
		return err
	}
	return nil
}

func (r *repl) train(ctx context.Context) error {
	p := r.s.Params()
	fmt.Fprintln(r.out, "Starting training...")
	err := p.Submit(ctx)
	o := p.Outcome()
	fmt.Fprintln(r.out, o.Status)
	fmt.Fprintln(r.out, o.Logs)
	if err != nil {
		return nil
	}
	// A finished run registers a new artifact.
	if err := r.s.Registry.Refresh(ctx); err == nil {
		fmt.Fprintf(r.out, "%d models registered.\n", len(r.s.Registry.Artifacts()))
	}
	return nil
}

func (r *repl) showData() {
	d := r.s.Dataset()
	console.RenderDataset(r.out, d.Kind(), d.Rows(), d.EditingIndex())
}

func (r *repl) data(ctx context.Context, rest string) error {
	d := r.s.Dataset()
	args := splitArgs(rest, 4)
	if len(args) == 0 {
		args = []string{"show"}
	}
	var err error
	switch args[0] {
	case "show":
		r.showData()
		return nil
	case "load":
		err = d.Load(ctx)
	case "add":
		var row int
		if row, err = d.BeginAdd(); err == nil {
			fmt.Fprintf(r.out, "Editing new row %d. Set its columns, then \"data save %d\".\n", row, row)
		}
		return err
	case "edit":
		row, aerr := rowArg(args, 1)
		if aerr != nil {
			return aerr
		}
		return d.BeginEdit(row)
	case "set":
		row, aerr := rowArg(args, 1)
		if aerr != nil {
			return aerr
		}
		if len(args) < 3 {
			return fmt.Errorf("usage: data set <row> <column> <value>")
		}
		value := ""
		if len(args) == 4 {
			value = unescape(args[3])
		}
		return d.Edit(row, args[2], value)
	case "save":
		row, aerr := rowArg(args, 1)
		if aerr != nil {
			return aerr
		}
		err = d.Save(ctx, row)
	case "cancel":
		d.CancelEdit()
		return nil
	case "delete":
		row, aerr := rowArg(args, 1)
		if aerr != nil {
			return aerr
		}
		err = d.Delete(ctx, row)
		if errors.Is(err, console.ErrCancelled) {
			fmt.Fprintln(r.out, "Cancelled.")
			return nil
		}
	case "upload":
		path := strings.TrimSpace(strings.TrimPrefix(rest, "upload"))
		if path == "" {
			return fmt.Errorf("usage: data upload <file>")
		}
		f, ferr := os.Open(path)
		if ferr != nil {
			return ferr
		}
		err = d.Upload(ctx, path, f)
		f.Close()
	default:
		return fmt.Errorf("unknown data command %q", args[0])
	}
	n := d.Notice()
	// Request failures are reported through the notice; anything else
	// never reached the backend and is returned as is.
	if err != nil && !n.IsError() {
		return err
	}
	if n.Text != "" {
		fmt.Fprintln(r.out, n.Text)
	}
	if err == nil {
		r.showData()
	}
	return nil
}

func (r *repl) showModels() {
	a, ok := r.s.Registry.Active()
	console.RenderActive(r.out, a, ok)
	fmt.Fprintln(r.out)
	console.RenderArtifacts(r.out, r.s.Registry.Artifacts())
}

func (r *repl) models(ctx context.Context, rest string) error {
	reg := r.s.Registry
	args := strings.Fields(rest)
	if len(args) == 0 {
		args = []string{"refresh"}
	}
	if args[0] != "refresh" && args[0] != "list" && len(args) < 2 {
		return fmt.Errorf("usage: models %s <job-id>", args[0])
	}
	var err error
	switch args[0] {
	case "refresh", "list":
		if err := reg.Refresh(ctx); err != nil {
			fmt.Fprintln(r.out, reg.Notice().Text)
			return nil
		}
		r.showModels()
		return nil
	case "promote":
		err = reg.Promote(ctx, args[1])
	case "remove":
		err = reg.Remove(ctx, args[1])
	case "select":
		a, ok := reg.Find(args[1])
		if !ok {
			return fmt.Errorf("no model with job id %q", args[1])
		}
		reg.SelectForInference(a.JobID, a.MergedPath)
		fmt.Fprintln(r.out, reg.Notice().Text)
		return nil
	default:
		return fmt.Errorf("unknown models command %q", args[0])
	}
	if errors.Is(err, console.ErrCancelled) {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, reg.Notice().Text)
	r.showModels()
	return nil
}

func (r *repl) infer(ctx context.Context, rest string) error {
	inf := r.s.Inference
	args := splitArgs(rest, 3)
	if len(args) == 0 {
		args = []string{"show"}
	}
	switch args[0] {
	case "show":
		console.RenderInference(r.out, inf.View())
	case "set":
		if len(args) < 2 {
			return fmt.Errorf("usage: infer set <field> <value>")
		}
		value := ""
		if len(args) == 3 {
			value = unescape(args[2])
		}
		return inf.Set(args[1], value)
	case "run":
		fmt.Fprintf(r.out, "Running %s...\n", inf.Target())
		// A failed run is already described by the result text.
		if err := inf.Run(ctx); errors.Is(err, console.ErrBusy) {
			return err
		}
		fmt.Fprintln(r.out, inf.View().Result)
	default:
		return fmt.Errorf("unknown infer command %q", args[0])
	}
	return nil
}
