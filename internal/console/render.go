package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zulandar/modelyard/internal/models"
)

// NotAvailable stands in for a missing metric.
const NotAvailable = "N/A"

// FormatMetric renders an evaluation metric with four decimals.
func FormatMetric(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.4f", *v)
}

// FormatDate renders a training date in local time.
func FormatDate(t models.Timestamp) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.Local().Format(time.DateTime)
}

// RenderActive writes the active-model panel.
func RenderActive(w io.Writer, a models.ModelArtifact, ok bool) {
	if !ok {
		fmt.Fprintln(w, "No model is currently deployed.")
		return
	}
	fmt.Fprintf(w, "Active model: %s\n", a.JobID)
	fmt.Fprintf(w, "  Base model: %s\n", a.BaseModelID)
	fmt.Fprintf(w, "  Accuracy:   %s\n", FormatMetric(a.EvalAccuracy))
	fmt.Fprintf(w, "  Trained:    %s\n", FormatDate(a.TrainingDate))
}

// RenderArtifacts writes the artifact table.
func RenderArtifacts(w io.Writer, list []models.ModelArtifact) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No models registered. Start a training run to create one.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tBASE MODEL\tTRAINED\tACCURACY\tLOSS\tLORA R\tSTATUS\tDESCRIPTION")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			a.JobID, a.BaseModelID, FormatDate(a.TrainingDate),
			FormatMetric(a.EvalAccuracy), FormatMetric(a.EvalLoss),
			a.LoraR, a.Status, oneLine(a.Description))
	}
	tw.Flush()
}

// RenderDataset writes the dataset table, marking the row under edit.
func RenderDataset(w io.Writer, kind models.TaskKind, rows []models.DatasetEntry, editing int) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No training data. Upload a file or add an entry.")
		return
	}
	cols := kind.Columns()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"ROW", "ID"}
	for _, c := range cols {
		header = append(header, strings.ToUpper(c))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for i, e := range rows {
		marker := ""
		if i == editing {
			marker = "*"
		}
		id := "new"
		if e.ID != nil {
			id = fmt.Sprint(*e.ID)
		}
		cells := []string{fmt.Sprintf("%d%s", i, marker), id}
		for _, c := range cols {
			v, _ := e.Field(c)
			cells = append(cells, truncate(oneLine(v), 60))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// RenderFields writes the parameter form.
func RenderFields(w io.Writer, fs *FieldStore) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, spec := range fs.Specs() {
		v := fs.Format(spec.Name)
		if spec.Kind == FieldChoice {
			v += "  (" + strings.Join(spec.Choices, "|") + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\n", spec.Name, truncate(oneLine(v), 80))
	}
	tw.Flush()
}

// RenderInference writes the inference form and its last result.
func RenderInference(w io.Writer, v InferenceView) {
	fmt.Fprintf(w, "Target model: %s\n", v.Target)
	fmt.Fprintf(w, "Dtype:        %s\n", v.Dtype)
	fmt.Fprintf(w, "Question:     %s\n", v.Question)
	fmt.Fprintf(w, "Schema:\n%s\n", v.Schema)
	if v.Result != "" {
		fmt.Fprintf(w, "Result:\n%s\n", v.Result)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
