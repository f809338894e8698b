package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/db"
	"github.com/zulandar/modelyard/internal/devserver"
	"github.com/zulandar/modelyard/internal/models"
)

// testBackend starts a dev backend over in-memory sqlite.
func testBackend(t *testing.T) string {
	t.Helper()
	gdb, err := db.Prepare(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("prepare db: %v", err)
	}
	router, err := devserver.NewRouter(devserver.StartOpts{DB: gdb, ArtifactsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

// runYard executes the root command against backend with stdin.
func runYard(t *testing.T, backend, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	if backend != "" {
		args = append(args, "--backend", backend, "--config", filepath.Join(t.TempDir(), "none.yaml"))
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runYard(t, "", "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "yard dev") {
		t.Errorf("expected output to contain 'yard dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := runYard(t, "", "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "yard 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runYard(t, "", "", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, sub := range []string{"login", "dataset", "train", "models", "infer", "console", "watch", "serve", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q subcommand", sub)
		}
	}
}

// seedData stores two text-to-sql examples through the API.
func seedData(t *testing.T, backend string) {
	t.Helper()
	c := api.New(api.Options{BaseURL: backend})
	for _, q := range []string{"How many employees?", "Total sales?"} {
		e := models.NewDatasetEntry{Question: q, Answer: "SELECT 1;", Schema: "CREATE TABLE Employees (id INT);"}
		if err := c.AddDataset(context.Background(), models.TaskTextToSQL, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

// trainOne runs one training job and returns its job id.
func trainOne(t *testing.T, backend string) models.ModelArtifact {
	t.Helper()
	if _, err := runYard(t, backend, "", "train", "--set", "num_train_epochs=1"); err != nil {
		t.Fatalf("train: %v", err)
	}
	list, err := api.New(api.Options{BaseURL: backend}).ListModels(context.Background())
	if err != nil || len(list) == 0 {
		t.Fatalf("ListModels = %v, %v", list, err)
	}
	return list[0]
}

func TestLoginCmd(t *testing.T) {
	backend := testBackend(t)
	t.Setenv("HF_TOKEN", "")

	out, err := runYard(t, backend, "", "login", "--token", "hf_flag")
	if err != nil || !strings.Contains(out, "login succeeded") {
		t.Errorf("flag token: %v\n%s", err, out)
	}

	out, err = runYard(t, backend, "hf_typed\n", "login")
	if err != nil || !strings.Contains(out, "Hugging Face token: ") {
		t.Errorf("prompted token: %v\n%s", err, out)
	}

	t.Setenv("HF_TOKEN", "bogus")
	if _, err := runYard(t, backend, "", "login"); err == nil {
		t.Error("expected rejection of a token without the hf_ prefix")
	}
}

func TestDatasetCmds(t *testing.T) {
	backend := testBackend(t)

	out, err := runYard(t, backend, "", "dataset", "add", "-q", "How many employees?", "-a", "SELECT COUNT(*) FROM Employees;", "-s", "CREATE TABLE Employees (id INT);")
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved. 1 text-to-sql entries.") {
		t.Errorf("add output: %s", out)
	}

	if _, err := runYard(t, backend, "", "dataset", "update", "1", "--answer", "SELECT COUNT(id) FROM Employees;"); err != nil {
		t.Fatalf("update: %v", err)
	}
	out, _ = runYard(t, backend, "", "dataset", "list")
	if !strings.Contains(out, "SELECT COUNT(id) FROM Employees;") || !strings.Contains(out, "QUESTION") {
		t.Errorf("list output: %s", out)
	}

	if _, err := runYard(t, backend, "no\n", "dataset", "delete", "1"); err == nil {
		t.Error("declined delete should fail")
	}
	if _, err := runYard(t, backend, "", "dataset", "delete", "7", "--yes"); err == nil {
		t.Error("unknown id should fail")
	}
	out, err = runYard(t, backend, "", "dataset", "delete", "1", "--yes")
	if err != nil || !strings.Contains(out, "Deleted.") {
		t.Errorf("delete: %v\n%s", err, out)
	}

	out, _ = runYard(t, backend, "", "dataset", "list", "--task", "oa-qna")
	if !strings.Contains(out, "No training data") {
		t.Errorf("oa-qna list: %s", out)
	}
	if _, err := runYard(t, backend, "", "dataset", "add", "-q", "q", "-a", "a", "-s", "x", "--task", "oa-qna"); err == nil {
		t.Error("oa-qna rows have no schema column")
	}
}

func TestDatasetUploadCmd(t *testing.T) {
	backend := testBackend(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "train.csv")
	os.WriteFile(csvPath, []byte("question,answer\nWhat is PTO?,Paid time off.\nWho approves leave?,Your manager.\n"), 0o644)
	txtPath := filepath.Join(dir, "train.txt")
	os.WriteFile(txtPath, []byte("x"), 0o644)

	out, err := runYard(t, backend, "", "dataset", "upload", csvPath, "--task", "oa-qna")
	if err != nil {
		t.Fatalf("upload: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 rows imported") || !strings.Contains(out, "2 oa-qna entries.") {
		t.Errorf("upload output: %s", out)
	}

	if _, err := runYard(t, backend, "", "dataset", "upload", txtPath); err == nil {
		t.Error("expected .txt upload to be rejected")
	}
}

func TestTrainCmd(t *testing.T) {
	backend := testBackend(t)

	out, err := runYard(t, backend, "", "train", "--dry-run", "--set", "num_train_epochs=7", "--set", "optim=sgd")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "num_train_epochs") || !strings.Contains(out, "7") || !strings.Contains(out, "sgd") {
		t.Errorf("dry run output: %s", out)
	}
	if _, err := runYard(t, backend, "", "train", "--set", "epochs"); err == nil {
		t.Error("expected error for a --set without '='")
	}
	if _, err := runYard(t, backend, "", "train", "--set", "optim=lion"); err == nil {
		t.Error("expected error for an invalid choice")
	}

	out, err = runYard(t, backend, "", "train")
	if err == nil || !strings.Contains(out, "No training data") {
		t.Errorf("train without data: %v\n%s", err, out)
	}

	seedData(t, backend)
	out, err = runYard(t, backend, "", "train", "--set", "num_train_epochs=2")
	if err != nil {
		t.Fatalf("train: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Training request succeeded: Training completed: job-") || !strings.Contains(out, "epoch 2/2") {
		t.Errorf("train output: %s", out)
	}
}

func TestModelsCmds(t *testing.T) {
	backend := testBackend(t)
	seedData(t, backend)
	a := trainOne(t, backend)

	out, err := runYard(t, backend, "", "models", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No model is currently deployed.") || !strings.Contains(out, a.JobID) {
		t.Errorf("list output: %s", out)
	}

	if _, err := runYard(t, backend, "", "models", "promote", "job-nope", "--yes"); err == nil {
		t.Error("expected error for an unknown job")
	}
	out, err = runYard(t, backend, "yes\n", "models", "promote", a.JobID)
	if err != nil {
		t.Fatalf("promote: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Active model: "+a.JobID) {
		t.Errorf("promote output: %s", out)
	}

	if _, err := runYard(t, backend, "n\n", "models", "remove", a.JobID); err == nil {
		t.Error("declined remove should fail")
	}
	out, err = runYard(t, backend, "", "models", "remove", a.JobID, "-y")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "No models registered") {
		t.Errorf("remove output: %s", out)
	}
	if _, err := os.Stat(a.MergedPath); !os.IsNotExist(err) {
		t.Errorf("merged dir still present: %v", err)
	}
}

func TestInferCmd(t *testing.T) {
	backend := testBackend(t)
	seedData(t, backend)
	a := trainOne(t, backend)

	out, err := runYard(t, backend, "", "infer", "--job", a.JobID, "-q", "List staff")
	if err != nil {
		t.Fatalf("infer: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Running "+a.MergedPath) || !strings.Contains(out, "SELECT * FROM Employees; -- List staff") {
		t.Errorf("infer output: %s", out)
	}

	out, err = runYard(t, backend, "", "infer", "-m", "base", "--schema", "")
	if err != nil || !strings.Contains(out, "(no result)") {
		t.Errorf("empty schema: %v\n%s", err, out)
	}

	if _, err := runYard(t, backend, "", "infer", "--dtype", "int8"); err == nil {
		t.Error("expected error for an unknown dtype")
	}
	out, err = runYard(t, backend, "", "infer", "-m", filepath.Join(t.TempDir(), "missing"))
	if err == nil || !strings.Contains(out, "Error: Model path not found") {
		t.Errorf("missing model: %v\n%s", err, out)
	}
}

func TestConsoleCmd(t *testing.T) {
	backend := testBackend(t)
	script := strings.Join([]string{
		"help",
		"set num_train_epochs 2",
		"data add",
		"data set 0 question How many employees?",
		"data set 0 answer SELECT COUNT(*) FROM Employees;",
		"data save 0",
		"train",
		"infer set model_id base",
		"infer set schema_info CREATE TABLE Staff (id INT)",
		"infer run",
		"bogus",
		"kind oa-qna",
		"data show",
		"quit",
		"fields",
	}, "\n") + "\n"

	out, err := runYard(t, backend, script, "console")
	if err != nil {
		t.Fatalf("console: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Task kind: text-to-sql",
		"No model is currently deployed.",
		"num_train_epochs = 2",
		"Editing new row 0",
		"Saved.",
		"Training request succeeded",
		"1 models registered.",
		"SELECT * FROM Staff; -- Show total sales amount per employee",
		`unknown command "bogus"`,
		"Task kind: oa-qna",
		"No training data",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "lr_scheduler_type") {
		t.Error("commands after quit should not run")
	}
}

func TestConsoleCmd_ConfirmsDeletes(t *testing.T) {
	backend := testBackend(t)
	seedData(t, backend)

	out, err := runYard(t, backend, "data delete 0\nno\ndata delete 0\nyes\n", "console")
	if err != nil {
		t.Fatalf("console: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Cancelled.") || !strings.Contains(out, "Deleted.") {
		t.Errorf("console output: %s", out)
	}
	rows, _ := api.New(api.Options{BaseURL: backend}).ListDataset(context.Background(), models.TaskTextToSQL)
	if len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestConsoleCmd_DataErrorsAreReported(t *testing.T) {
	backend := testBackend(t)
	script := strings.Join([]string{
		"data add",
		"data set 0 question How many employees?",
		"data set 0 answer SELECT COUNT(*) FROM Employees;",
		"data save 0",
		"data save 0",
		"data delete 42",
		"quit",
	}, "\n") + "\n"

	out, err := runYard(t, backend, script, "console")
	if err != nil {
		t.Fatalf("console: %v\n%s", err, out)
	}
	if n := strings.Count(out, "Saved."); n != 1 {
		t.Errorf("Saved. printed %d times, want 1:\n%s", n, out)
	}
	for _, want := range []string{
		"error: row is not in edit mode: 0",
		"error: no such row: 42",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestConsoleCmd_FailedInferenceShownOnce(t *testing.T) {
	backend := testBackend(t)
	missing := filepath.Join(t.TempDir(), "missing")
	out, err := runYard(t, backend, "infer set model_id "+missing+"\ninfer run\nquit\n", "console")
	if err != nil {
		t.Fatalf("console: %v\n%s", err, out)
	}
	if n := strings.Count(out, "Error: Model path not found"); n != 1 {
		t.Errorf("failure printed %d times, want 1:\n%s", n, out)
	}
	if strings.Contains(out, "error: ") {
		t.Errorf("failed run should be shown as a result, not a command error:\n%s", out)
	}
}

func TestClientLogging(t *testing.T) {
	backend := testBackend(t)
	add := []string{"dataset", "add", "-q", "How many employees?", "-a", "SELECT 1;", "-s", "CREATE TABLE Employees (id INT);"}

	out, err := runYard(t, backend, "", add...)
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if strings.Contains(out, "row saved") {
		t.Errorf("info log reached the terminal without --verbose:\n%s", out)
	}

	out, err = runYard(t, backend, "", append(add, "--verbose")...)
	if err != nil {
		t.Fatalf("add --verbose: %v\n%s", err, out)
	}
	if !strings.Contains(out, "row saved") {
		t.Errorf("--verbose should log to the command's stderr:\n%s", out)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line string
		n    int
		want []string
	}{
		{"", 3, nil},
		{"train", 2, []string{"train"}},
		{"set  lora_r   8", 2, []string{"set", "lora_r   8"}},
		{"set 0 question How many rows?", 4, []string{"set", "0", "question", "How many rows?"}},
		{"  run  ", 3, []string{"run"}},
	}
	for _, tt := range tests {
		got := splitArgs(tt.line, tt.n)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitArgs(%q, %d) = %q, want %q", tt.line, tt.n, got, tt.want)
		}
	}
}

func TestWatchCmd_BadSchedule(t *testing.T) {
	backend := testBackend(t)
	if _, err := runYard(t, backend, "", "watch", "--schedule", "every minute"); err == nil {
		t.Error("expected an invalid schedule to fail")
	}
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelyard.yaml")
	os.WriteFile(path, []byte("devserver:\n  database:\n    driver: postgres\n"), 0o644)

	if _, err := runYard(t, "", "", "serve", "--config", path); err == nil {
		t.Error("expected an unsupported driver to fail")
	}
}

func TestBackendFlagValidation(t *testing.T) {
	if _, err := runYard(t, "ftp://example.com", "", "models", "list"); err == nil {
		t.Error("expected a non-http backend to be rejected")
	}
}
