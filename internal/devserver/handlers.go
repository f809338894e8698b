package devserver

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// maxUploadBytes bounds a dataset upload.
const maxUploadBytes = 32 << 20

// Handler serves the backend endpoints.
type Handler struct {
	store   *Store
	trainer *Trainer
	log     *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(store *Store, trainer *Trainer, logger *zap.Logger) *Handler {
	return &Handler{store: store, trainer: trainer, log: logger}
}

func success(c *gin.Context, extra gin.H) {
	body := gin.H{"status": "success"}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, code int, detail any) {
	c.JSON(code, gin.H{"detail": detail})
}

// storeError maps a store error to a response.
func (h *Handler) storeError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error("store failure", zap.String("path", c.FullPath()), zap.Error(err))
	fail(c, http.StatusInternalServerError, err.Error())
}

// taskKind reads and validates a task kind from s.
func taskKind(c *gin.Context, s string) (models.TaskKind, bool) {
	kind, err := models.ParseTaskKind(s)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	return kind, true
}

// Login handles POST /huggingface/login.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Token string `json:"hf_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !strings.HasPrefix(req.Token, "hf_") {
		fail(c, http.StatusUnauthorized, "Hugging Face login failed: token must start with hf_")
		return
	}
	success(c, gin.H{"message": "Hugging Face login succeeded."})
}

// ListDataset handles GET /data-entries.
func (h *Handler) ListDataset(c *gin.Context) {
	kind, ok := taskKind(c, c.Query("file_type"))
	if !ok {
		return
	}
	entries, err := h.store.ListDataset(kind)
	if err != nil {
		h.storeError(c, err)
		return
	}
	success(c, gin.H{"data": entries})
}

// AddDataset handles POST /add-data/:kind.
func (h *Handler) AddDataset(c *gin.Context) {
	kind, ok := taskKind(c, c.Param("kind"))
	if !ok {
		return
	}
	var e models.NewDatasetEntry
	if err := c.ShouldBindJSON(&e); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !kind.UsesSchema() {
		e.Schema = ""
	}
	if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
		fail(c, http.StatusBadRequest, "question and answer are required")
		return
	}
	id, err := h.store.AddDataset(kind, e)
	if err != nil {
		h.storeError(c, err)
		return
	}
	h.log.Info("dataset entry added", zap.String("task_kind", string(kind)), zap.Int64("id", id))
	success(c, gin.H{"message": "New entry added."})
}

// UpdateDataset handles POST /update-data/:kind.
func (h *Handler) UpdateDataset(c *gin.Context) {
	kind, ok := taskKind(c, c.Param("kind"))
	if !ok {
		return
	}
	var e models.UpdateDatasetEntry
	if err := c.ShouldBindJSON(&e); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !kind.UsesSchema() {
		e.Schema = ""
	}
	if err := h.store.UpdateDataset(kind, e); err != nil {
		h.storeError(c, err)
		return
	}
	success(c, gin.H{"message": "Entry updated."})
}

// DeleteDataset handles POST /delete-data/:kind.
func (h *Handler) DeleteDataset(c *gin.Context) {
	kind, ok := taskKind(c, c.Param("kind"))
	if !ok {
		return
	}
	var req models.DeleteDatasetEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.store.DeleteDataset(kind, req.ID); err != nil {
		h.storeError(c, err)
		return
	}
	success(c, gin.H{"message": "Entry deleted."})
}

// Upload returns the handler for POST /upload-{kind}-data. The file replaces
// the kind's whole dataset.
func (h *Handler) Upload(kind models.TaskKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
		fh, err := c.FormFile("file")
		if err != nil {
			fail(c, http.StatusBadRequest, "multipart field \"file\" is required")
			return
		}
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
			fail(c, http.StatusBadRequest, "only .csv files can be imported by the dev backend")
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		defer f.Close()

		entries, err := parseDatasetCSV(f, kind)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.store.ReplaceDataset(kind, entries); err != nil {
			h.storeError(c, err)
			return
		}
		h.log.Info("dataset imported", zap.String("task_kind", string(kind)), zap.String("file", fh.Filename), zap.Int("rows", len(entries)))
		success(c, gin.H{"message": fmt.Sprintf("File '%s' uploaded: %d rows imported.", fh.Filename, len(entries))})
	}
}

// parseDatasetCSV reads a header row naming the kind's columns, in any order,
// followed by one example per row. Rows with an empty question are skipped.
func parseDatasetCSV(r io.Reader, kind models.TaskKind) ([]models.NewDatasetEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range kind.Columns() {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q (want %s)", name, strings.Join(kind.Columns(), ", "))
		}
	}
	cell := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var out []models.NewDatasetEntry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		e := models.NewDatasetEntry{Question: cell(rec, "question"), Answer: cell(rec, "answer")}
		if kind.UsesSchema() {
			e.Schema = cell(rec, "schema")
		}
		if strings.TrimSpace(e.Question) == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// validationDetail renders messages the way request validators usually do.
func validationDetail(msgs []string) []gin.H {
	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		field, msg, _ := strings.Cut(m, ": ")
		out = append(out, gin.H{"loc": []string{"body", field}, "msg": msg, "type": "value_error"})
	}
	return out
}

// StartTraining handles POST /start_training_test. The run completes before
// the response is sent.
func (h *Handler) StartTraining(c *gin.Context) {
	var cfg models.TrainingConfiguration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if msgs := Validate(cfg); len(msgs) > 0 {
		fail(c, http.StatusUnprocessableEntity, validationDetail(msgs))
		return
	}
	rows, err := h.store.CountDataset(cfg.TaskKind)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if rows == 0 {
		fail(c, http.StatusBadRequest, fmt.Sprintf("No training data for %s. Upload data first.", cfg.TaskKind))
		return
	}

	h.log.Info("training started", zap.String("model_id", cfg.ModelID), zap.String("task_kind", string(cfg.TaskKind)), zap.Int64("rows", rows))
	run, err := h.trainer.Train(cfg, rows)
	if err != nil {
		h.log.Error("training failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Training failed: " + err.Error(), "logs": ""})
		return
	}
	if err := h.store.RegisterArtifact(run.Record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Training finished but registration failed: " + err.Error(), "logs": run.Logs})
		return
	}
	h.log.Info("training finished", zap.String("job_id", run.Record.JobID))
	success(c, gin.H{"message": "Training completed: " + run.Record.JobID, "logs": run.Logs})
}

// ListModels handles GET /api/models.
func (h *Handler) ListModels(c *gin.Context) {
	list, err := h.store.ListArtifacts()
	if err != nil {
		h.storeError(c, err)
		return
	}
	success(c, gin.H{"data": list})
}

// ActivateModel handles POST /api/models/activate.
func (h *Handler) ActivateModel(c *gin.Context) {
	var req models.ModelAction
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		fail(c, http.StatusUnprocessableEntity, "job_id is required")
		return
	}
	if err := h.store.Activate(req.JobID); err != nil {
		if errors.Is(err, ErrNotFound) {
			fail(c, http.StatusNotFound, fmt.Sprintf("No model with job id '%s'.", req.JobID))
			return
		}
		h.storeError(c, err)
		return
	}
	h.log.Info("model deployed", zap.String("job_id", req.JobID))
	success(c, gin.H{"message": fmt.Sprintf("Model '%s' deployed.", req.JobID)})
}

// DeleteModel handles POST /api/models/delete.
func (h *Handler) DeleteModel(c *gin.Context) {
	var req models.ModelAction
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		fail(c, http.StatusUnprocessableEntity, "job_id is required")
		return
	}
	rec, err := h.store.DeleteArtifact(req.JobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			fail(c, http.StatusNotFound, fmt.Sprintf("No model with job id '%s'.", req.JobID))
			return
		}
		h.storeError(c, err)
		return
	}
	dirs := []string{rec.AdapterPath, rec.MergedPath}
	if root := filepath.Dir(rec.MergedPath); filepath.Base(root) == rec.JobID {
		dirs = append(dirs, root)
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			h.log.Warn("remove artifact files", zap.String("dir", dir), zap.Error(err))
		}
	}
	h.log.Info("model deleted", zap.String("job_id", req.JobID))
	success(c, gin.H{"message": fmt.Sprintf("Model '%s' deleted.", req.JobID)})
}

var createTable = regexp.MustCompile(`(?i)create\s+table\s+(?:if\s+not\s+exists\s+)?[` + "`" + `"]?(\w+)`)

// RunInference handles POST /run_inference. The prediction is a
// deterministic query over the first table in schema_info; without a table
// the response carries no prediction.
func (h *Handler) RunInference(c *gin.Context) {
	var req models.InferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(req.ModelID) == "" || strings.TrimSpace(req.Question) == "" {
		fail(c, http.StatusUnprocessableEntity, "model_id and question are required")
		return
	}
	if req.ComputeDtype != "" && !models.Contains(models.ComputeDtypes, req.ComputeDtype) {
		fail(c, http.StatusUnprocessableEntity, fmt.Sprintf("unsupported dtype %q", req.ComputeDtype))
		return
	}
	if filepath.IsAbs(req.ModelID) {
		if _, err := os.Stat(req.ModelID); err != nil {
			fail(c, http.StatusNotFound, fmt.Sprintf("Model path not found: %s", req.ModelID))
			return
		}
	}

	m := createTable.FindStringSubmatch(req.SchemaInfo)
	if m == nil {
		success(c, nil)
		return
	}
	question := strings.ReplaceAll(strings.TrimSpace(req.Question), "\n", " ")
	success(c, gin.H{"predicted_sql": fmt.Sprintf("SELECT * FROM %s; -- %s", m[1], question)})
}
