package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zulandar/modelyard/internal/api"
	"github.com/zulandar/modelyard/internal/logging"
	"github.com/zulandar/modelyard/internal/models"
	"go.uber.org/zap"
)

// DatasetAPI is the backend surface the dataset table uses.
type DatasetAPI interface {
	ListDataset(ctx context.Context, kind models.TaskKind) ([]models.DatasetEntry, error)
	AddDataset(ctx context.Context, kind models.TaskKind, e models.NewDatasetEntry) error
	UpdateDataset(ctx context.Context, kind models.TaskKind, e models.UpdateDatasetEntry) error
	DeleteDataset(ctx context.Context, kind models.TaskKind, id int64) error
	UploadDataset(ctx context.Context, kind models.TaskKind, filename string, r io.Reader) (string, error)
}

// DatasetOptions holds parameters for creating a DatasetTable.
type DatasetOptions struct {
	Kind             models.TaskKind
	Confirm          Confirmer
	UploadExtensions []string
	Logger           *zap.Logger
}

// DatasetTable keeps the visible labeled examples of one task kind consistent
// with the backend. After every successful write the whole list is reloaded
// rather than patched, so local state never drifts from the server's.
type DatasetTable struct {
	client  DatasetAPI
	kind    models.TaskKind
	confirm Confirmer
	exts    []string
	log     *zap.Logger

	mu         sync.Mutex
	rows       []models.DatasetEntry
	phase      Phase
	editing    int // row under edit, -1 when none
	loadFailed bool
	notice     Notice
}

// NewDatasetTable creates an empty table. Call Load to populate it.
func NewDatasetTable(client DatasetAPI, opts DatasetOptions) *DatasetTable {
	return &DatasetTable{
		client:  client,
		kind:    opts.Kind,
		confirm: opts.Confirm,
		exts:    opts.UploadExtensions,
		log:     logging.OrNop(opts.Logger).With(zap.String("view", "dataset"), zap.String("task_kind", string(opts.Kind))),
		editing: -1,
	}
}

// Kind returns the task kind the table shows.
func (d *DatasetTable) Kind() models.TaskKind { return d.kind }

// Rows returns a copy of the visible rows.
func (d *DatasetTable) Rows() []models.DatasetEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.DatasetEntry, len(d.rows))
	copy(out, d.rows)
	return out
}

// EditingIndex returns the row under edit, or -1.
func (d *DatasetTable) EditingIndex() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.editing
}

// Phase returns the table's current phase.
func (d *DatasetTable) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Notice returns the last status message.
func (d *DatasetTable) Notice() Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notice
}

// LoadFailed reports whether the most recent load did not succeed.
func (d *DatasetTable) LoadFailed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadFailed
}

// begin claims the mutation slot. The caller must hold d.mu.
func (d *DatasetTable) begin() error {
	if d.phase == PhaseSubmitting {
		return ErrBusy
	}
	d.phase = PhaseSubmitting
	return nil
}

// Load replaces the whole list with the server's. Any edit in progress is
// abandoned.
func (d *DatasetTable) Load(ctx context.Context) error {
	d.mu.Lock()
	if err := d.begin(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.notice = Notice{}
	d.mu.Unlock()

	err := d.reload(ctx)

	d.mu.Lock()
	d.phase = PhaseIdle
	if err == nil {
		d.notice = info(fmt.Sprintf("Loaded %d rows.", len(d.rows)))
	}
	d.mu.Unlock()
	return err
}

// reload fetches the list and resets edit state. The caller must own the
// mutation slot.
func (d *DatasetTable) reload(ctx context.Context) error {
	entries, err := d.client.ListDataset(ctx, d.kind)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.editing = -1
	if err != nil {
		d.rows = nil
		d.loadFailed = true
		d.notice = failure("Failed to load dataset: " + api.Message(err))
		d.log.Warn("load failed", zap.Error(err))
		return err
	}
	d.rows = entries
	d.loadFailed = false
	return nil
}

// BeginAdd appends an empty draft row and makes it the row under edit.
func (d *DatasetTable) BeginAdd() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseSubmitting {
		return -1, ErrBusy
	}
	d.rows = append(d.rows, models.DatasetEntry{})
	d.editing = len(d.rows) - 1
	d.phase = PhaseEditing
	return d.editing, nil
}

// BeginEdit makes row the row under edit. Unsaved text in a previously
// edited row stays in place until the next load.
func (d *DatasetTable) BeginEdit(row int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseSubmitting {
		return ErrBusy
	}
	if row < 0 || row >= len(d.rows) {
		return fmt.Errorf("%w: %d", ErrNoRow, row)
	}
	d.editing = row
	d.phase = PhaseEditing
	return nil
}

// CancelEdit leaves edit mode without a request.
func (d *DatasetTable) CancelEdit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase == PhaseEditing {
		d.phase = PhaseIdle
		d.editing = -1
	}
}

// Edit changes one column of the row under edit. No request is made.
func (d *DatasetTable) Edit(row int, field, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase != PhaseEditing || row != d.editing {
		return fmt.Errorf("%w: %d", ErrNotEditing, row)
	}
	if !d.hasColumn(field) {
		return fmt.Errorf("%w: %q (columns: %s)", ErrUnknownField, field, strings.Join(d.kind.Columns(), ", "))
	}
	d.rows[row].SetField(field, value)
	return nil
}

func (d *DatasetTable) hasColumn(field string) bool {
	for _, c := range d.kind.Columns() {
		if c == field {
			return true
		}
	}
	return false
}

// Save persists the row under edit: a draft is created, a persisted row is
// updated. On success the list is reloaded; on failure the row stays in edit
// mode with its text intact.
func (d *DatasetTable) Save(ctx context.Context, row int) error {
	d.mu.Lock()
	if d.phase == PhaseSubmitting {
		d.mu.Unlock()
		return ErrBusy
	}
	d.notice = Notice{}
	if d.phase != PhaseEditing || row != d.editing {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotEditing, row)
	}
	entry := d.rows[row]
	if !d.kind.UsesSchema() {
		entry.Schema = ""
	}
	d.phase = PhaseSubmitting
	d.mu.Unlock()

	var err error
	if entry.IsDraft() {
		err = d.client.AddDataset(ctx, d.kind, models.NewDatasetEntry{
			Question: entry.Question,
			Answer:   entry.Answer,
			Schema:   entry.Schema,
		})
	} else {
		err = d.client.UpdateDataset(ctx, d.kind, models.UpdateDatasetEntry{
			ID:       *entry.ID,
			Question: entry.Question,
			Answer:   entry.Answer,
			Schema:   entry.Schema,
		})
	}
	if err != nil {
		d.mu.Lock()
		d.phase = PhaseEditing
		d.notice = failure("Save failed: " + api.Message(err))
		d.mu.Unlock()
		d.log.Warn("save failed", zap.Int("row", row), zap.Error(err))
		return err
	}

	d.log.Info("row saved", zap.Int("row", row), zap.Bool("created", entry.IsDraft()))
	d.mu.Lock()
	d.notice = info("Saved.")
	d.mu.Unlock()
	d.reload(ctx)

	d.mu.Lock()
	d.phase = PhaseIdle
	d.mu.Unlock()
	return nil
}

// Delete removes a persisted row after confirmation and reloads the list. A
// draft row is dropped locally since the server has never seen it.
func (d *DatasetTable) Delete(ctx context.Context, row int) error {
	d.mu.Lock()
	if d.phase == PhaseSubmitting {
		d.mu.Unlock()
		return ErrBusy
	}
	d.notice = Notice{}
	if row < 0 || row >= len(d.rows) {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoRow, row)
	}
	if d.phase == PhaseEditing && row == d.editing {
		d.mu.Unlock()
		return ErrRowEditing
	}
	entry := d.rows[row]
	if entry.IsDraft() {
		d.rows = append(d.rows[:row], d.rows[row+1:]...)
		if d.editing > row {
			d.editing--
		}
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := confirm(ctx, d.confirm, fmt.Sprintf("Delete dataset entry %d? This cannot be undone.", *entry.ID)); err != nil {
		return err
	}

	d.mu.Lock()
	if err := d.begin(); err != nil {
		d.mu.Unlock()
		return err
	}
	prev := PhaseIdle
	if d.editing >= 0 {
		prev = PhaseEditing
	}
	d.mu.Unlock()

	if err := d.client.DeleteDataset(ctx, d.kind, *entry.ID); err != nil {
		d.mu.Lock()
		d.phase = prev
		d.notice = failure("Delete failed: " + api.Message(err))
		d.mu.Unlock()
		d.log.Warn("delete failed", zap.Int64("id", *entry.ID), zap.Error(err))
		return err
	}

	d.log.Info("row deleted", zap.Int64("id", *entry.ID))
	d.mu.Lock()
	d.notice = info("Deleted.")
	d.mu.Unlock()
	d.reload(ctx)

	d.mu.Lock()
	d.phase = PhaseIdle
	d.mu.Unlock()
	return nil
}

// Upload sends a dataset file for this task kind and reloads the list.
func (d *DatasetTable) Upload(ctx context.Context, filename string, r io.Reader) error {
	d.mu.Lock()
	if d.phase == PhaseSubmitting {
		d.mu.Unlock()
		return ErrBusy
	}
	if !d.allowsUpload(filename) {
		d.notice = failure(fmt.Sprintf("Choose a %s file.", strings.Join(d.exts, " or ")))
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
	if err := d.begin(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.notice = info("Uploading " + filename + "...")
	d.mu.Unlock()

	msg, err := d.client.UploadDataset(ctx, d.kind, filename, r)
	if err != nil {
		d.mu.Lock()
		if d.editing >= 0 {
			d.phase = PhaseEditing
		} else {
			d.phase = PhaseIdle
		}
		d.notice = failure("Upload failed: " + api.Message(err))
		d.mu.Unlock()
		d.log.Warn("upload failed", zap.String("file", filename), zap.Error(err))
		return err
	}

	d.mu.Lock()
	d.notice = info("Upload succeeded: " + msg)
	d.mu.Unlock()
	d.reload(ctx)

	d.mu.Lock()
	d.phase = PhaseIdle
	d.mu.Unlock()
	return nil
}

func (d *DatasetTable) allowsUpload(filename string) bool {
	if len(d.exts) == 0 {
		return true
	}
	lower := strings.ToLower(filename)
	for _, ext := range d.exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
