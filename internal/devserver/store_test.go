package devserver

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/modelyard/internal/db"
	"github.com/zulandar/modelyard/internal/models"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func TestStore_DatasetLifecycle(t *testing.T) {
	s := NewStore(testDB(t))

	id, err := s.AddDataset(models.TaskTextToSQL, models.NewDatasetEntry{Question: "q", Answer: "a", Schema: "s"})
	if err != nil {
		t.Fatal(err)
	}
	s.AddDataset(models.TaskOAQnA, models.NewDatasetEntry{Question: "other", Answer: "x"})

	rows, _ := s.ListDataset(models.TaskTextToSQL)
	if len(rows) != 1 || *rows[0].ID != id {
		t.Fatalf("rows = %+v", rows)
	}

	if err := s.UpdateDataset(models.TaskTextToSQL, models.UpdateDatasetEntry{ID: id, Question: "q2", Answer: "a2"}); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.ListDataset(models.TaskTextToSQL)
	if rows[0].Question != "q2" || rows[0].Schema != "" {
		t.Errorf("updated row = %+v", rows[0])
	}

	if err := s.UpdateDataset(models.TaskOAQnA, models.UpdateDatasetEntry{ID: id}); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-kind update err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDataset(models.TaskTextToSQL, id); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDataset(models.TaskTextToSQL, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
	if n, _ := s.CountDataset(models.TaskOAQnA); n != 1 {
		t.Errorf("oa-qna count = %d", n)
	}
}

func TestStore_Activate(t *testing.T) {
	s := NewStore(testDB(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		rec := &models.ArtifactRecord{JobID: id, BaseModelID: "tiny", AdapterPath: "a", MergedPath: "m", TrainingDate: base.Add(time.Duration(i) * time.Hour)}
		if err := s.RegisterArtifact(rec); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Activate("job-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Activate("job-b"); err != nil {
		t.Fatal(err)
	}
	list, _ := s.ListArtifacts()
	if list[0].JobID != "job-c" {
		t.Errorf("list should be newest first, got %s", list[0].JobID)
	}
	deployed := 0
	for _, a := range list {
		if a.Deployed() {
			deployed++
			if a.JobID != "job-b" {
				t.Errorf("deployed = %s", a.JobID)
			}
		}
	}
	if deployed != 1 {
		t.Errorf("deployed = %d, want 1", deployed)
	}

	if err := s.Activate("job-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	rec, _ := s.GetArtifact("job-b")
	if rec.Status != "deployed" {
		t.Error("failed activation must not retire the deployed artifact")
	}
}

func TestStore_DeleteArtifact(t *testing.T) {
	s := NewStore(testDB(t))
	s.RegisterArtifact(&models.ArtifactRecord{JobID: "job-a", BaseModelID: "tiny", AdapterPath: "a", MergedPath: "m"})

	rec, err := s.DeleteArtifact("job-a")
	if err != nil || rec.JobID != "job-a" {
		t.Fatalf("DeleteArtifact = %+v, %v", rec, err)
	}
	if _, err := s.GetArtifact("job-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteArtifact("job-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
