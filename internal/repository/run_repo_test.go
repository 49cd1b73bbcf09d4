package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	if err := db.AutoMigrate(&model.RunRecord{}, &model.StepRecord{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return db
}

func TestRunRepositoryCreateGetWithSteps(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))

	run := &model.RunRecord{ID: "run-1", CompanyName: "Acme Ltda", TaxID: "11222333000181", Status: "pending"}
	if err := repo.Create(run); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	for _, step := range []string{"MATURITY_CHECK", "DATA_FLOW_MAPPING"} {
		if err := repo.AddStep(&model.StepRecord{RunID: "run-1", Step: step, Success: true}); err != nil {
			t.Fatalf("AddStep error: %v", err)
		}
	}

	got, err := repo.Get("run-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.CompanyName != "Acme Ltda" || len(got.Steps) != 2 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.Steps[0].Step != "MATURITY_CHECK" || got.Steps[1].Step != "DATA_FLOW_MAPPING" {
		t.Fatalf("unexpected step order: %s, %s", got.Steps[0].Step, got.Steps[1].Step)
	}

	steps, err := repo.ListSteps("run-1")
	if err != nil || len(steps) != 2 {
		t.Fatalf("ListSteps: len=%d err=%v", len(steps), err)
	}
}

func TestRunRepositoryGetNotFound(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	if _, err := repo.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdateStatus("missing", "failed", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunRepositoryListAndSave(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &model.RunRecord{ID: id, CompanyName: id, Status: "pending", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Create(run); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	runs, err := repo.List(2)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected list order: %+v", runs)
	}

	run, _ := repo.Get("a")
	run.Status = "succeeded"
	run.Succeeded = 8
	if err := repo.Save(run); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, _ := repo.Get("a")
	if got.Status != "succeeded" || got.Succeeded != 8 {
		t.Fatalf("unexpected saved run: %+v", got)
	}

	if err := repo.UpdateStatus("b", "failed", "boom"); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	got, _ = repo.Get("b")
	if got.Status != "failed" || got.ErrorMsg != "boom" {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestRunRepositoryCleanupStuckRuns(t *testing.T) {
	db := newTestDB(t)
	repo := NewRunRepository(db)
	if err := repo.Create(&model.RunRecord{ID: "stuck", CompanyName: "x", Status: "running"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.Create(&model.RunRecord{ID: "done", CompanyName: "y", Status: "succeeded"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := db.Model(&model.RunRecord{}).Where("id = ?", "stuck").UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("update error: %v", err)
	}

	n, err := repo.CleanupStuckRuns(time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("CleanupStuckRuns: n=%d err=%v", n, err)
	}
	got, _ := repo.Get("stuck")
	if got.Status != "failed" {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestRunRepositoryMarkRunningOnlyFromExpectedStatus(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	if err := repo.Create(&model.RunRecord{ID: "m1", CompanyName: "Acme", Status: "queued"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.UpdateStatus("m1", "canceled", "cancelado antes da execução"); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	ok, err := repo.MarkRunning("m1", "queued", time.Now())
	if err != nil {
		t.Fatalf("MarkRunning error: %v", err)
	}
	if ok {
		t.Fatalf("canceled run must not be marked running")
	}
	got, _ := repo.Get("m1")
	if got.Status != "canceled" {
		t.Fatalf("status overwritten: %s", got.Status)
	}

	if err := repo.Create(&model.RunRecord{ID: "m2", CompanyName: "Acme", Status: "queued"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	ok, err = repo.MarkRunning("m2", "queued", time.Now())
	if err != nil || !ok {
		t.Fatalf("queued run should be marked running: ok=%v err=%v", ok, err)
	}
	got, _ = repo.Get("m2")
	if got.Status != "running" || got.StartedAt == nil {
		t.Fatalf("unexpected run after start: %+v", got)
	}
}
