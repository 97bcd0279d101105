package chat

import (
	"context"
	"testing"
)

func TestExportJobLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	j := &ExportJob{
		ID:      "01JOBLIFECYCLE000000000000",
		ChatIDs: `["c1","c2"]`,
		Format:  "json",
		Status:  JobQueued,
	}
	if err := repo.CreateExportJob(ctx, j); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := repo.UpdateExportJobRunning(ctx, j.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	got, err := repo.GetExportJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobRunning {
		t.Fatalf("expected running, got %s", got.Status)
	}

	if err := repo.MarkExportJobSucceeded(ctx, j.ID, "exports/chats-x.json"); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	got, _ = repo.GetExportJobByID(ctx, j.ID)
	if got.Status != JobSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}
	if got.ResultPath == nil || *got.ResultPath != "exports/chats-x.json" {
		t.Fatalf("expected result path, got %v", got.ResultPath)
	}
	if got.Error != nil {
		t.Fatalf("error must be cleared on success, got %v", *got.Error)
	}

	if _, err := repo.GetExportJobByID(ctx, "01NOSUCHJOB000000000000000"); err != ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestExportJobFailure(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	j := &ExportJob{
		ID:      "01JOBFAILURE00000000000000",
		ChatIDs: `["c1"]`,
		Format:  "json",
		Status:  JobQueued,
	}
	if err := repo.CreateExportJob(ctx, j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := repo.MarkExportJobFailed(ctx, j.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := repo.GetExportJobByID(ctx, j.ID)
	if got.Status != JobFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == nil || *got.Error != "boom" {
		t.Fatalf("expected error message, got %v", got.Error)
	}
	if got.ResultPath != nil {
		t.Fatalf("result path must be nil on failure")
	}
}

func TestCreateExportJobOrGetExisting_Idempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	key := "retry-key-1"
	a := &ExportJob{
		ID:             "01JOBIDEMPOA00000000000000",
		ChatIDs:        `["c1"]`,
		Format:         "json",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	job, created, err := repo.CreateExportJobOrGetExisting(ctx, a)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created || job.ID != a.ID {
		t.Fatalf("expected fresh job, created=%v id=%s", created, job.ID)
	}

	b := &ExportJob{
		ID:             "01JOBIDEMPOB00000000000000",
		ChatIDs:        `["c1"]`,
		Format:         "json",
		IdempotencyKey: &key,
		Status:         JobQueued,
	}
	job, created, err = repo.CreateExportJobOrGetExisting(ctx, b)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatalf("expected dedup onto existing job")
	}
	if job.ID != a.ID {
		t.Fatalf("expected existing job id %s, got %s", a.ID, job.ID)
	}
}
