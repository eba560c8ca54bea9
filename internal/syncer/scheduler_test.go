package syncer

import (
	"context"
	"testing"

	"github.com/sunridgelabs/fieldops/backend/internal/realtime"
)

func newTestScheduler(t *testing.T, orchestrator *Orchestrator, registry *realtime.Registry) *Scheduler {
	t.Helper()
	scheduler, err := NewScheduler(SchedulerConfig{
		Orchestrator: orchestrator,
		Registry:     registry,
		Schedule:     "0 8,14,20 * * *",
	})
	if err != nil {
		t.Fatalf("failed to build scheduler: %v", err)
	}
	return scheduler
}

func TestSchedulerStatusBeforeStart(t *testing.T) {
	db := openSyncTestDB(t)
	orchestrator := newTestOrchestrator(t, db, &stubFetcher{rows: [][]string{{"Rep Name", "Signups"}}}, &recordingHub{})
	registry := realtime.NewRegistry()
	scheduler := newTestScheduler(t, orchestrator, registry)

	status, err := scheduler.CurrentStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if status.Running {
		t.Fatal("expected scheduler to report not running before start")
	}
	if len(status.Jobs) != 1 || status.Jobs[0].ID != fullSyncJobID {
		t.Fatalf("expected the default full-sync job, got %+v", status.Jobs)
	}
	if status.LastSync != nil {
		t.Fatalf("expected no last sync yet, got %v", status.LastSync)
	}
}

func TestSchedulerStartStopLifecycle(t *testing.T) {
	db := openSyncTestDB(t)
	orchestrator := newTestOrchestrator(t, db, &stubFetcher{rows: [][]string{{"Rep Name", "Signups"}}}, &recordingHub{})
	scheduler := newTestScheduler(t, orchestrator, realtime.NewRegistry())

	if err := scheduler.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := scheduler.Start(); err == nil {
		t.Fatal("expected second start to fail")
	}

	status, err := scheduler.CurrentStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if !status.Running {
		t.Fatal("expected scheduler to report running")
	}
	if status.Jobs[0].NextRun.IsZero() {
		t.Fatal("expected a next fire time once started")
	}

	scheduler.Stop()
	if err := scheduler.Start(); err == nil {
		t.Fatal("expected restart after stop to fail")
	}
}

func TestRegisterJobReplacesExistingID(t *testing.T) {
	db := openSyncTestDB(t)
	orchestrator := newTestOrchestrator(t, db, &stubFetcher{rows: [][]string{{"Rep Name", "Signups"}}}, &recordingHub{})
	scheduler := newTestScheduler(t, orchestrator, realtime.NewRegistry())

	if err := scheduler.RegisterJob(fullSyncJobID, "0 6 * * *", func() {}); err != nil {
		t.Fatalf("unexpected re-register error: %v", err)
	}

	status, err := scheduler.CurrentStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if len(status.Jobs) != 1 {
		t.Fatalf("expected job replacement to keep a single job, got %d", len(status.Jobs))
	}

	if err := scheduler.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer scheduler.Stop()
	if err := scheduler.RegisterJob("late", "0 7 * * *", func() {}); err == nil {
		t.Fatal("expected registering after start to fail")
	}
}

func TestTriggerManualRunsFullSync(t *testing.T) {
	db := openSyncTestDB(t)
	hub := &recordingHub{}
	rows := [][]string{{"Rep Name", "Signups"}, {"John Smith", "4"}}
	orchestrator := newTestOrchestrator(t, db, &stubFetcher{rows: rows}, hub)
	registry := realtime.NewRegistry()
	scheduler := newTestScheduler(t, orchestrator, registry)

	result, err := scheduler.TriggerManual(context.Background())
	if err != nil {
		t.Fatalf("unexpected manual trigger error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected manual sync success, got %+v", result)
	}

	status, err := scheduler.CurrentStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if status.LastSync == nil {
		t.Fatal("expected last sync to be recorded after manual trigger")
	}
}

func TestConcurrentManualTriggersCreateDistinctRuns(t *testing.T) {
	db := openSyncTestDB(t)
	rows := [][]string{{"Rep Name", "Signups"}, {"John Smith", "4"}}
	orchestrator := newTestOrchestrator(t, db, &stubFetcher{rows: rows}, &recordingHub{})
	scheduler := newTestScheduler(t, orchestrator, realtime.NewRegistry())

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := scheduler.TriggerManual(context.Background())
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("unexpected concurrent trigger error: %v", err)
		}
	}

	var count int64
	if err := db.Model(&SyncRun{}).Where("category = ?", CategorySignups).Count(&count).Error; err != nil {
		t.Fatalf("failed to count runs: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 distinct signup runs, got %d", count)
	}
}
