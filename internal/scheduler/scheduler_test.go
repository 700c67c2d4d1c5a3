package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/chanvault/internal/query"
	"github.com/wesm/chanvault/internal/schema"
	"github.com/wesm/chanvault/internal/testutil/dbtest"
)

// yearly never fires during a test run.
const yearly = "0 0 1 1 *"

func noop(ctx context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitStopped(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Error("Stop() did not complete in time")
	}
}

// waitFinished polls until job name has completed at least one run.
func waitFinished(t *testing.T, s *Scheduler, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, st := range s.Status() {
			if st.Name == name && !st.Running && (!st.LastRun.IsZero() || st.LastError != "") {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", name)
}

func TestAddJob(t *testing.T) {
	s := New().WithLogger(testLogger())

	if err := s.AddJob("vacuum", "0 2 * * *", noop); err != nil {
		t.Errorf("AddJob() with valid cron = %v, want nil", err)
	}
	if !s.IsScheduled("vacuum") {
		t.Error("job was not added")
	}
	if s.IsScheduled("other") {
		t.Error("IsScheduled(other) = true")
	}
}

func TestAddJobInvalidCron(t *testing.T) {
	s := New().WithLogger(testLogger())

	if err := s.AddJob("vacuum", "invalid cron", noop); err == nil {
		t.Error("AddJob() with invalid cron = nil, want error")
	}
	if s.IsScheduled("vacuum") {
		t.Error("invalid job should not be scheduled")
	}
}

func TestAddJobReplacesExisting(t *testing.T) {
	s := New().WithLogger(testLogger())

	if err := s.AddJob("vacuum", "0 2 * * *", noop); err != nil {
		t.Fatalf("AddJob() = %v", err)
	}
	s.mu.RLock()
	firstID := s.jobs["vacuum"]
	s.mu.RUnlock()

	if err := s.AddJob("vacuum", "0 3 * * *", noop); err != nil {
		t.Fatalf("AddJob() replacement = %v", err)
	}
	s.mu.RLock()
	secondID := s.jobs["vacuum"]
	schedule := s.schedules["vacuum"]
	s.mu.RUnlock()

	if firstID == secondID {
		t.Error("job ID was not updated after replacement")
	}
	if schedule != "0 3 * * *" {
		t.Errorf("schedule = %q", schedule)
	}
}

func TestRemoveJob(t *testing.T) {
	s := New().WithLogger(testLogger())

	if err := s.AddJob("vacuum", "0 2 * * *", noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.RemoveJob("vacuum")
	if s.IsScheduled("vacuum") {
		t.Error("job still exists after RemoveJob()")
	}

	// Should not panic
	s.RemoveJob("nonexistent")
}

func TestIsRunning(t *testing.T) {
	s := New().WithLogger(testLogger())

	if s.IsRunning() {
		t.Error("IsRunning() = true before Start()")
	}
	s.Start()
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	ctx := s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	waitStopped(t, ctx)
}

func TestStopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	s := New().WithLogger(testLogger())
	err := s.AddJob("slow", yearly, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if err := s.Trigger("slow"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}

	waitStopped(t, s.Stop())

	statuses := s.Status()
	if len(statuses) != 1 || statuses[0].LastError == "" {
		t.Errorf("expected the cancellation to be recorded, got %+v", statuses)
	}
	if err := s.Trigger("slow"); err == nil {
		t.Error("Trigger() after Stop() = nil, want error")
	}
}

func TestTriggerSkipsOverlap(t *testing.T) {
	var calls, concurrent, maxConcurrent atomic.Int32
	release := make(chan struct{})

	s := New().WithLogger(testLogger())
	err := s.AddJob("refresh", yearly, func(ctx context.Context) error {
		calls.Add(1)
		c := concurrent.Add(1)
		if c > maxConcurrent.Load() {
			maxConcurrent.Store(c)
		}
		<-release
		concurrent.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if err := s.Trigger("refresh"); err != nil {
		t.Fatalf("Trigger() = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Trigger("refresh"); err == nil {
			t.Error("Trigger() while running = nil, want error")
		}
		// A cron tick is skipped the same way.
		if s.claim("refresh") {
			t.Error("claim() while running = true")
		}
	}

	close(release)
	waitStopped(t, s.Stop())

	if calls.Load() != 1 || maxConcurrent.Load() != 1 {
		t.Errorf("calls = %d, max concurrent = %d; want 1, 1", calls.Load(), maxConcurrent.Load())
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	s := New().WithLogger(testLogger())
	if err := s.Trigger("missing"); err == nil {
		t.Error("Trigger(missing) = nil, want error")
	}
}

func TestStatus(t *testing.T) {
	failing := errors.New("disk full")
	s := New().WithLogger(testLogger())
	if err := s.AddJob("b-fails", yearly, func(ctx context.Context) error { return failing }); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.AddJob("a-works", yearly, noop); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	s.Start()

	if err := s.Trigger("a-works"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := s.Trigger("b-fails"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitStopped(t, s.Stop())

	statuses := s.Status()
	if len(statuses) != 2 {
		t.Fatalf("len(Status()) = %d, want 2", len(statuses))
	}
	if statuses[0].Name != "a-works" || statuses[1].Name != "b-fails" {
		t.Fatalf("statuses not sorted by name: %+v", statuses)
	}
	if statuses[0].LastRun.IsZero() || statuses[0].LastError != "" {
		t.Errorf("a-works = %+v, want a successful run", statuses[0])
	}
	if statuses[1].LastError != "disk full" || !statuses[1].LastRun.IsZero() {
		t.Errorf("b-fails = %+v, want the error recorded", statuses[1])
	}
	if statuses[0].Schedule != yearly {
		t.Errorf("Schedule = %q", statuses[0].Schedule)
	}
}

func TestAddSchemaRefresh(t *testing.T) {
	tdb := dbtest.NewTestDB(t)
	tdb.AddMessage(dbtest.MessageOpts{Text: "hello"})

	backend := query.NewSQLiteBackend(tdb.DB, "messages").WithLogger(testLogger())
	tracker := schema.NewTracker(backend).WithLogger(testLogger())
	registry := schema.NewRegistry(backend, tracker).WithLogger(testLogger())

	s := New().WithLogger(testLogger())
	if err := s.AddSchemaRefresh("*/5 * * * *", registry); err != nil {
		t.Fatalf("AddSchemaRefresh: %v", err)
	}
	if registry.Mapping() != nil {
		t.Fatal("mapping built before the job ran")
	}

	tdb.RenameColumn("date", "msg_date")
	if err := s.Trigger(SchemaRefreshJob); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFinished(t, s, SchemaRefreshJob)
	waitStopped(t, s.Stop())

	m := registry.Mapping()
	if m == nil {
		t.Fatal("mapping not built by the refresh job")
	}
	if m.DateColumn != schema.FallbackDateColumn {
		t.Errorf("DateColumn = %q, want %q", m.DateColumn, schema.FallbackDateColumn)
	}
	if registry.Earliest(context.Background()) == nil {
		t.Error("earliest date not tracked after refresh")
	}
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 2 * * *", false},
		{"*/15 * * * *", false},
		{"0 0 1 1 *", false},
		{"invalid", true},
		{"0 2 * *", true},
		{"0 2 * * * *", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
