package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"foobar_factory/internal/domain"
)

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	runID := uuid.NewString()
	if err := store.CreateRun(ctx, domain.Run{
		ID:            runID,
		Seed:          42,
		MinRobots:     2,
		MaxRobots:     30,
		SwitchPenalty: 5,
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != domain.RunStatusRunning {
		t.Fatalf("status=%s want=%s", run.Status, domain.RunStatusRunning)
	}
	if run.Seed != 42 || run.MaxRobots != 30 || run.SwitchPenalty != 5 {
		t.Fatalf("unexpected run parameters: %+v", run)
	}

	if err := store.FinishRun(ctx, runID, domain.RunStatusFailed, "invariant violation"); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, err = store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get finished run: %v", err)
	}
	if run.Status != domain.RunStatusFailed || run.LastError != "invariant violation" {
		t.Fatalf("status=%s last_error=%q", run.Status, run.LastError)
	}

	if err := store.FinishRun(ctx, uuid.NewString(), domain.RunStatusDone, ""); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("finish unknown run err=%v want=%v", err, sql.ErrNoRows)
	}
}

func TestRunSinkPersistsReportsInOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	runID := uuid.NewString()
	if err := store.CreateRun(ctx, domain.Run{ID: runID, MinRobots: 2, MaxRobots: 3, SwitchPenalty: 5}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	mineFoo := domain.Task{Kind: domain.KindMineFoo, Timeout: 1, BaseTimeout: 1}
	mineBar := domain.Task{Kind: domain.KindMineBar, Timeout: 6.2, BaseTimeout: 1.2, Penalized: true}
	reports := []domain.Report{
		{Kind: domain.ReportKindTick, Tick: 1, Economy: domain.Economy{Time: 1}, Robots: 2, Tasks: []domain.Task{mineFoo, mineBar}},
		{Kind: domain.ReportKindCompletion, Tick: 1, Economy: domain.Economy{Time: 1, Foo: 1}, Robots: 2, Slot: 0, Task: &mineFoo},
		{Kind: domain.ReportKindAssignment, Tick: 1, Economy: domain.Economy{Time: 1, Foo: 1}, Robots: 2, Slot: 0, Task: &mineBar},
	}
	sink := store.RunSink(runID)
	for _, r := range reports {
		if err := sink.Emit(ctx, r); err != nil {
			t.Fatalf("emit %s: %v", r.Kind, err)
		}
	}

	all, err := store.ListRunReports(ctx, runID, nil, 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("reports=%d want=3", len(all))
	}
	for i, item := range all {
		if item.Report.Kind != reports[i].Kind {
			t.Fatalf("report %d kind=%s want=%s", i, item.Report.Kind, reports[i].Kind)
		}
		if i > 0 && item.Seq <= all[i-1].Seq {
			t.Fatalf("report %d seq=%d not increasing", i, item.Seq)
		}
	}
	if len(all[0].Report.Tasks) != 2 || all[0].Report.Tasks[1].Timeout != 6.2 {
		t.Fatalf("tick tasks=%+v", all[0].Report.Tasks)
	}
	if got := all[2].Report.Task; got == nil || got.Kind != domain.KindMineBar || !got.Penalized {
		t.Fatalf("assignment task=%+v", got)
	}

	completions, err := store.ListRunReports(ctx, runID, []domain.ReportKind{domain.ReportKindCompletion}, 10)
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 1 || completions[0].Report.Economy.Foo != 1 {
		t.Fatalf("completions=%+v", completions)
	}

	latest, err := store.ListRunReports(ctx, runID, nil, 2)
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	if len(latest) != 2 || latest[1].Report.Kind != domain.ReportKindAssignment {
		t.Fatalf("latest=%+v want the two most recent in order", latest)
	}

	ticks, err := store.CountRunReports(ctx, runID, domain.ReportKindTick)
	if err != nil {
		t.Fatalf("count ticks: %v", err)
	}
	if ticks != 1 {
		t.Fatalf("ticks=%d want=1", ticks)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Ticks != 1 || run.Robots != 2 || run.Economy.Foo != 1 {
		t.Fatalf("run progress not updated: %+v", run)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	base := time.Now().UTC().Add(-time.Hour)
	ids := []string{"run-a", "run-b", "run-c"}
	for i, id := range ids {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateRun(ctx, domain.Run{ID: id, MinRobots: 2, MaxRobots: 30, CreatedAt: at, UpdatedAt: at}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Fatalf("runs=%v", runs)
	}
}

func TestReportsRequireRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	err := store.AppendReport(ctx, "missing", domain.Report{Kind: domain.ReportKindTick, Tick: 1})
	if err == nil {
		t.Fatalf("expected foreign key failure for unknown run")
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return store
}
