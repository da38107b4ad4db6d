package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"foobar_factory/internal/domain"
)

type memorySink struct {
	reports []domain.Report
}

func (m *memorySink) Emit(_ context.Context, r domain.Report) error {
	m.reports = append(m.reports, r)
	return nil
}

func TestReportSinksShareHistoryAndFilterConsole(t *testing.T) {
	history, trace := &memorySink{}, &memorySink{}
	var out bytes.Buffer
	sinks := reportSinks(history, trace, &out, []domain.ReportKind{domain.ReportKindCompletion})
	if len(sinks) != 2 {
		t.Fatalf("sinks=%d want=2", len(sinks))
	}

	ended := domain.Task{Kind: domain.KindMineFoo, BaseTimeout: 1}
	ctx := context.Background()
	for _, r := range []domain.Report{
		{Kind: domain.ReportKindTick, Tick: 1},
		{Kind: domain.ReportKindCompletion, Tick: 1, Task: &ended},
	} {
		for name, sink := range sinks {
			if err := sink.Emit(ctx, r); err != nil {
				t.Fatalf("%s emit: %v", name, err)
			}
		}
	}
	if len(history.reports) != 2 || len(trace.reports) != 2 {
		t.Fatalf("history=%d trace=%d want=2 each", len(history.reports), len(trace.reports))
	}
	if strings.Contains(out.String(), "time =") {
		t.Fatalf("tick report leaked to console: %q", out.String())
	}
	if !strings.Contains(out.String(), "ending: mining foo") {
		t.Fatalf("console=%q missing completion", out.String())
	}

	quiet := reportSinks(history, nil, nil, nil)
	if _, ok := quiet["console"]; ok || len(quiet) != 1 {
		t.Fatalf("quiet sinks=%v want history only", quiet)
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds([]string{"Tick", " completion "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != domain.ReportKindTick || kinds[1] != domain.ReportKindCompletion {
		t.Fatalf("kinds=%v", kinds)
	}
	if _, err := parseKinds([]string{"robot"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestRunPersistsEffectiveConfig(t *testing.T) {
	dir := clearEnv(t)
	dbPath := filepath.Join(dir, "runs.db")
	out, err := execute(t, "run", "--config", writeConfig(t, dir), "--db", dbPath, "--max", "3", "--seed", "7", "-q")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "finished generating 3 robots !") {
		t.Fatalf("output=%q", out)
	}

	runs := listStoredRuns(t, dbPath)
	if len(runs) != 1 {
		t.Fatalf("runs=%d want=1", len(runs))
	}
	r := runs[0]
	if r.Status != domain.RunStatusDone || r.Robots != 3 || r.Seed != 7 {
		t.Fatalf("run=%+v", r)
	}
	if r.SwitchPenalty != 5.0 || r.MinRobots != 2 || r.MaxRobots != 3 {
		t.Fatalf("stored config min=%d max=%d penalty=%g", r.MinRobots, r.MaxRobots, r.SwitchPenalty)
	}
}

func TestRunRejectsConfigThatCannotFinish(t *testing.T) {
	dir := clearEnv(t)
	dbPath := filepath.Join(dir, "runs.db")
	cfgPath := writeConfig(t, dir)
	for _, args := range [][]string{
		{"--min", "1", "--max", "3"},
		{"--penalty", "0"},
	} {
		argv := append([]string{"run", "--config", cfgPath, "--db", dbPath, "-q"}, args...)
		if _, err := execute(t, argv...); err == nil {
			t.Fatalf("args=%v expected validation error", args)
		}
	}
	if _, err := os.Stat(dbPath); err == nil {
		if runs := listStoredRuns(t, dbPath); len(runs) != 0 {
			t.Fatalf("runs=%d want none recorded", len(runs))
		}
	}
}

func TestRunLeavesNoRunningRowWhenTraceFails(t *testing.T) {
	dir := clearEnv(t)
	dbPath := filepath.Join(dir, "runs.db")
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err := execute(t, "run", "--config", writeConfig(t, dir), "--db", dbPath, "--max", "3", "--trace", blocker, "-q")
	if err == nil {
		t.Fatalf("expected trace error")
	}
	for _, r := range listStoredRuns(t, dbPath) {
		if r.Status == domain.RunStatusRunning {
			t.Fatalf("run %s left running", r.ID)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func clearEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"FOOBAR_MIN_ROBOTS",
		"FOOBAR_MAX_ROBOTS",
		"FOOBAR_SEED",
		"FOOBAR_SWITCH_PENALTY",
		"FOOBAR_DB_PATH",
		"FOOBAR_TRACE_DIR",
	} {
		t.Setenv(key, "")
	}
	return t.TempDir()
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[line]\nmin_robots = 2\nmax_robots = 30\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func listStoredRuns(t *testing.T, dbPath string) []domain.Run {
	t.Helper()
	store, err := openStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()
	runs, err := store.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	return runs
}
