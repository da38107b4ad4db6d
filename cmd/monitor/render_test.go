package main

import (
	"strings"
	"testing"

	"foobar_factory/internal/domain"
)

func TestRenderRobotsUsesLatestTick(t *testing.T) {
	items := []domain.RunReport{
		{Seq: 1, Report: domain.Report{Kind: domain.ReportKindTick, Tick: 1, Tasks: []domain.Task{{Kind: domain.KindMineFoo}}}},
		{Seq: 5, Report: domain.Report{Kind: domain.ReportKindTick, Tick: 2, Tasks: []domain.Task{
			{Kind: domain.KindMineBar, Timeout: 0.5},
			{Kind: domain.KindSellFooBar, Quantity: 5, Timeout: 10},
		}}},
	}
	got := renderRobots(items)
	if !strings.HasPrefix(got, "tick 2\n") {
		t.Fatalf("render=%q want latest tick", got)
	}
	if !strings.Contains(got, "sell 5 foobar(s) (timeout 10)") {
		t.Fatalf("render=%q missing sell task", got)
	}
	if renderRobots(nil) != "No ticks yet" {
		t.Fatalf("unexpected empty render")
	}
}

func TestRenderCompletionsMarksSwitches(t *testing.T) {
	ended := domain.Task{Kind: domain.KindMineFoo}
	next := domain.Task{Kind: domain.KindMineBar, Timeout: 6, Penalized: true}
	got := renderCompletions([]domain.RunReport{
		{Report: domain.Report{Kind: domain.ReportKindCompletion, Tick: 1, Task: &ended}},
		{Report: domain.Report{Kind: domain.ReportKindAssignment, Tick: 1, Task: &next}},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d want=2: %q", len(lines), got)
	}
	if !strings.Contains(lines[0], "ended") || !strings.Contains(lines[1], "(switch)") {
		t.Fatalf("render=%q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789"); got != "01234567" {
		t.Fatalf("shortID=%s", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID=%s", got)
	}
}

func TestDefaultRunIDPrefersRunning(t *testing.T) {
	runs := []domain.Run{
		{ID: "newest", Status: domain.RunStatusDone},
		{ID: "live", Status: domain.RunStatusRunning},
	}
	if got := defaultRunID(runs); got != "live" {
		t.Fatalf("selected=%s want=live", got)
	}
	if got := defaultRunID(runs[:1]); got != "newest" {
		t.Fatalf("selected=%s want=newest", got)
	}
	if got := defaultRunID(nil); got != "" {
		t.Fatalf("selected=%s want empty", got)
	}
}
