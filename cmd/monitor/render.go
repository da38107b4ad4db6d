package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"foobar_factory/internal/domain"
)

func renderRunsTable(table *tview.Table, runs []domain.Run, selectedRunID string) {
	table.Clear()
	headers := []string{"Run", "Status", "Robots", "Ticks", "Time", "Created"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, r := range runs {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(shortID(r.ID)))
		table.SetCell(row, 1, tview.NewTableCell(string(r.Status)).SetTextColor(statusColor(r.Status)))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d/%d", r.Robots, r.MaxRobots)))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", r.Ticks)))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%.2f", r.Economy.Time)))
		table.SetCell(row, 5, tview.NewTableCell(r.CreatedAt.Local().Format("01-02 15:04:05")))
		if r.ID == selectedRunID {
			table.Select(row, 0)
		}
	}
}

func renderRun(r domain.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]run[-] %s\n", r.ID)
	fmt.Fprintf(&b, "[yellow]status[-] %s", r.Status)
	if r.LastError != "" {
		fmt.Fprintf(&b, " [red]%s[-]", tview.Escape(r.LastError))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "[yellow]seed[-] %d  [yellow]penalty[-] %g\n", r.Seed, r.SwitchPenalty)
	fmt.Fprintf(&b, "[yellow]robots[-] %d of %d (start %d)\n", r.Robots, r.MaxRobots, r.MinRobots)
	fmt.Fprintf(&b, "[yellow]tick[-] %d  [yellow]time[-] %.3f\n", r.Ticks, r.Economy.Time)
	fmt.Fprintf(&b, "foo=%d bar=%d foobar=%d money=%d", r.Economy.Foo, r.Economy.Bar, r.Economy.FooBar, r.Economy.Money)
	return b.String()
}

// renderRobots shows the task of every robot as of the latest tick report.
func renderRobots(items []domain.RunReport) string {
	if len(items) == 0 {
		return "No ticks yet"
	}
	last := items[len(items)-1].Report
	var b strings.Builder
	fmt.Fprintf(&b, "tick %d\n", last.Tick)
	for i, t := range last.Tasks {
		fmt.Fprintf(&b, "#%-3d %s\n", i, tview.Escape(t.String()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCompletions(items []domain.RunReport) string {
	if len(items) == 0 {
		return "No completions"
	}
	var b strings.Builder
	for _, item := range items {
		r := item.Report
		task := "-"
		if r.Task != nil {
			task = tview.Escape(r.Task.String())
		}
		switch r.Kind {
		case domain.ReportKindCompletion:
			fmt.Fprintf(&b, "[gray]t%-5d[-] #%-3d [green]ended[-] %s\n", r.Tick, r.Slot, task)
		case domain.ReportKindSpawn:
			fmt.Fprintf(&b, "[gray]t%-5d[-] #%-3d [aqua]new robot[-] %s\n", r.Tick, r.Slot, task)
		case domain.ReportKindAssignment:
			penalty := ""
			if r.Task != nil && r.Task.Penalized {
				penalty = " [red](switch)[-]"
			}
			fmt.Fprintf(&b, "[gray]t%-5d[-] #%-3d [white]next[-] %s%s\n", r.Tick, r.Slot, task, penalty)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// defaultRunID picks the first running run, else the newest one.
func defaultRunID(runs []domain.Run) string {
	for _, r := range runs {
		if r.Status == domain.RunStatusRunning {
			return r.ID
		}
	}
	if len(runs) > 0 {
		return runs[0].ID
	}
	return ""
}

func statusColor(s domain.RunStatus) tcell.Color {
	switch s {
	case domain.RunStatusDone:
		return tcell.ColorGreen
	case domain.RunStatusFailed:
		return tcell.ColorRed
	default:
		return tcell.ColorYellow
	}
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
