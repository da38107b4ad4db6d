package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"foobar_factory/internal/config"
	"foobar_factory/internal/domain"
	sqlitestore "foobar_factory/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml or config.yaml (default: ~/.foobar/config.toml)")
	dbPathFlag := flag.String("db", "", "sqlite database path override")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	limit := flag.Int("limit", 50, "number of runs to list")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	dbPath := cfg.Storage.DBPath
	if *dbPathFlag != "" {
		dbPath = *dbPathFlag
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open run history %s: %v\n", dbPath, err)
		os.Exit(1)
	}

	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open sqlite store: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()
	if err := store.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate sqlite: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	economyView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	economyView.SetTitle("Economy").SetBorder(true)

	robotsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	robotsView.SetTitle("Robots").SetBorder(true)

	completionsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	completionsView.SetTitle("Completions").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf("Reading %s | shortcuts: F10 quit, F5 refresh", dbPath))

	rightTop := tview.NewFlex().
		AddItem(economyView, 0, 1, false).
		AddItem(robotsView, 0, 2, false)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(rightTop, 0, 2, false).
		AddItem(completionsView, 0, 3, false)

	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, true).
		AddItem(statusView, 3, 0, false)

	// selectedRunID and lastRuns are only touched on the UI goroutine.
	var selectedRunID string
	var lastRuns []domain.Run
	var detailsVersion uint64

	refreshDetailsAsync := func(runID string) {
		if runID == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)
		go func(selected string, v uint64) {
			ctx := context.Background()
			run, runErr := store.GetRun(ctx, selected)
			ticks, tickErr := store.ListRunReports(ctx, selected, []domain.ReportKind{domain.ReportKindTick}, 1)
			done, doneErr := store.ListRunReports(ctx, selected, []domain.ReportKind{
				domain.ReportKindCompletion,
				domain.ReportKindSpawn,
				domain.ReportKindAssignment,
			}, 300)

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedRunID {
					return
				}
				if runErr != nil {
					economyView.SetText(fmt.Sprintf("error: %v", runErr))
				} else {
					economyView.SetText(renderRun(run))
				}
				if tickErr != nil {
					robotsView.SetText(fmt.Sprintf("error: %v", tickErr))
				} else {
					robotsView.SetText(renderRobots(ticks))
				}
				if doneErr != nil {
					completionsView.SetText(fmt.Sprintf("error: %v", doneErr))
				} else {
					completionsView.SetText(renderCompletions(done))
					completionsView.ScrollToEnd()
				}
			})
		}(runID, version)
	}

	// refresh reloads the run list off the UI goroutine, then applies it
	// and reloads the details of the selected run.
	refresh := func() {
		runs, err := store.ListRuns(context.Background(), *limit)
		app.QueueUpdateDraw(func() {
			if err != nil {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
				return
			}
			lastRuns = runs
			if selectedRunID == "" {
				selectedRunID = defaultRunID(runs)
			}
			renderRunsTable(runsTable, runs, selectedRunID)
			refreshDetailsAsync(selectedRunID)
		})
	}

	runsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastRuns) {
			return
		}
		selectedRunID = lastRuns[row-1].ID
		refreshDetailsAsync(selectedRunID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go refresh()
			statusView.SetText("Manual refresh requested")
			return nil
		}
		if event.Key() == tcell.KeyRune && event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		refresh()
		for range ticker.C {
			refresh()
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(runsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}
