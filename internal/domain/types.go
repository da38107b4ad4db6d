package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindMineFoo        Kind = "MINE_FOO"
	KindMineBar        Kind = "MINE_BAR"
	KindAssembleFooBar Kind = "ASSEMBLE_FOOBAR"
	KindSellFooBar     Kind = "SELL_FOOBAR"
	KindBuyRobot       Kind = "BUY_ROBOT"
)

// Kinds lists every task kind in catalog order.
var Kinds = []Kind{KindMineFoo, KindMineBar, KindAssembleFooBar, KindSellFooBar, KindBuyRobot}

// Task is one robot's current unit of work. Kind selects the start/end
// contract; Quantity is only meaningful for KindSellFooBar.
type Task struct {
	Kind        Kind    `json:"kind"`
	Timeout     float64 `json:"timeout"`
	BaseTimeout float64 `json:"base_timeout"`
	Quantity    int     `json:"quantity,omitempty"`
	Penalized   bool    `json:"penalized,omitempty"`
}

func (t Task) Done() bool {
	return t.Timeout <= 0
}

func (t *Task) Tick(delta float64) {
	t.Timeout -= delta
}

func (t Task) String() string {
	timeout := formatFloat(t.Timeout)
	switch t.Kind {
	case KindMineFoo:
		return fmt.Sprintf("mining foo (timeout %s)", timeout)
	case KindMineBar:
		return fmt.Sprintf("mining bar (timeout %s)", timeout)
	case KindAssembleFooBar:
		return fmt.Sprintf("assemble foobar (timeout %s)", timeout)
	case KindSellFooBar:
		return fmt.Sprintf("sell %d foobar(s) (timeout %s)", t.Quantity, timeout)
	case KindBuyRobot:
		return fmt.Sprintf("buy robot (timeout %s)", timeout)
	default:
		return fmt.Sprintf("%s (timeout %s)", t.Kind, timeout)
	}
}

// Economy is the shared production line state. Counters never go negative.
type Economy struct {
	Time   float64 `json:"time"`
	Foo    int     `json:"foo"`
	Bar    int     `json:"bar"`
	FooBar int     `json:"foobar"`
	Money  int     `json:"money"`
}

func (e Economy) String() string {
	return fmt.Sprintf(
		"time = %s, foo = %d, bar = %d, foobar = %d, money = %d",
		formatFloat(e.Time), e.Foo, e.Bar, e.FooBar, e.Money,
	)
}

type ReportKind string

const (
	ReportKindTick       ReportKind = "tick"
	ReportKindCompletion ReportKind = "completion"
	ReportKindSpawn      ReportKind = "spawn"
	ReportKindAssignment ReportKind = "assignment"
)

// Report is a progress record emitted by the production line. Tasks is only
// populated for tick reports; Slot and Task for the per-robot kinds.
type Report struct {
	Kind    ReportKind `json:"kind"`
	Tick    int        `json:"tick"`
	Economy Economy    `json:"economy"`
	Robots  int        `json:"robots"`
	Slot    int        `json:"slot"`
	Task    *Task      `json:"task,omitempty"`
	Tasks   []Task     `json:"tasks,omitempty"`
}

func (r Report) String() string {
	switch r.Kind {
	case ReportKindTick:
		var b strings.Builder
		fmt.Fprintf(&b, "%s, robots = %d", r.Economy, r.Robots)
		for _, t := range r.Tasks {
			b.WriteString("\n\t-> ")
			b.WriteString(t.String())
		}
		return b.String()
	case ReportKindCompletion:
		return fmt.Sprintf("robot #%d\n\tending: %s", r.Slot, taskString(r.Task))
	case ReportKindSpawn:
		return fmt.Sprintf("robot #%d\n\tnew robot: %s", r.Slot, taskString(r.Task))
	case ReportKindAssignment:
		return fmt.Sprintf("\tnew task: %s", taskString(r.Task))
	default:
		return string(r.Kind)
	}
}

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

type Run struct {
	ID            string    `json:"id"`
	Status        RunStatus `json:"status"`
	Seed          int64     `json:"seed"`
	MinRobots     int       `json:"min_robots"`
	MaxRobots     int       `json:"max_robots"`
	SwitchPenalty float64   `json:"switch_penalty"`
	Ticks         int       `json:"ticks"`
	Robots        int       `json:"robots"`
	Economy       Economy   `json:"economy"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RunReport is a Report persisted against a run, Seq orders reports within it.
type RunReport struct {
	RunID  string `json:"run_id"`
	Seq    int64  `json:"seq"`
	Report Report `json:"report"`
}

func taskString(t *Task) string {
	if t == nil {
		return "-"
	}
	return t.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
