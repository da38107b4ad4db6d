package line

import (
	"context"
	"errors"
	"fmt"
	"log"

	"foobar_factory/internal/catalog"
	"foobar_factory/internal/domain"
)

const (
	DefaultMinRobots     = 2
	DefaultMaxRobots     = 30
	DefaultSwitchPenalty = 5.0
)

var (
	ErrEmptyPool = errors.New("production line has no robots")
	// ErrPoolCannotGrow is returned by Run when a lone robot would be asked
	// to grow the pool: it is always assigned bar mining and never buys.
	ErrPoolCannotGrow = errors.New("production line needs at least 2 robots to grow")
)

type Policy interface {
	SelectNextTask(econ domain.Economy, robots int, previous domain.Kind) (domain.Task, error)
}

// Sink receives progress reports in emission order.
type Sink interface {
	Emit(ctx context.Context, r domain.Report) error
}

type Config struct {
	MinRobots     int
	MaxRobots     int
	SwitchPenalty float64
}

func (c Config) withDefaults() Config {
	if c.MinRobots <= 0 {
		c.MinRobots = DefaultMinRobots
	}
	if c.MaxRobots <= 0 {
		c.MaxRobots = DefaultMaxRobots
	}
	if c.MaxRobots < c.MinRobots {
		c.MaxRobots = c.MinRobots
	}
	if c.SwitchPenalty <= 0 {
		c.SwitchPenalty = DefaultSwitchPenalty
	}
	return c
}

type Summary struct {
	Ticks         int                 `json:"ticks"`
	Economy       domain.Economy      `json:"economy"`
	Robots        int                 `json:"robots"`
	Completions   map[domain.Kind]int `json:"completions"`
	Switches      int                 `json:"switches"`
	DroppedRobots int                 `json:"dropped_robots"`
}

// Service is the production line clock. It owns the economy and every
// robot's task; nothing else mutates them.
type Service struct {
	policy Policy
	src    catalog.Source
	sink   Sink
	cfg    Config
	logger *log.Logger

	econ  domain.Economy
	slots []domain.Task
	tick  int

	completions map[domain.Kind]int
	switches    int
	dropped     int
	failed      error
}

func New(cfg Config, policy Policy, src catalog.Source, sink Sink, logger *log.Logger) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = discard{}
	}
	return &Service{
		policy:      policy,
		src:         src,
		sink:        sink,
		cfg:         cfg,
		logger:      logger,
		completions: make(map[domain.Kind]int),
	}
}

func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) Economy() domain.Economy {
	return s.econ
}

func (s *Service) Robots() int {
	return len(s.slots)
}

// Tasks returns a copy of the current task of every slot, by slot index.
func (s *Service) Tasks() []domain.Task {
	out := make([]domain.Task, len(s.slots))
	copy(out, s.slots)
	return out
}

func (s *Service) Summary() Summary {
	completions := make(map[domain.Kind]int, len(s.completions))
	for k, v := range s.completions {
		completions[k] = v
	}
	return Summary{
		Ticks:         s.tick,
		Economy:       s.econ,
		Robots:        len(s.slots),
		Completions:   completions,
		Switches:      s.switches,
		DroppedRobots: s.dropped,
	}
}

// Seed fills the pool up to MinRobots. Seeded robots start without a
// switching penalty.
func (s *Service) Seed(ctx context.Context) error {
	for len(s.slots) < s.cfg.MinRobots {
		if _, err := s.AddRobot(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AddRobot appends a slot running a freshly selected, started task and
// returns its index.
func (s *Service) AddRobot(ctx context.Context) (int, error) {
	if s.failed != nil {
		return 0, s.failed
	}
	task, err := s.policy.SelectNextTask(s.econ, len(s.slots), "")
	if err != nil {
		return 0, s.fail(fmt.Errorf("select task for new robot: %w", err))
	}
	if err := catalog.Start(task, &s.econ); err != nil {
		return 0, s.fail(fmt.Errorf("start %s for new robot: %w", task.Kind, err))
	}
	s.slots = append(s.slots, task)
	slot := len(s.slots) - 1
	if err := s.emit(ctx, domain.ReportKindSpawn, slot, &task); err != nil {
		return slot, s.fail(err)
	}
	return slot, nil
}

// Step advances the clock to the next task completion, ends every task that
// finished and assigns each of those robots a new task.
func (s *Service) Step(ctx context.Context) error {
	if s.failed != nil {
		return s.failed
	}
	if len(s.slots) == 0 {
		return ErrEmptyPool
	}

	delta := s.slots[0].Timeout
	for _, t := range s.slots[1:] {
		if t.Timeout < delta {
			delta = t.Timeout
		}
	}

	s.econ.Time += delta
	s.tick++
	for i := range s.slots {
		s.slots[i].Tick(delta)
	}

	snapshot := domain.Report{
		Kind:    domain.ReportKindTick,
		Tick:    s.tick,
		Economy: s.econ,
		Robots:  len(s.slots),
		Tasks:   s.Tasks(),
	}
	if err := s.sink.Emit(ctx, snapshot); err != nil {
		return s.fail(fmt.Errorf("emit tick report: %w", err))
	}

	// slots appended while completing start with a positive timeout, so
	// only the ones present at the tick can be done
	n := len(s.slots)
	for i := 0; i < n; i++ {
		if !s.slots[i].Done() {
			continue
		}
		if err := s.complete(ctx, i); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

// Run seeds the pool if needed and steps until it holds MaxRobots robots.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	if s.cfg.MaxRobots > s.cfg.MinRobots && s.cfg.MinRobots < 2 {
		return s.Summary(), fmt.Errorf("%w: min=%d max=%d", ErrPoolCannotGrow, s.cfg.MinRobots, s.cfg.MaxRobots)
	}
	if err := s.Seed(ctx); err != nil {
		return s.Summary(), err
	}
	for len(s.slots) < s.cfg.MaxRobots {
		if err := ctx.Err(); err != nil {
			return s.Summary(), err
		}
		if err := s.Step(ctx); err != nil {
			return s.Summary(), err
		}
	}
	s.logger.Printf("production line finished robots=%d ticks=%d time=%g", len(s.slots), s.tick, s.econ.Time)
	return s.Summary(), nil
}

func (s *Service) complete(ctx context.Context, slot int) error {
	ended := s.slots[slot]
	out, err := catalog.End(ended, &s.econ, s.src)
	if err != nil {
		return fmt.Errorf("end %s in slot %d: %w", ended.Kind, slot, err)
	}
	s.completions[ended.Kind]++
	if err := s.emit(ctx, domain.ReportKindCompletion, slot, &ended); err != nil {
		return err
	}

	if out.SpawnRobot {
		if len(s.slots) >= s.cfg.MaxRobots {
			s.dropped++
			s.logger.Printf("robot purchase dropped, pool full slot=%d robots=%d", slot, len(s.slots))
		} else if _, err := s.AddRobot(ctx); err != nil {
			return err
		}
	}

	next, err := s.policy.SelectNextTask(s.econ, len(s.slots), ended.Kind)
	if err != nil {
		return fmt.Errorf("select task for slot %d: %w", slot, err)
	}
	next = s.switchTo(next, ended.Kind)
	if err := catalog.Start(next, &s.econ); err != nil {
		return fmt.Errorf("start %s in slot %d: %w", next.Kind, slot, err)
	}
	s.slots[slot] = next
	return s.emit(ctx, domain.ReportKindAssignment, slot, &next)
}

// switchTo charges the switching penalty when the kind changes. Quantity is
// not part of the comparison.
func (s *Service) switchTo(task domain.Task, previous domain.Kind) domain.Task {
	if previous == "" || task.Kind == previous {
		return task
	}
	task.Timeout += s.cfg.SwitchPenalty
	task.Penalized = true
	s.switches++
	return task
}

func (s *Service) emit(ctx context.Context, kind domain.ReportKind, slot int, task *domain.Task) error {
	r := domain.Report{
		Kind:    kind,
		Tick:    s.tick,
		Economy: s.econ,
		Robots:  len(s.slots),
		Slot:    slot,
		Task:    task,
	}
	if err := s.sink.Emit(ctx, r); err != nil {
		return fmt.Errorf("emit %s report: %w", kind, err)
	}
	return nil
}

func (s *Service) fail(err error) error {
	if s.failed == nil {
		s.failed = err
		s.logger.Printf("production line halted tick=%d err=%v", s.tick, err)
	}
	return s.failed
}

type discard struct{}

func (discard) Emit(context.Context, domain.Report) error { return nil }
