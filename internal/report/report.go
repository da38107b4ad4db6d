// Package report holds the production line's reporting sinks.
package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"foobar_factory/internal/domain"
)

type Sink interface {
	Emit(ctx context.Context, r domain.Report) error
}

// Console writes reports as human readable progress text.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Emit(_ context.Context, r domain.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Kind == domain.ReportKindTick {
		if _, err := io.WriteString(c.w, "---\n"); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(c.w, r.String())
	return err
}

// Multi emits to every sink in order and stops at the first error.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, r domain.Report) error {
	for _, s := range m {
		if err := s.Emit(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Pump forwards every report read from ch to sink until ch is closed. After
// a sink error it keeps draining ch so publishers never block, and returns
// the first error.
func Pump(ctx context.Context, ch <-chan domain.Report, sink Sink) error {
	var first error
	for r := range ch {
		if first != nil {
			continue
		}
		if err := sink.Emit(ctx, r); err != nil {
			first = fmt.Errorf("pump %s report: %w", r.Kind, err)
		}
	}
	return first
}

// Filter drops reports whose kind is not listed.
type Filter struct {
	Sink  Sink
	Kinds []domain.ReportKind
}

func (f Filter) Emit(ctx context.Context, r domain.Report) error {
	for _, k := range f.Kinds {
		if k == r.Kind {
			return f.Sink.Emit(ctx, r)
		}
	}
	return nil
}
