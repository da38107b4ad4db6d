package catalog

import (
	"errors"
	"fmt"

	"foobar_factory/internal/domain"
)

var (
	// ErrInvariantViolation means a task was started without the resources
	// its contract requires. It always points at a defect in task selection.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrConstructionViolation means a task was built with invalid parameters.
	ErrConstructionViolation = errors.New("construction violation")
)

// ContractError reports a broken task contract.
type ContractError struct {
	Kind error
	Task domain.Kind
	Msg  string
}

func (e *ContractError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Task)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), e.Task, e.Msg)
}

func (e *ContractError) Unwrap() error { return e.Kind }

func invariantf(kind domain.Kind, format string, args ...any) error {
	return &ContractError{Kind: ErrInvariantViolation, Task: kind, Msg: fmt.Sprintf(format, args...)}
}

func constructionf(kind domain.Kind, format string, args ...any) error {
	return &ContractError{Kind: ErrConstructionViolation, Task: kind, Msg: fmt.Sprintf(format, args...)}
}
