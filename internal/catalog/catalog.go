// Package catalog holds the five task contracts of the production line.
//
// Tasks are plain domain.Task values; Start and End switch over the kind so
// every resource movement lives in this one file.
package catalog

import (
	"foobar_factory/internal/domain"
)

const (
	MineFooTimeout        = 1.0
	MineBarMinTimeout     = 0.5
	MineBarMaxTimeout     = 2.0
	AssembleFooBarTimeout = 2.0
	SellFooBarTimeout     = 10.0
	BuyRobotTimeout       = 1.0

	AssembleFooCost     = 1
	AssembleBarCost     = 1
	AssembleSuccessRate = 0.6

	// MinFooBarSale is the smallest batch a SellFooBar task accepts.
	MinFooBarSale = 5

	RobotMoneyCost = 3
	RobotFooCost   = 6
)

// Source supplies uniform draws in [0, 1). *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Outcome describes the side effects of End that the caller has to act on.
type Outcome struct {
	// Assembled is set when an AssembleFooBar produced a foobar.
	Assembled bool
	// SpawnRobot is set when a BuyRobot finished and a new slot is owed.
	SpawnRobot bool
}

func NewMineFoo() domain.Task {
	return newTask(domain.KindMineFoo, MineFooTimeout)
}

// NewMineBar draws the timeout once, uniformly in [0.5, 2.0).
func NewMineBar(src Source) domain.Task {
	timeout := MineBarMinTimeout + src.Float64()*(MineBarMaxTimeout-MineBarMinTimeout)
	return newTask(domain.KindMineBar, timeout)
}

func NewAssembleFooBar() domain.Task {
	return newTask(domain.KindAssembleFooBar, AssembleFooBarTimeout)
}

func NewSellFooBar(quantity int) (domain.Task, error) {
	if quantity < MinFooBarSale {
		return domain.Task{}, constructionf(domain.KindSellFooBar, "number to sell %d is below %d", quantity, MinFooBarSale)
	}
	t := newTask(domain.KindSellFooBar, SellFooBarTimeout)
	t.Quantity = quantity
	return t, nil
}

func NewBuyRobot() domain.Task {
	return newTask(domain.KindBuyRobot, BuyRobotTimeout)
}

// Start validates the task's preconditions against e and deducts its up-front
// cost. A failed precondition leaves e untouched.
func Start(t domain.Task, e *domain.Economy) error {
	switch t.Kind {
	case domain.KindMineFoo, domain.KindMineBar:
		return nil
	case domain.KindAssembleFooBar:
		if e.Foo < AssembleFooCost || e.Bar < AssembleBarCost {
			return invariantf(t.Kind, "needs foo>=%d bar>=%d, have foo=%d bar=%d", AssembleFooCost, AssembleBarCost, e.Foo, e.Bar)
		}
		e.Foo -= AssembleFooCost
		e.Bar -= AssembleBarCost
		return nil
	case domain.KindSellFooBar:
		if t.Quantity < MinFooBarSale {
			return constructionf(t.Kind, "number to sell %d is below %d", t.Quantity, MinFooBarSale)
		}
		if e.FooBar < t.Quantity {
			return invariantf(t.Kind, "needs foobar>=%d, have foobar=%d", t.Quantity, e.FooBar)
		}
		e.FooBar -= t.Quantity
		return nil
	case domain.KindBuyRobot:
		if e.Money < RobotMoneyCost || e.Foo < RobotFooCost {
			return invariantf(t.Kind, "needs money>=%d foo>=%d, have money=%d foo=%d", RobotMoneyCost, RobotFooCost, e.Money, e.Foo)
		}
		e.Money -= RobotMoneyCost
		e.Foo -= RobotFooCost
		return nil
	default:
		return constructionf(t.Kind, "unknown task kind")
	}
}

// End applies the task's payoff to e. The assembly roll is drawn from src.
func End(t domain.Task, e *domain.Economy, src Source) (Outcome, error) {
	switch t.Kind {
	case domain.KindMineFoo:
		e.Foo++
		return Outcome{}, nil
	case domain.KindMineBar:
		e.Bar++
		return Outcome{}, nil
	case domain.KindAssembleFooBar:
		if src.Float64() <= AssembleSuccessRate {
			e.FooBar++
			return Outcome{Assembled: true}, nil
		}
		// failed assembly gives the bar back, the foo is lost
		e.Bar += AssembleBarCost
		return Outcome{}, nil
	case domain.KindSellFooBar:
		e.Money += t.Quantity
		return Outcome{}, nil
	case domain.KindBuyRobot:
		return Outcome{SpawnRobot: true}, nil
	default:
		return Outcome{}, constructionf(t.Kind, "unknown task kind")
	}
}

func newTask(kind domain.Kind, timeout float64) domain.Task {
	return domain.Task{Kind: kind, Timeout: timeout, BaseTimeout: timeout}
}
