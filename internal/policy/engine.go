package policy

import (
	"foobar_factory/internal/catalog"
	"foobar_factory/internal/domain"
)

// Engine is the greedy task assignment policy. It is memoryless: the
// previous kind is accepted so callers can swap in smarter policies, but
// the greedy rules ignore it.
//
// The rules are known to be sub-optimal, notably with respect to switching
// costs. Rule order is significant: the first rule that fires wins.
type Engine struct {
	src catalog.Source
}

func New(src catalog.Source) *Engine {
	return &Engine{src: src}
}

func (e *Engine) SelectNextTask(econ domain.Economy, robots int, previous domain.Kind) (domain.Task, error) {
	switch robots {
	case 0:
		return catalog.NewMineFoo(), nil
	case 1:
		return catalog.NewMineBar(e.src), nil
	}

	if econ.Money >= catalog.RobotMoneyCost && econ.Foo >= catalog.RobotFooCost {
		return catalog.NewBuyRobot(), nil
	}
	if econ.FooBar >= catalog.MinFooBarSale {
		return catalog.NewSellFooBar(catalog.MinFooBarSale)
	}
	// keep enough foo in reserve for the next robot
	if econ.Foo >= catalog.RobotFooCost+catalog.AssembleFooCost && econ.Bar >= catalog.AssembleBarCost {
		return catalog.NewAssembleFooBar(), nil
	}
	if econ.Foo >= econ.Bar {
		return catalog.NewMineBar(e.src), nil
	}
	return catalog.NewMineFoo(), nil
}
