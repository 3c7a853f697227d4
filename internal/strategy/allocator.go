package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"StageSentinel/internal/model"
)

var (
	ErrEmptyBasket   = errors.New("basket is empty")
	ErrZeroWeight    = errors.New("basket weights sum to zero")
	ErrStageNotFound = errors.New("stage has no configured amount")
)

// Allocate converts a stage into per-symbol target quantities. Symbols with
// no known price are kept with quantity 0 so the caller can surface them.
func Allocate(s model.Settings, stage model.Stage, prices map[string]float64) ([]model.Allocation, error) {
	if stage == model.NoStage || int(stage) >= len(s.StageAmounts) || stage < 0 {
		return nil, fmt.Errorf("%w: stage %d", ErrStageNotFound, stage)
	}
	return AllocateBudget(s.Basket, s.StageAmounts[stage], prices)
}

// AllocateBudget splits budget across the basket by normalized weight.
func AllocateBudget(basket []model.BasketEntry, budget float64, prices map[string]float64) ([]model.Allocation, error) {
	if len(basket) == 0 {
		return nil, ErrEmptyBasket
	}
	total := decimal.Zero
	for _, e := range basket {
		if e.Weight < 0 {
			return nil, fmt.Errorf("negative weight for %s", e.Symbol)
		}
		total = total.Add(decimal.NewFromFloat(e.Weight))
	}
	if !total.IsPositive() {
		return nil, ErrZeroWeight
	}

	amount := decimal.NewFromFloat(budget)
	out := make([]model.Allocation, 0, len(basket))
	for _, e := range basket {
		share := amount.Mul(decimal.NewFromFloat(e.Weight)).Div(total).Round(0)
		price := prices[e.Symbol]
		alloc := model.Allocation{
			Symbol: e.Symbol,
			Budget: share.InexactFloat64(),
			Price:  price,
		}
		alloc.Quantity = quantity(share, price)
		out = append(out, alloc)
	}
	return out, nil
}

func quantity(budget decimal.Decimal, price float64) int64 {
	if price <= 0 || !budget.IsPositive() {
		return 0
	}
	q := budget.Div(decimal.NewFromFloat(price)).Round(0).IntPart()
	if q < 1 {
		return 1
	}
	return q
}
