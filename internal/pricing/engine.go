// Package pricing computes basket subtotals and bundle discounts.
//
// A bundle applies only when every primary product is in the basket. The tier is then
// chosen by companion coverage: the smallest quantity among the companion products
// present in the basket, or zero when none is present.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrNoPrimaryProducts = errors.New("bundle rules need at least one primary product")
	ErrDuplicateTier     = errors.New("bundle tiers must have distinct companion thresholds")
	ErrNegativeDiscount  = errors.New("bundle discount must not be negative")
)

type Line struct {
	ProductID string
	Price     decimal.Decimal
	Quantity  int
}

type Tier struct {
	MinCompanionCoverage int
	Discount             decimal.Decimal
	Label                string
}

type Rules struct {
	PrimaryIDs   []string
	CompanionIDs []string
	Tiers        []Tier
}

type Quote struct {
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Label     *string
	HasBundle bool
	// 不含運費，運費由呼叫端加上
	Total     decimal.Decimal
	ItemCount int
}

type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) (*Engine, error) {
	if len(rules.Tiers) > 0 && len(rules.PrimaryIDs) == 0 {
		return nil, ErrNoPrimaryProducts
	}

	tiers := make([]Tier, len(rules.Tiers))
	copy(tiers, rules.Tiers)
	// 由最優惠 (門檻最高) 往下檢查
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinCompanionCoverage > tiers[j].MinCompanionCoverage
	})
	for i, tier := range tiers {
		if tier.Discount.IsNegative() {
			return nil, fmt.Errorf("%w: tier %q", ErrNegativeDiscount, tier.Label)
		}
		if i > 0 && tiers[i-1].MinCompanionCoverage == tier.MinCompanionCoverage {
			return nil, fmt.Errorf("%w: threshold %d", ErrDuplicateTier, tier.MinCompanionCoverage)
		}
	}

	return &Engine{
		rules: Rules{
			PrimaryIDs:   append([]string(nil), rules.PrimaryIDs...),
			CompanionIDs: append([]string(nil), rules.CompanionIDs...),
			Tiers:        tiers,
		},
	}, nil
}

func MustNewEngine(rules Rules) *Engine {
	e, err := NewEngine(rules)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// Quote 同一個 productID 出現多次會合併數量，數量 <= 0 的行直接忽略
func (e *Engine) Quote(lines []Line) Quote {
	quantities := make(map[string]int, len(lines))
	subtotal := decimal.Zero
	itemCount := 0
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		quantities[line.ProductID] += line.Quantity
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		itemCount += line.Quantity
	}

	quote := Quote{
		Subtotal:  subtotal,
		Discount:  decimal.Zero,
		ItemCount: itemCount,
	}

	if tier, ok := e.selectTier(quantities); ok {
		label := tier.Label
		quote.Discount = tier.Discount
		quote.Label = &label
		quote.HasBundle = tier.Discount.IsPositive()
	}

	quote.Total = quote.Subtotal.Sub(quote.Discount)
	return quote
}

func (e *Engine) selectTier(quantities map[string]int) (Tier, bool) {
	if len(e.rules.Tiers) == 0 {
		return Tier{}, false
	}
	for _, id := range e.rules.PrimaryIDs {
		if quantities[id] < 1 {
			return Tier{}, false
		}
	}

	coverage := companionCoverage(e.rules.CompanionIDs, quantities)
	for _, tier := range e.rules.Tiers {
		if coverage >= tier.MinCompanionCoverage {
			return tier, true
		}
	}
	return Tier{}, false
}

// 只看籃子裡有的 companion，一個都沒有時 coverage 為 0
func companionCoverage(companionIDs []string, quantities map[string]int) int {
	coverage := 0
	for _, id := range companionIDs {
		q := quantities[id]
		if q <= 0 {
			continue
		}
		if coverage == 0 || q < coverage {
			coverage = q
		}
	}
	return coverage
}
