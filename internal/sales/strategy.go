package sales

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// RevenueSimple names SimpleRevenue.
	RevenueSimple = "simple"
	// BonusProfitRank names BonusByProfit.
	BonusProfitRank = "profit_rank"
)

var (
	revenueStrategies = map[string]RevenueFunc{
		RevenueSimple: SimpleRevenue,
	}
	bonusStrategies = map[string]BonusFunc{
		BonusProfitRank: BonusByProfit,
	}
)

// RevenueStrategy resolves a revenue calculator by name.
func RevenueStrategy(name string) (RevenueFunc, error) {
	fn, ok := revenueStrategies[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: revenue %q", ErrUnknownStrategy, name)
	}
	return fn, nil
}

// BonusStrategy resolves a bonus calculator by name.
func BonusStrategy(name string) (BonusFunc, error) {
	fn, ok := bonusStrategies[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: bonus %q", ErrUnknownStrategy, name)
	}
	return fn, nil
}

// RevenueStrategyNames lists the registered revenue strategies in lexical order.
func RevenueStrategyNames() []string {
	return sortedKeys(revenueStrategies)
}

// BonusStrategyNames lists the registered bonus strategies in lexical order.
func BonusStrategyNames() []string {
	return sortedKeys(bonusStrategies)
}

// DefaultOptions wires SimpleRevenue and BonusByProfit.
func DefaultOptions() Options {
	return Options{CalculateRevenue: SimpleRevenue, CalculateBonus: BonusByProfit}
}

// OptionsFor resolves both strategies by name.
func OptionsFor(revenue, bonus string) (Options, error) {
	rev, err := RevenueStrategy(revenue)
	if err != nil {
		return Options{}, err
	}
	bon, err := BonusStrategy(bonus)
	if err != nil {
		return Options{}, err
	}
	return Options{CalculateRevenue: rev, CalculateBonus: bon}, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
