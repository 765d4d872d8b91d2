package sales

import "sort"

// QuantityCounter sums quantities per SKU and remembers the order in which SKUs were first seen.
type QuantityCounter struct {
	order  []string
	totals map[string]float64
}

// NewQuantityCounter returns an empty counter.
func NewQuantityCounter() *QuantityCounter {
	return &QuantityCounter{totals: make(map[string]float64)}
}

// Add accumulates qty for sku.
func (c *QuantityCounter) Add(sku string, qty float64) {
	if _, ok := c.totals[sku]; !ok {
		c.order = append(c.order, sku)
	}
	c.totals[sku] += qty
}

// Top returns up to limit entries ordered by quantity descending.
// Equal quantities keep first-seen order.
func (c *QuantityCounter) Top(limit int) []ProductQuantity {
	if c == nil || limit <= 0 {
		return []ProductQuantity{}
	}
	out := make([]ProductQuantity, 0, len(c.order))
	for _, sku := range c.order {
		out = append(out, ProductQuantity{SKU: sku, Quantity: c.totals[sku]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Quantity > out[j].Quantity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
