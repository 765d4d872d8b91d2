package sales

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// TopProductsLimit caps the number of products listed per seller.
const TopProductsLimit = 10

// Options carries the pluggable calculators used by Analyze.
type Options struct {
	CalculateRevenue RevenueFunc
	CalculateBonus   BonusFunc
}

// Analyze builds the per-seller report ranked by profit descending.
// The dataset is not modified. Any validation failure aborts before aggregation.
// A seller whose revenue, profit or bonus is infinite or NaN fails the whole
// report with ErrNonFiniteResult.
func Analyze(data *Dataset, opts Options) ([]SellerReport, error) {
	if err := validate(data, opts); err != nil {
		return nil, err
	}

	stats := make([]*SellerStat, 0, len(data.Sellers))
	sellerIndex := make(map[string]*SellerStat, len(data.Sellers))
	for _, seller := range data.Sellers {
		stat := &SellerStat{
			SellerID:    seller.ID,
			Name:        seller.FirstName + " " + seller.LastName,
			TopProducts: NewQuantityCounter(),
		}
		stats = append(stats, stat)
		sellerIndex[seller.ID] = stat
	}

	productIndex := make(map[string]Product, len(data.Products))
	for _, p := range data.Products {
		productIndex[p.SKU] = p
	}

	for _, record := range data.PurchaseRecords {
		seller, ok := sellerIndex[record.SellerID]
		if !ok {
			continue
		}
		seller.SalesCount++
		seller.Revenue += record.TotalAmount

		for _, item := range record.Items {
			product, ok := productIndex[item.SKU]
			if !ok {
				return nil, fmt.Errorf("%w: sku %q in record of seller %q", ErrUnknownProduct, item.SKU, record.SellerID)
			}
			cost := product.PurchasePrice * item.Quantity
			revenue := opts.CalculateRevenue(item, product)
			seller.Profit += revenue - cost
			seller.TopProducts.Add(item.SKU, item.Quantity)
		}
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Profit > stats[j].Profit
	})

	total := len(stats)
	reports := make([]SellerReport, 0, total)
	for rank, stat := range stats {
		stat.Bonus = opts.CalculateBonus(rank, total, *stat)
		if !finite(stat.Revenue) || !finite(stat.Profit) || !finite(stat.Bonus) {
			return nil, fmt.Errorf("%w: seller %q", ErrNonFiniteResult, stat.SellerID)
		}
		reports = append(reports, SellerReport{
			SellerID:    stat.SellerID,
			Name:        stat.Name,
			Revenue:     round2(stat.Revenue),
			Profit:      round2(stat.Profit),
			SalesCount:  stat.SalesCount,
			TopProducts: stat.TopProducts.Top(TopProductsLimit),
			Bonus:       round2(stat.Bonus),
		})
	}
	return reports, nil
}

func validate(data *Dataset, opts Options) error {
	if data == nil || len(data.Sellers) == 0 {
		return ErrInvalidSellerData
	}
	if data.Products == nil || data.PurchaseRecords == nil {
		return ErrInvalidData
	}
	if opts.CalculateRevenue == nil || opts.CalculateBonus == nil {
		return ErrMissingCalculators
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// round2 leaves non-finite values untouched; decimal cannot represent them.
func round2(v float64) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
