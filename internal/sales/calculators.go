package sales

// RevenueFunc computes the net revenue of a single line item.
type RevenueFunc func(item LineItem, product Product) float64

// BonusFunc computes a seller's bonus from its zero-based profit rank among total sellers.
type BonusFunc func(rank, total int, seller SellerStat) float64

// SimpleRevenue applies the line discount to sale price times quantity.
// The product is not used.
func SimpleRevenue(item LineItem, _ Product) float64 {
	discountRate := 1 - item.Discount/100
	return item.SalePrice * item.Quantity * discountRate
}

// BonusByProfit pays a share of profit depending on rank.
// The first rule wins, so a lone seller is paid as the top performer.
func BonusByProfit(rank, total int, seller SellerStat) float64 {
	switch {
	case rank == 0:
		return seller.Profit * 0.15
	case rank == 1 || rank == 2:
		return seller.Profit * 0.10
	case rank == total-1:
		return 0
	default:
		return seller.Profit * 0.05
	}
}
