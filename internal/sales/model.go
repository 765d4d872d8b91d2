package sales

// Seller is a member of the sales team.
type Seller struct {
	ID        string `json:"id" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Product is a catalog entry keyed by SKU.
type Product struct {
	SKU           string  `json:"sku" validate:"required"`
	PurchasePrice float64 `json:"purchase_price" validate:"gte=0"`
}

// LineItem is one product line of a purchase. Discount is a percentage in [0,100].
type LineItem struct {
	SKU       string  `json:"sku" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	SalePrice float64 `json:"sale_price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0,lte=100"`
}

// PurchaseRecord is a single receipt attributed to a seller.
type PurchaseRecord struct {
	SellerID    string     `json:"seller_id"`
	TotalAmount float64    `json:"total_amount"`
	Items       []LineItem `json:"items" validate:"dive"`
}

// Dataset groups the inputs of a report. A nil slice means the section is missing.
type Dataset struct {
	Sellers         []Seller         `json:"sellers" validate:"dive"`
	Products        []Product        `json:"products" validate:"dive"`
	PurchaseRecords []PurchaseRecord `json:"purchase_records" validate:"dive"`
}

// ProductQuantity is an entry of a seller's top products.
type ProductQuantity struct {
	SKU      string  `json:"sku"`
	Quantity float64 `json:"quantity"`
}

// SellerStat accumulates the figures of one seller while a report is built.
type SellerStat struct {
	SellerID    string
	Name        string
	Revenue     float64
	Profit      float64
	SalesCount  int
	TopProducts *QuantityCounter
	Bonus       float64
}

// SellerReport is the final, rounded line of a sales report.
type SellerReport struct {
	SellerID    string            `json:"seller_id"`
	Name        string            `json:"name"`
	Revenue     float64           `json:"revenue"`
	Profit      float64           `json:"profit"`
	SalesCount  int               `json:"sales_count"`
	TopProducts []ProductQuantity `json:"top_products"`
	Bonus       float64           `json:"bonus"`
}
