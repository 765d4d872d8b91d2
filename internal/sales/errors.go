package sales

import "errors"

var (
	// ErrInvalidSellerData is returned when the dataset or its sellers are missing or empty.
	ErrInvalidSellerData = errors.New("invalid seller data")
	// ErrInvalidData is returned when products or purchase records are missing.
	ErrInvalidData = errors.New("invalid data")
	// ErrMissingCalculators is returned when a revenue or bonus strategy is not provided.
	ErrMissingCalculators = errors.New("missing calculation functions")
	// ErrUnknownProduct is returned when a line item references a SKU absent from the catalog.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrUnknownStrategy is returned when a strategy name is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrNonFiniteResult is returned when a revenue, profit or bonus overflows or is not a number.
	ErrNonFiniteResult = errors.New("non-finite result")
)
