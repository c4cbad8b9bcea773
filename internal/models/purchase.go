package models

import "time"

// ProductSnapshot captures the sustainability fields of a product at the
// moment it was purchased. It is a frozen copy, not a live reference, so
// later re-grading of the product never rewrites past purchases.
type ProductSnapshot struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Grade     string  `json:"grade"`
	Score     float64 `json:"score"`
	Category  string  `json:"category"`
}

// PurchaseRecord is one line item of a completed order.
type PurchaseRecord struct {
	Product      ProductSnapshot `json:"product"`
	Quantity     int             `json:"quantity"`
	PurchaseDate time.Time       `json:"purchaseDate"`
}
