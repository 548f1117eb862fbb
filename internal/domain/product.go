package domain

import "time"

type ProductStatus string

const (
	ProductStatusClosed     ProductStatus = "CLOSED"
	ProductStatusOpen       ProductStatus = "OPEN"
	ProductStatusOutOfStock ProductStatus = "OUT_OF_STOCK"
)

type Product struct {
	ID         string        `json:"id"`
	BrandID    string        `json:"brand_id"`
	Name       string        `json:"name"`
	Price      int64         `json:"price"`
	Stock      int           `json:"stock"`
	Status     ProductStatus `json:"status"`
	ReleasedAt *time.Time    `json:"released_at,omitempty"`
}

// Sellable reports whether stock may be deducted from the product.
func (p *Product) Sellable() bool {
	return p.Status == ProductStatusOpen
}
