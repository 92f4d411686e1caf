package domain

// Product is a canonical catalog record.
type Product struct {
	ProductID     string  `json:"product_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Brand         string  `json:"brand"`
	UnitPrice     float64 `json:"unit_price"`
	StockQuantity int     `json:"stock_quantity"`
}

// InStock reports whether the product can be sold right now.
func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// Ref returns the lightweight reference kept on sessions.
func (p *Product) Ref() ProductRef {
	return ProductRef{
		ProductID: p.ProductID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
	}
}
