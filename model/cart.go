package model

import "time"

// CartLine is one product entry inside a cart. Quantity is always positive;
// a line whose quantity would drop to zero is removed instead.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// Cart is the per-user aggregate of product lines. There is at most one line
// per product id.
type Cart struct {
	UserID    string     `json:"userId"`
	Lines     []CartLine `json:"products"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Line returns the line for productID, or nil.
func (c *Cart) Line(productID string) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// CartLineDetail is a cart line joined with its catalog entry. Product is nil
// when the product was deleted after it entered the cart.
type CartLineDetail struct {
	ProductID string   `json:"productId"`
	Quantity  int64    `json:"quantity"`
	Product   *Product `json:"product"`
}

// CartView is the denormalized read model returned by GetCart.
type CartView struct {
	UserID    string           `json:"userId"`
	Lines     []CartLineDetail `json:"products"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
