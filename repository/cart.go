package repository

import (
	"context"
	"errors"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
)

// Storage-level sentinels. Callers compare with errors.Is.
var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrLineNotFound     = errors.New("cart line not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrUserNotFound     = errors.New("user not found")
)

// CartStore persists per-user carts. Every mutator is atomic with respect to
// concurrent calls for the same user, so two in-flight mutations can never
// lose each other's update. Reads return the latest committed state without
// taking any lock.
type CartStore interface {
	GetByUser(ctx context.Context, userID string) (*model.Cart, error)

	// UpsertLine adds quantity to the product's line, creating the line when
	// absent. When createCart is true a missing cart is created first;
	// otherwise ErrCartNotFound is returned.
	UpsertLine(ctx context.Context, userID, productID string, quantity int64, createCart bool) error

	// DecrementLine subtracts quantity from the line, deleting it when the
	// requested amount meets or exceeds the current one. Quantities never go
	// negative.
	DecrementLine(ctx context.Context, userID, productID string, quantity int64) error

	// RemoveLine deletes the line unconditionally. The cart itself survives,
	// even when its last line is removed.
	RemoveLine(ctx context.Context, userID, productID string) error
}
