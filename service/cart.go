package service

import (
	"context"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/repository"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ProductCatalog is the read-only view of the catalog the cart depends on.
// Lookups are authoritative at mutation time; a product deleted afterwards
// leaves its line in place.
type ProductCatalog interface {
	Exists(ctx context.Context, productID string) (bool, error)
	GetProduct(ctx context.Context, productID string) (*model.Product, error)
}

type CartService struct {
	store   repository.CartStore
	catalog ProductCatalog
	log     *logrus.Logger
}

func NewCartService(store repository.CartStore, catalog ProductCatalog, log *logrus.Logger) *CartService {
	return &CartService{store: store, catalog: catalog, log: log}
}

// AddItem merges quantity into the user's line for the product, creating the
// cart on first use. The product must exist in the catalog.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int64) (*model.Cart, error) {
	return s.upsertLine(ctx, userID, productID, quantity, true)
}

// IncreaseQuantity merges quantity into an existing cart's line, inserting
// the line when missing. Unlike AddItem it neither consults the catalog nor
// creates a cart.
func (s *CartService) IncreaseQuantity(ctx context.Context, userID, productID string, quantity int64) (*model.Cart, error) {
	return s.upsertLine(ctx, userID, productID, quantity, false)
}

// upsertLine is the shared merge-or-insert path. withCatalogCheck selects the
// AddItem behavior: validate the product reference and create the cart
// lazily.
func (s *CartService) upsertLine(ctx context.Context, userID, productID string, quantity int64, withCatalogCheck bool) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	if withCatalogCheck {
		ok, err := s.catalog.Exists(ctx, productID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check product %s", productID)
		}
		if !ok {
			return nil, repository.ErrProductNotFound
		}
	}

	if err := s.store.UpsertLine(ctx, userID, productID, quantity, withCatalogCheck); err != nil {
		return nil, err
	}
	return s.store.GetByUser(ctx, userID)
}

// DecreaseQuantity subtracts quantity from the line; when the requested
// amount meets or exceeds the current one the line is removed entirely, so
// quantities never go negative.
func (s *CartService) DecreaseQuantity(ctx context.Context, userID, productID string, quantity int64) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := s.store.DecrementLine(ctx, userID, productID, quantity); err != nil {
		return nil, err
	}
	return s.store.GetByUser(ctx, userID)
}

// RemoveItem deletes the line unconditionally. A repeat call reports the
// line as missing and leaves the rest of the cart untouched.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*model.Cart, error) {
	if err := s.store.RemoveLine(ctx, userID, productID); err != nil {
		return nil, err
	}
	return s.store.GetByUser(ctx, userID)
}

// GetCart returns the cart with every line resolved against the catalog.
// Lines whose product has since been deleted keep their quantity and carry a
// nil product.
func (s *CartService) GetCart(ctx context.Context, userID string) (*model.CartView, error) {
	cart, err := s.store.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := make([]model.CartLineDetail, len(cart.Lines))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, line := range cart.Lines {
		index, value := i, line
		g.Go(func() error {
			product, err := s.catalog.GetProduct(groupCtx, value.ProductID)
			if err != nil && !errors.Is(err, repository.ErrProductNotFound) {
				return errors.Wrapf(err, "failed to resolve product %s", value.ProductID)
			}
			details[index] = model.CartLineDetail{
				ProductID: value.ProductID,
				Quantity:  value.Quantity,
				Product:   product,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.CartView{
		UserID:    cart.UserID,
		Lines:     details,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}, nil
}
