package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	mu       sync.RWMutex
	products map[string]*model.Product
}

func newStubCatalog(ids ...string) *stubCatalog {
	c := &stubCatalog{products: make(map[string]*model.Product)}
	for _, id := range ids {
		c.products[id] = &model.Product{ID: id, Name: "product " + id, Price: 9.99}
	}
	return c
}

func (c *stubCatalog) Exists(ctx context.Context, productID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.products[productID]
	return ok, nil
}

func (c *stubCatalog) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (c *stubCatalog) remove(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, productID)
}

func newTestCartService(catalog *stubCatalog) (*CartService, *repository.CartMemory) {
	store := repository.NewCartMemory()
	log := logrus.New()
	log.Out = io.Discard
	return NewCartService(store, catalog, log), store
}

func TestAddItemCreatesCartAndMergesQuantity(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(2), cart.Lines[0].Quantity)

	cart, err = svc.AddItem(ctx, "u1", "p1", 3)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(5), cart.Lines[0].Quantity)
}

func TestAddItemRepeatedSingles(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := svc.AddItem(ctx, "u1", "p1", 1)
		require.NoError(t, err)
	}

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(7), cart.Lines[0].Quantity)
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.AddItem(ctx, "u1", "p1", -4)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.DecreaseQuantity(ctx, "u1", "p1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItemUnknownProductLeavesCartUntouched(t *testing.T) {
	svc, store := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "missing", 1)
	assert.ErrorIs(t, err, repository.ErrProductNotFound)

	_, err = store.GetByUser(ctx, "u1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestIncreaseQuantityRequiresExistingCart(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))

	_, err := svc.IncreaseQuantity(context.Background(), "u1", "p1", 1)
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestIncreaseQuantityInsertsMissingLine(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	// No catalog check on this path, a stale client may still reference p2.
	cart, err := svc.IncreaseQuantity(ctx, "u1", "p2", 4)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, int64(4), cart.Line("p2").Quantity)
}

func TestDecreaseQuantityPartial(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 5)
	require.NoError(t, err)

	cart, err := svc.DecreaseQuantity(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(3), cart.Lines[0].Quantity)
}

func TestDecreaseQuantityFloorsAtZero(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)

	cart, err := svc.DecreaseQuantity(ctx, "u1", "p1", 10)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	// The emptied cart still exists.
	view, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", view.UserID)
	assert.Empty(t, view.Lines)
}

func TestDecreaseQuantityMissingLine(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1", "p2"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	_, err = svc.DecreaseQuantity(ctx, "u1", "p2", 1)
	assert.ErrorIs(t, err, repository.ErrLineNotFound)
}

func TestRemoveItem(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1", "p2"))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "p2", 1)
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "p2", cart.Lines[0].ProductID)

	// A repeat removal reports the line as missing, the other line survives.
	_, err = svc.RemoveItem(ctx, "u1", "p1")
	assert.ErrorIs(t, err, repository.ErrLineNotFound)

	view, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "p2", view.Lines[0].ProductID)
}

func TestGetCartUnknownUser(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog())

	_, err := svc.GetCart(context.Background(), "nobody")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestGetCartResolvesProducts(t *testing.T) {
	catalog := newStubCatalog("p1", "p2")
	svc, _ := newTestCartService(catalog)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, "u1", "p2", 2)
	require.NoError(t, err)

	// p2 is deleted from the catalog after it entered the cart.
	catalog.remove("p2")

	view, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)

	assert.NotNil(t, view.Lines[0].Product)
	assert.Equal(t, "product p1", view.Lines[0].Product.Name)

	assert.Nil(t, view.Lines[1].Product)
	assert.Equal(t, int64(2), view.Lines[1].Quantity)
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	svc, _ := newTestCartService(newStubCatalog("p1", "p2"))
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "u1", "p1", 1)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "u1", "p2", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	for _, line := range cart.Lines {
		assert.Equal(t, int64(n), line.Quantity, "product %s", line.ProductID)
	}
}
