package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
)

// CartMemory is the in-process fallback used in tests and when Redis is
// unreachable. A mutex per user serializes the load-mutate-store sequence,
// which gives the same at-most-one-writer-per-cart guarantee as the Redis
// scripts. Reads copy the latest committed state without the user lock.
type CartMemory struct {
	mu    sync.RWMutex // guards carts
	locks sync.Map     // userID -> *sync.Mutex
	carts map[string]*model.Cart
}

func NewCartMemory() *CartMemory {
	return &CartMemory{carts: make(map[string]*model.Cart)}
}

func (s *CartMemory) userLock(userID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *CartMemory) GetByUser(ctx context.Context, userID string) (*model.Cart, error) {
	s.mu.RLock()
	cart, ok := s.carts[userID]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrCartNotFound
	}
	out := &model.Cart{
		UserID:    cart.UserID,
		Lines:     append([]model.CartLine(nil), cart.Lines...),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	s.mu.RUnlock()
	sort.Slice(out.Lines, func(i, j int) bool { return out.Lines[i].ProductID < out.Lines[j].ProductID })
	return out, nil
}

func (s *CartMemory) UpsertLine(ctx context.Context, userID, productID string, quantity int64, createCart bool) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		if !createCart {
			return ErrCartNotFound
		}
		cart = &model.Cart{UserID: userID, CreatedAt: now}
		s.carts[userID] = cart
	}
	if line := cart.Line(productID); line != nil {
		line.Quantity += quantity
	} else {
		cart.Lines = append(cart.Lines, model.CartLine{ProductID: productID, Quantity: quantity})
	}
	cart.UpdatedAt = now
	return nil
}

func (s *CartMemory) DecrementLine(ctx context.Context, userID, productID string, quantity int64) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return ErrCartNotFound
	}
	line := cart.Line(productID)
	if line == nil {
		return ErrLineNotFound
	}
	if quantity >= line.Quantity {
		s.deleteLine(cart, productID)
	} else {
		line.Quantity -= quantity
	}
	cart.UpdatedAt = time.Now()
	return nil
}

func (s *CartMemory) RemoveLine(ctx context.Context, userID, productID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return ErrCartNotFound
	}
	if cart.Line(productID) == nil {
		return ErrLineNotFound
	}
	s.deleteLine(cart, productID)
	cart.UpdatedAt = time.Now()
	return nil
}

func (s *CartMemory) deleteLine(cart *model.Cart, productID string) {
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == productID {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			return
		}
	}
}
