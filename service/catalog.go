package service

import (
	"context"
	"math"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/repository"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CatalogService owns products and categories. It also implements the
// ProductCatalog interface the cart validates against.
type CatalogService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	log        *logrus.Logger
}

func NewCatalogService(products repository.ProductRepository, categories repository.CategoryRepository, log *logrus.Logger) *CatalogService {
	return &CatalogService{products: products, categories: categories, log: log}
}

// ProductPage is the paginated listing response.
type ProductPage struct {
	Products    []*model.Product `json:"product"`
	CurrentPage int              `json:"currentPage"`
	TotalPages  int              `json:"totalPages"`
	Total       int64            `json:"total"`
}

// ProductUpdate carries the optional fields of a partial update; nil fields
// are left unchanged.
type ProductUpdate struct {
	Name        *string
	Price       *float64
	Quantity    *int64
	CategoryID  *string
	Description *string
	Image       *string
}

func (s *CatalogService) Exists(ctx context.Context, productID string) (bool, error) {
	_, err := s.products.Get(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*model.Product, error) {
	return s.products.Get(ctx, productID)
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return s.products.List(ctx)
}

func (s *CatalogService) PaginateProducts(ctx context.Context, page, limit int) (*ProductPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	products, total, err := s.products.ListPage(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return &ProductPage{
		Products:    products,
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		Total:       total,
	}, nil
}

func (s *CatalogService) SearchProducts(ctx context.Context, query string) ([]*model.Product, error) {
	return s.products.Search(ctx, query)
}

func (s *CatalogService) CreateProduct(ctx context.Context, product *model.Product) (*model.Product, error) {
	if _, err := s.products.GetByName(ctx, product.Name); err == nil {
		return nil, ErrNameTaken
	} else if !errors.Is(err, repository.ErrProductNotFound) {
		return nil, err
	}

	if _, err := s.categories.Get(ctx, product.CategoryID); err != nil {
		return nil, err
	}

	product.ID = uuid.New().String()
	if product.Image == "" {
		product.Image = model.DefaultProductImage
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return s.products.Get(ctx, product.ID)
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, update ProductUpdate) (*model.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		product.Name = *update.Name
	}
	if update.Price != nil {
		product.Price = *update.Price
	}
	if update.Quantity != nil {
		product.Quantity = *update.Quantity
	}
	if update.CategoryID != nil {
		if _, err := s.categories.Get(ctx, *update.CategoryID); err != nil {
			return nil, err
		}
		product.CategoryID = *update.CategoryID
	}
	if update.Description != nil {
		product.Description = *update.Description
	}
	if update.Image != nil {
		product.Image = *update.Image
	}

	product.Category = nil // avoid writing the joined association back
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return s.products.Get(ctx, id)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return s.categories.List(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return s.categories.Get(ctx, id)
}

func (s *CatalogService) CreateCategory(ctx context.Context, category *model.Category) (*model.Category, error) {
	if _, err := s.categories.GetByName(ctx, category.Name); err == nil {
		return nil, ErrNameTaken
	} else if !errors.Is(err, repository.ErrCategoryNotFound) {
		return nil, err
	}

	category.ID = uuid.New().String()
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id string, name, description *string) (*model.Category, error) {
	category, err := s.categories.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		category.Name = *name
	}
	if description != nil {
		category.Description = *description
	}
	category.Products = nil
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return s.categories.Get(ctx, id)
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	return s.categories.Delete(ctx, id)
}
