package repository

import (
	"context"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ProductRepository interface {
	List(ctx context.Context) ([]*model.Product, error)
	ListPage(ctx context.Context, page, limit int) ([]*model.Product, int64, error)
	Get(ctx context.Context, id string) (*model.Product, error)
	GetByName(ctx context.Context, name string) (*model.Product, error)
	Search(ctx context.Context, query string) ([]*model.Product, error)
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id string) error
}

type productMysqlRepo struct {
	db *gorm.DB
}

func NewProductMysqlRepo(db *gorm.DB) ProductRepository {
	return &productMysqlRepo{db: db}
}

func (r *productMysqlRepo) List(ctx context.Context) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Order("created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	return products, nil
}

func (r *productMysqlRepo) ListPage(ctx context.Context, page, limit int) ([]*model.Product, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count products")
	}

	var products []*model.Product
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list product page")
	}
	return products, total, nil
}

func (r *productMysqlRepo) Get(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Preload("Category").Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get product %s", id)
	}
	return &product, nil
}

func (r *productMysqlRepo) GetByName(ctx context.Context, name string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get product by name %q", name)
	}
	return &product, nil
}

func (r *productMysqlRepo) Search(ctx context.Context, query string) ([]*model.Product, error) {
	var products []*model.Product
	likeQuery := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("name LIKE ? OR description LIKE ?", likeQuery, likeQuery).
		Find(&products).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search products for %q", query)
	}
	return products, nil
}

func (r *productMysqlRepo) Create(ctx context.Context, product *model.Product) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(product).Error, "failed to create product")
}

func (r *productMysqlRepo) Update(ctx context.Context, product *model.Product) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(product).Error, "failed to update product %s", product.ID)
}

func (r *productMysqlRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Product{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to delete product %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}
