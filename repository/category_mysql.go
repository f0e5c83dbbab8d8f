package repository

import (
	"context"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type CategoryRepository interface {
	List(ctx context.Context) ([]*model.Category, error)
	Get(ctx context.Context, id string) (*model.Category, error)
	GetByName(ctx context.Context, name string) (*model.Category, error)
	Create(ctx context.Context, category *model.Category) error
	Update(ctx context.Context, category *model.Category) error
	Delete(ctx context.Context, id string) error
}

type categoryMysqlRepo struct {
	db *gorm.DB
}

func NewCategoryMysqlRepo(db *gorm.DB) CategoryRepository {
	return &categoryMysqlRepo{db: db}
}

func (r *categoryMysqlRepo) List(ctx context.Context) ([]*model.Category, error) {
	var categories []*model.Category
	err := r.db.WithContext(ctx).
		Preload("Products").
		Order("created_at DESC").
		Find(&categories).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	return categories, nil
}

func (r *categoryMysqlRepo) Get(ctx context.Context, id string) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Preload("Products").Where("id = ?", id).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get category %s", id)
	}
	return &category, nil
}

func (r *categoryMysqlRepo) GetByName(ctx context.Context, name string) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get category by name %q", name)
	}
	return &category, nil
}

func (r *categoryMysqlRepo) Create(ctx context.Context, category *model.Category) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(category).Error, "failed to create category")
}

func (r *categoryMysqlRepo) Update(ctx context.Context, category *model.Category) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(category).Error, "failed to update category %s", category.ID)
}

func (r *categoryMysqlRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Category{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to delete category %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrCategoryNotFound
	}
	return nil
}
