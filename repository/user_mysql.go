package repository

import (
	"context"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type UserRepository interface {
	List(ctx context.Context) ([]*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
}

type userMysqlRepo struct {
	db *gorm.DB
}

func NewUserMysqlRepo(db *gorm.DB) UserRepository {
	return &userMysqlRepo{db: db}
}

func (r *userMysqlRepo) List(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return users, nil
}

func (r *userMysqlRepo) Get(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user %s", id)
	}
	return &user, nil
}

func (r *userMysqlRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user by email %q", email)
	}
	return &user, nil
}

func (r *userMysqlRepo) Create(ctx context.Context, user *model.User) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(user).Error, "failed to create user")
}

func (r *userMysqlRepo) Update(ctx context.Context, user *model.User) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(user).Error, "failed to update user %s", user.ID)
}

func (r *userMysqlRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to delete user %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
