package service

import (
	"context"
	"time"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 72 * time.Hour

type UserService struct {
	repo      repository.UserRepository
	jwtSecret []byte
	log       *logrus.Logger
}

func NewUserService(repo repository.UserRepository, jwtSecret []byte, log *logrus.Logger) *UserService {
	return &UserService{repo: repo, jwtSecret: jwtSecret, log: log}
}

// LoginResult is the token envelope returned on a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expire_in"`
	TokenType   string `json:"token_type"`
}

// TokenClaims is the verified identity extracted from a bearer token.
type TokenClaims struct {
	UserID   string
	Role     string
	Email    string
	Username string
}

// UserUpdate carries optional fields of a partial user update.
type UserUpdate struct {
	Username *string
	Email    *string
	Role     *string
	Password *string
	Image    *string
}

func (s *UserService) Register(ctx context.Context, username, email, password, imageURL string) (*model.User, error) {
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	user := &model.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    email,
		Password: string(hashedPwd),
		Role:     model.RoleMember,
		Image:    imageURL,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	exp := time.Now().Add(tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       user.ID,
		"role":     user.Role,
		"email":    user.Email,
		"username": user.Username,
		"exp":      exp.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign token")
	}

	return &LoginResult{
		AccessToken: tokenString,
		ExpiresAt:   exp.Unix(),
		TokenType:   "Bearer",
	}, nil
}

func (s *UserService) VerifyToken(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	out := &TokenClaims{}
	if v, ok := claims["id"].(string); ok {
		out.UserID = v
	}
	if v, ok := claims["role"].(string); ok {
		out.Role = v
	}
	if v, ok := claims["email"].(string); ok {
		out.Email = v
	}
	if v, ok := claims["username"].(string); ok {
		out.Username = v
	}
	if out.UserID == "" {
		return nil, ErrInvalidToken
	}
	return out, nil
}

func (s *UserService) RefreshToken(ctx context.Context, tokenStr string) (string, int64, error) {
	claims, err := s.VerifyToken(ctx, tokenStr)
	if err != nil {
		return "", 0, err
	}

	exp := time.Now().Add(tokenTTL)
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       claims.UserID,
		"role":     claims.Role,
		"email":    claims.Email,
		"username": claims.Username,
		"exp":      exp.Unix(),
	})

	tokenString, err := newToken.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to sign refreshed token")
	}
	return tokenString, exp.Unix(), nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, id string, update UserUpdate) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.Password != nil {
		hashedPwd, err := bcrypt.GenerateFromPassword([]byte(*update.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrap(err, "failed to hash password")
		}
		user.Password = string(hashedPwd)
	}
	if update.Image != nil {
		user.Image = *update.Image
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
