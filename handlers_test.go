// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/repository"
	"github.com/NewSnooker/simple-ecommerce-back-end/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memProductRepo struct {
	products map[string]*model.Product
}

func (r *memProductRepo) List(ctx context.Context) ([]*model.Product, error) {
	out := make([]*model.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memProductRepo) ListPage(ctx context.Context, page, limit int) ([]*model.Product, int64, error) {
	all, _ := r.List(ctx)
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r *memProductRepo) Get(ctx context.Context, id string) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (r *memProductRepo) GetByName(ctx context.Context, name string) (*model.Product, error) {
	for _, p := range r.products {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (r *memProductRepo) Search(ctx context.Context, query string) ([]*model.Product, error) {
	var out []*model.Product
	for _, p := range r.products {
		if strings.Contains(p.Name, query) || strings.Contains(p.Description, query) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memProductRepo) Create(ctx context.Context, p *model.Product) error {
	r.products[p.ID] = p
	return nil
}

func (r *memProductRepo) Update(ctx context.Context, p *model.Product) error {
	r.products[p.ID] = p
	return nil
}

func (r *memProductRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

type memCategoryRepo struct {
	categories map[string]*model.Category
}

func (r *memCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	out := make([]*model.Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	return out, nil
}

func (r *memCategoryRepo) Get(ctx context.Context, id string) (*model.Category, error) {
	c, ok := r.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return c, nil
}

func (r *memCategoryRepo) GetByName(ctx context.Context, name string) (*model.Category, error) {
	for _, c := range r.categories {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, repository.ErrCategoryNotFound
}

func (r *memCategoryRepo) Create(ctx context.Context, c *model.Category) error {
	r.categories[c.ID] = c
	return nil
}

func (r *memCategoryRepo) Update(ctx context.Context, c *model.Category) error {
	r.categories[c.ID] = c
	return nil
}

func (r *memCategoryRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	delete(r.categories, id)
	return nil
}

type memUserRepo struct {
	users map[string]*model.User
}

func (r *memUserRepo) List(ctx context.Context) ([]*model.User, error) {
	out := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memUserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) Create(ctx context.Context, u *model.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) Update(ctx context.Context, u *model.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) Delete(ctx context.Context, id string) error {
	delete(r.users, id)
	return nil
}

func newTestServer(t *testing.T) (*apiServer, *memProductRepo, *memUserRepo) {
	t.Helper()

	testLog := logrus.New()
	testLog.Out = io.Discard

	productRepo := &memProductRepo{products: map[string]*model.Product{
		"p1": {ID: "p1", Name: "keyboard", Price: 49.9, CategoryID: "c1"},
		"p2": {ID: "p2", Name: "mouse", Price: 19.9, CategoryID: "c1"},
	}}
	categoryRepo := &memCategoryRepo{categories: map[string]*model.Category{
		"c1": {ID: "c1", Name: "peripherals"},
	}}
	userRepo := &memUserRepo{users: make(map[string]*model.User)}

	catalogSvc := service.NewCatalogService(productRepo, categoryRepo, testLog)
	return &apiServer{
		cartSvc:    service.NewCartService(repository.NewCartMemory(), catalogSvc, testLog),
		catalogSvc: catalogSvc,
		userSvc:    service.NewUserService(userRepo, []byte("test-secret"), testLog),
		log:        testLog,
	}, productRepo, userRepo
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestAddToCartEndpoint(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPost, "/carts",
		addToCartRequest{UserID: "u1", ProductID: "p1", Quantity: 2}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	products := body["products"].([]interface{})
	require.Len(t, products, 1)
	line := products[0].(map[string]interface{})
	assert.Equal(t, "p1", line["productId"])
	assert.Equal(t, float64(2), line["quantity"])
}

func TestAddToCartValidation(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPost, "/carts",
		addToCartRequest{ProductID: "p1", Quantity: 1}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/carts",
		addToCartRequest{UserID: "u1", ProductID: "p1", Quantity: 0}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/carts",
		addToCartRequest{UserID: "u1", ProductID: "ghost", Quantity: 1}, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, decodeBody(t, rr), "message")
}

func TestIncreaseQuantityWithoutCart(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPatch, "/carts/u1/increase",
		cartLineRequest{ProductID: "p1", Quantity: 1}, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEmptiedCartStaysRetrievable(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPost, "/carts",
		addToCartRequest{UserID: "u1", ProductID: "p1", Quantity: 2}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPatch, "/carts/u1/decrease",
		cartLineRequest{ProductID: "p1", Quantity: 5}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/carts/u1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Empty(t, body["products"])
}

func TestGetCartUnknownUserEndpoint(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodGet, "/carts/nobody", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRemoveFromCartEndpoint(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPost, "/carts",
		addToCartRequest{UserID: "u1", ProductID: "p1", Quantity: 1}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/carts/u1/products/p1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/carts/u1/products/p1", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListAndGetProducts(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodGet, "/products", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var products []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &products))
	assert.Len(t, products, 2)

	rr = doJSON(t, router, http.MethodGet, "/products/p1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/products/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProductPagination(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodGet, "/products/pagination?page=1&limit=1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["currentPage"])
	assert.Equal(t, float64(2), body["totalPages"])
	assert.Equal(t, float64(2), body["total"])
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc, _, userRepo := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPost, "/products",
		productRequest{Name: "hub", CategoryID: "c1", Price: 9.9}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	memberToken := loginAs(t, router, userRepo, "member@example.com", model.RoleMember)
	rr = doJSON(t, router, http.MethodPost, "/products",
		productRequest{Name: "hub", CategoryID: "c1", Price: 9.9}, memberToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	adminToken := loginAs(t, router, userRepo, "admin@example.com", model.RoleAdmin)
	rr = doJSON(t, router, http.MethodPost, "/products",
		productRequest{Name: "hub", CategoryID: "c1", Price: 9.9}, adminToken)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "hub", body["name"])
	assert.Equal(t, model.DefaultProductImage, body["image"])
}

func TestCreateProductDuplicateName(t *testing.T) {
	svc, _, userRepo := newTestServer(t)
	router := svc.routes()
	adminToken := loginAs(t, router, userRepo, "admin@example.com", model.RoleAdmin)

	rr := doJSON(t, router, http.MethodPost, "/products",
		productRequest{Name: "keyboard", CategoryID: "c1"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegisterAndLoginEndpoints(t *testing.T) {
	svc, _, _ := newTestServer(t)
	router := svc.routes()

	rr := doJSON(t, router, http.MethodPost, "/users/register",
		map[string]string{"username": "alice", "email": "alice@example.com", "password": "s3cret"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/users/login",
		map[string]string{"email": "alice@example.com", "password": "s3cret"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.NotEmpty(t, body["access_token"])
	assert.Equal(t, "Bearer", body["token_type"])

	rr = doJSON(t, router, http.MethodPost, "/users/login",
		map[string]string{"email": "alice@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{repository.ErrCartNotFound, http.StatusNotFound},
		{repository.ErrLineNotFound, http.StatusNotFound},
		{repository.ErrProductNotFound, http.StatusNotFound},
		{repository.ErrUserNotFound, http.StatusNotFound},
		{service.ErrInvalidQuantity, http.StatusBadRequest},
		{service.ErrNameTaken, http.StatusBadRequest},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusForError(tc.err), "error %v", tc.err)
	}
}

// loginAs registers a fresh user, forces its role in the repo and returns a
// bearer token for it.
func loginAs(t *testing.T, router http.Handler, userRepo *memUserRepo, email, role string) string {
	t.Helper()

	rr := doJSON(t, router, http.MethodPost, "/users/register",
		map[string]string{"username": email, "email": email, "password": "s3cret"}, "")
	require.Equal(t, http.StatusOK, rr.Code)

	user, err := userRepo.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	user.Role = role

	rr = doJSON(t, router, http.MethodPost, "/users/login",
		map[string]string{"email": email, "password": "s3cret"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	return decodeBody(t, rr)["access_token"].(string)
}
