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
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/NewSnooker/simple-ecommerce-back-end/media"
	"github.com/NewSnooker/simple-ecommerce-back-end/model"
	"github.com/NewSnooker/simple-ecommerce-back-end/repository"
	"github.com/NewSnooker/simple-ecommerce-back-end/service"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxUploadSize = 10 << 20 // 10 MiB

var (
	errForbidden        = errors.New("forbidden")
	errMissingUserID    = errors.New("userId not specified")
	errMissingProductID = errors.New("productId not specified")
	errUploadsDisabled  = errors.New("image uploads are not configured")
)

type apiServer struct {
	cartSvc    *service.CartService
	catalogSvc *service.CatalogService
	userSvc    *service.UserService
	uploader   media.Uploader // nil when no bucket is configured
	log        *logrus.Logger
}

func (s *apiServer) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	r.HandleFunc("/carts", s.addToCartHandler).Methods(http.MethodPost)
	r.HandleFunc("/carts/{userId}/increase", s.increaseQuantityHandler).Methods(http.MethodPatch)
	r.HandleFunc("/carts/{userId}/decrease", s.decreaseQuantityHandler).Methods(http.MethodPatch)
	r.HandleFunc("/carts/{userId}/products/{productId}", s.removeFromCartHandler).Methods(http.MethodDelete)
	r.HandleFunc("/carts/{userId}", s.getCartHandler).Methods(http.MethodGet)

	r.HandleFunc("/products", s.listProductsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/pagination", s.productPaginationHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/search", s.searchProductsHandler).Methods(http.MethodGet)
	r.HandleFunc("/products", s.requireAdmin(s.createProductHandler)).Methods(http.MethodPost)
	r.HandleFunc("/products/{id}", s.getProductHandler).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", s.requireAdmin(s.updateProductHandler)).Methods(http.MethodPut)
	r.HandleFunc("/products/{id}", s.requireAdmin(s.deleteProductHandler)).Methods(http.MethodDelete)

	r.HandleFunc("/categories", s.listCategoriesHandler).Methods(http.MethodGet)
	r.HandleFunc("/categories", s.requireAdmin(s.createCategoryHandler)).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", s.getCategoryHandler).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}", s.requireAdmin(s.updateCategoryHandler)).Methods(http.MethodPut)
	r.HandleFunc("/categories/{id}", s.requireAdmin(s.deleteCategoryHandler)).Methods(http.MethodDelete)

	r.HandleFunc("/users/register", s.registerHandler).Methods(http.MethodPost)
	r.HandleFunc("/users/login", s.loginHandler).Methods(http.MethodPost)
	r.HandleFunc("/users/refresh", s.refreshTokenHandler).Methods(http.MethodPost)
	r.HandleFunc("/users", s.requireAdmin(s.listUsersHandler)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.requireAuth(s.getUserHandler)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", s.requireAuth(s.updateUserHandler)).Methods(http.MethodPut)
	r.HandleFunc("/users/{id}", s.requireAdmin(s.deleteUserHandler)).Methods(http.MethodDelete)

	return r
}

func (s *apiServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- cart ---

type addToCartRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type cartLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (s *apiServer) addToCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		renderHTTPError(log, w, errMissingUserID, http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		renderHTTPError(log, w, errMissingProductID, http.StatusBadRequest)
		return
	}

	cart, err := s.cartSvc.AddItem(r.Context(), req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not add item to cart"))
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (s *apiServer) increaseQuantityHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	userID := mux.Vars(r)["userId"]

	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		renderHTTPError(log, w, errMissingProductID, http.StatusBadRequest)
		return
	}

	cart, err := s.cartSvc.IncreaseQuantity(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not increase quantity"))
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (s *apiServer) decreaseQuantityHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	userID := mux.Vars(r)["userId"]

	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		renderHTTPError(log, w, errMissingProductID, http.StatusBadRequest)
		return
	}

	cart, err := s.cartSvc.DecreaseQuantity(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not decrease quantity"))
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (s *apiServer) removeFromCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	vars := mux.Vars(r)

	cart, err := s.cartSvc.RemoveItem(r.Context(), vars["userId"], vars["productId"])
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not remove item from cart"))
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (s *apiServer) getCartHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	userID := mux.Vars(r)["userId"]
	if userID == "" {
		renderHTTPError(log, w, errMissingUserID, http.StatusBadRequest)
		return
	}

	cart, err := s.cartSvc.GetCart(r.Context(), userID)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not retrieve cart"))
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// --- products ---

func (s *apiServer) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalogSvc.ListProducts(r.Context())
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve products"))
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *apiServer) productPaginationHandler(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := s.catalogSvc.PaginateProducts(r.Context(), page, limit)
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve product page"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) searchProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalogSvc.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not search products"))
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *apiServer) getProductHandler(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalogSvc.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve product"))
		return
	}
	writeJSON(w, http.StatusOK, product)
}

type productRequest struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    int64   `json:"quantity"`
	CategoryID  string  `json:"categoryId"`
	Description string  `json:"description"`
}

func (s *apiServer) createProductHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req productRequest
	var imageURL string

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "invalid multipart form"), http.StatusBadRequest)
			return
		}
		req.Name = r.FormValue("name")
		req.Price, _ = strconv.ParseFloat(r.FormValue("price"), 64)
		req.Quantity, _ = strconv.ParseInt(r.FormValue("quantity"), 10, 64)
		req.CategoryID = r.FormValue("categoryId")
		req.Description = r.FormValue("description")

		url, err := s.formImageURL(r)
		if err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "could not upload image"), http.StatusInternalServerError)
			return
		}
		imageURL = url
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.CategoryID == "" {
		renderHTTPError(log, w, errors.New("name and categoryId are required"), http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := s.catalogSvc.CreateProduct(r.Context(), &model.Product{
		Name:        req.Name,
		Price:       req.Price,
		Quantity:    req.Quantity,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		Image:       imageURL,
	})
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not create product"))
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *apiServer) updateProductHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	id := mux.Vars(r)["id"]

	var update service.ProductUpdate

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "invalid multipart form"), http.StatusBadRequest)
			return
		}
		if v := r.FormValue("name"); v != "" {
			update.Name = &v
		}
		if v := r.FormValue("price"); v != "" {
			if price, err := strconv.ParseFloat(v, 64); err == nil {
				update.Price = &price
			}
		}
		if v := r.FormValue("quantity"); v != "" {
			if qty, err := strconv.ParseInt(v, 10, 64); err == nil {
				update.Quantity = &qty
			}
		}
		if v := r.FormValue("categoryId"); v != "" {
			update.CategoryID = &v
		}
		if v := r.FormValue("description"); v != "" {
			update.Description = &v
		}

		url, err := s.formImageURL(r)
		if err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "could not upload image"), http.StatusInternalServerError)
			return
		}
		if url != "" {
			update.Image = &url
		}
	} else {
		var req struct {
			Name        *string  `json:"name"`
			Price       *float64 `json:"price"`
			Quantity    *int64   `json:"quantity"`
			CategoryID  *string  `json:"categoryId"`
			Description *string  `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}
		update = service.ProductUpdate{
			Name:        req.Name,
			Price:       req.Price,
			Quantity:    req.Quantity,
			CategoryID:  req.CategoryID,
			Description: req.Description,
		}
	}

	product, err := s.catalogSvc.UpdateProduct(r.Context(), id, update)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not update product"))
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *apiServer) deleteProductHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	if err := s.catalogSvc.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not delete product"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// --- categories ---

func (s *apiServer) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalogSvc.ListCategories(r.Context())
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve categories"))
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *apiServer) getCategoryHandler(w http.ResponseWriter, r *http.Request) {
	category, err := s.catalogSvc.GetCategory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve category"))
		return
	}
	writeJSON(w, http.StatusOK, category)
}

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *apiServer) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		renderHTTPError(log, w, errors.New("name is required"), http.StatusBadRequest)
		return
	}

	category, err := s.catalogSvc.CreateCategory(r.Context(), &model.Category{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not create category"))
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *apiServer) updateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	category, err := s.catalogSvc.UpdateCategory(r.Context(), mux.Vars(r)["id"], req.Name, req.Description)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not update category"))
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *apiServer) deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.catalogSvc.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not delete category"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "category deleted"})
}

// --- users ---

func (s *apiServer) registerHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var username, email, password, imageURL string

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "invalid multipart form"), http.StatusBadRequest)
			return
		}
		username = r.FormValue("username")
		email = r.FormValue("email")
		password = r.FormValue("password")

		url, err := s.formImageURL(r)
		if err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "could not upload image"), http.StatusInternalServerError)
			return
		}
		imageURL = url
	} else {
		var req struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}
		username, email, password = req.Username, req.Email, req.Password
	}

	if email == "" || password == "" {
		renderHTTPError(log, w, errors.New("email and password are required"), http.StatusBadRequest)
		return
	}

	user, err := s.userSvc.Register(r.Context(), username, email, password, imageURL)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not register user"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "registration successful",
		"user":    user,
	})
}

func (s *apiServer) loginHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	result, err := s.userSvc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not log in"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	token, exp, err := s.userSvc.RefreshToken(r.Context(), req.Token)
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not refresh token"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"expire_in":    exp,
		"token_type":   "Bearer",
	})
}

func (s *apiServer) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.userSvc.ListUsers(r.Context())
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve users"))
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *apiServer) getUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.userSvc.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not retrieve user"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)
	id := mux.Vars(r)["id"]

	// Members may only update themselves; admins may update anyone.
	claims := tokenClaims(r)
	if claims == nil || (claims.Role != model.RoleAdmin && claims.UserID != id) {
		renderHTTPError(log, w, errForbidden, http.StatusForbidden)
		return
	}

	var req struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
		Role     *string `json:"role"`
		Password *string `json:"password"`
		Image    *string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderHTTPError(log, w, errors.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Role != nil && claims.Role != model.RoleAdmin {
		renderHTTPError(log, w, errForbidden, http.StatusForbidden)
		return
	}

	user, err := s.userSvc.UpdateUser(r.Context(), id, service.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		Password: req.Password,
		Image:    req.Image,
	})
	if err != nil {
		renderServiceError(log, w, errors.Wrap(err, "could not update user"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.userSvc.DeleteUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		renderServiceError(requestLogger(r), w, errors.Wrap(err, "could not delete user"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// --- helpers ---

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func (s *apiServer) formImageURL(r *http.Request) (string, error) {
	file, _, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	if s.uploader == nil {
		return "", errUploadsDisabled
	}
	return s.uploader.SaveImage(r.Context(), file)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}

func renderHTTPError(log logrus.FieldLogger, w http.ResponseWriter, err error, code int) {
	log.WithField("error", err).Error("request error")
	writeJSON(w, code, map[string]string{"message": err.Error()})
}

// renderServiceError maps each error kind to its own status code instead of
// reporting every failure as a 500.
func renderServiceError(log logrus.FieldLogger, w http.ResponseWriter, err error) {
	renderHTTPError(log, w, err, statusForError(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrLineNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrNameTaken),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
