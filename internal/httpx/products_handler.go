package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/stats"
)

type CatalogService interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
	CreateProduct(ctx context.Context, in orders.CreateProductInput) (*orders.Product, error)
}

type StatsReader interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
}

type CreateProductRequest struct {
	Name  string   `json:"name" validate:"required,max=200"`
	Price *float64 `json:"price" validate:"required,gte=0"`
	Stock *int     `json:"stock" validate:"required,gte=0"`
}

type CatalogHandler struct {
	service  CatalogService
	stats    StatsReader
	validate *validator.Validate
}

func NewCatalogHandler(service CatalogService, stats StatsReader) *CatalogHandler {
	return &CatalogHandler{service: service, stats: stats, validate: newValidator()}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router, authn func(http.Handler) http.Handler) {
	router.Get("/api/products", h.handleListProducts)
	router.Group(func(r chi.Router) {
		r.Use(authn, RequireAdmin)
		r.Post("/api/products", h.handleCreateProduct)
		r.Get("/api/admin/stats", h.handleStats)
	})
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.service.ListProducts(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	p, err := h.service.CreateProduct(r.Context(), orders.CreateProductInput{
		Name:  req.Name,
		Price: *req.Price,
		Stock: *req.Stock,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	snap, err := h.stats.Snapshot(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}
