package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/storefront-orders/internal/auth"
	"github.com/ariefcatur/storefront-orders/internal/orders"
	"github.com/ariefcatur/storefront-orders/internal/redisx"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
	defaultOrderTimeout  = 10 * time.Second
)

type OrderService interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderInput) (*orders.Order, error)
	OrderByID(ctx context.Context, orderID string) (*orders.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]orders.Order, error)
	AllOrders(ctx context.Context) ([]orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status, actingAdminID string) (*orders.Order, error)
}

type IdempotencyGuard interface {
	Claim(ctx context.Context, buyerID, key string) (redisx.ClaimState, string, error)
	Complete(ctx context.Context, buyerID, key, orderID string) error
	Release(ctx context.Context, buyerID, key string) error
}

type LineItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type PlaceOrderRequest struct {
	LineItems  []LineItemRequest `json:"line_items" validate:"required,min=1,dive"`
	TotalPrice *float64          `json:"total_price" validate:"required,gte=0"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrdersHandler struct {
	service  OrderService
	idem     IdempotencyGuard
	validate *validator.Validate
	timeout  time.Duration
}

// NewOrdersHandler wires the order routes. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewOrdersHandler(service OrderService, idem IdempotencyGuard, timeout time.Duration) *OrdersHandler {
	if timeout <= 0 {
		timeout = defaultOrderTimeout
	}
	return &OrdersHandler{
		service:  service,
		idem:     idem,
		validate: newValidator(),
		timeout:  timeout,
	}
}

func (h *OrdersHandler) RegisterRoutes(router chi.Router, authn func(http.Handler) http.Handler) {
	router.Route("/api/orders", func(r chi.Router) {
		r.Use(authn)
		r.With(RequireBuyer).Post("/", h.handlePlaceOrder)
		r.Get("/mine", h.handleMyOrders)
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/admin", h.handleAllOrders)
			r.Put("/admin/{id}", h.handleUpdateStatus)
		})
	})
}

// opContext detaches from client cancellation: once a placement starts, a
// dropped connection must not abort it halfway. The server-side timeout
// still bounds it.
func (h *OrdersHandler) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
}

func (h *OrdersHandler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req PlaceOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		respondWithError(w, http.StatusBadRequest, "idempotency key too long")
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	claimed := false
	if key != "" && h.idem != nil {
		state, orderID, err := h.idem.Claim(ctx, p.UserID, key)
		switch {
		case err != nil:
			// Redis is an optimisation here; place the order unguarded.
			log.Warn().Err(err).Str("buyer_id", p.UserID).Msg("http: idempotency claim failed")
		case state == redisx.InFlight:
			respondWithError(w, http.StatusConflict, "request in progress")
			return
		case state == redisx.Done:
			o, err := h.service.OrderByID(ctx, orderID)
			if err != nil {
				respondWithServiceError(w, err)
				return
			}
			respondWithJSON(w, http.StatusOK, o)
			return
		default:
			claimed = true
		}
	}

	in := orders.PlaceOrderInput{
		BuyerID:       p.UserID,
		LineItems:     make([]orders.LineItem, 0, len(req.LineItems)),
		DeclaredTotal: *req.TotalPrice,
	}
	for _, it := range req.LineItems {
		in.LineItems = append(in.LineItems, orders.LineItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.service.PlaceOrder(ctx, in)
	if err != nil {
		if claimed {
			h.releaseClaim(ctx, p.UserID, key, err)
		}
		respondWithServiceError(w, err)
		return
	}
	if claimed {
		if cerr := h.idem.Complete(ctx, p.UserID, key, o.ID); cerr != nil {
			log.Warn().Err(cerr).Str("order_id", o.ID).Msg("http: complete idempotency key")
		}
	}

	log.Debug().Str("order_id", o.ID).Str("request_id", middleware.GetReqID(r.Context())).Msg("http: order created")
	respondWithJSON(w, http.StatusCreated, o)
}

// releaseClaim frees the key unless the placement may have committed. A
// non-retryable storage failure can hide a commit whose reply was lost, so
// the claim is kept and expires with its pending TTL instead.
func (h *OrdersHandler) releaseClaim(ctx context.Context, buyerID, key string, cause error) {
	if errors.Is(cause, orders.ErrStorageFailure) && !orders.IsRetryable(cause) {
		log.Warn().Err(cause).Str("buyer_id", buyerID).Msg("http: placement outcome unknown, keeping idempotency claim")
		return
	}
	if err := h.idem.Release(ctx, buyerID, key); err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("http: release idempotency key")
	}
}

func (h *OrdersHandler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	ctx, cancel := h.opContext(r)
	defer cancel()

	list, err := h.service.OrdersByBuyer(ctx, p.UserID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.opContext(r)
	defer cancel()

	list, err := h.service.AllOrders(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	orderID := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	o, err := h.service.UpdateOrderStatus(ctx, orderID, status, p.UserID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}
