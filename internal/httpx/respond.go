package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/storefront-orders/internal/orders"
)

type ErrorResponse struct {
	Error      string            `json:"error"`
	Shortages  []orders.Shortage `json:"shortages,omitempty"`
	ProductIDs []string          `json:"product_ids,omitempty"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("http: marshal response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("http: write response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrProductNotFound), errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, orders.ErrStorageFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError renders a domain error. Storage details stay in the
// log; the client only learns the service is unavailable.
func respondWithServiceError(w http.ResponseWriter, err error) {
	code := mapErrorToStatusCode(err)
	resp := ErrorResponse{Error: err.Error()}

	var shortage *orders.InsufficientStockError
	var missing *orders.ProductNotFoundError
	switch {
	case errors.As(err, &shortage):
		resp.Error = orders.ErrInsufficientStock.Error()
		resp.Shortages = shortage.Shortages
	case errors.As(err, &missing):
		resp.ProductIDs = missing.ProductIDs
	case code == http.StatusServiceUnavailable:
		resp.Error = "storage temporarily unavailable"
	case code == http.StatusInternalServerError:
		resp.Error = "internal error"
	}
	respondWithJSON(w, code, resp)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body with unknown fields rejected and runs
// struct validation. It writes the 400 response itself and reports false on
// failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("http: invalid request body")
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}

	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "validation failed",
				Details: formatValidationErrors(verrs),
			})
			return false
		}
		log.Error().Err(err).Msg("http: unexpected validation error")
		respondWithError(w, http.StatusInternalServerError, "internal validation error")
		return false
	}
	return true
}

// formatValidationErrors keys each failed rule by its JSON path without the
// top-level struct name, e.g. "line_items[0].quantity": "min".
func formatValidationErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[field] = rule
	}
	return out
}
