package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/sales-report/internal/common"
	"github.com/noah-isme/sales-report/internal/sales"
)

// Handler exposes sales report endpoints.
type Handler struct {
	Svc      *Service
	validate *validator.Validate
}

// NewHandler builds a Handler whose validation errors use JSON field names.
func NewHandler(svc *Service) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Svc: svc, validate: v}
}

// Routes mounts the report endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sales", h.Sales)
	r.Post("/sales/revenue", h.Revenue)
	r.Get("/strategies", h.Strategies)
}

type reportMeta struct {
	ReportID    string    `json:"report_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Cached      bool      `json:"cached"`
	Sellers     int       `json:"sellers"`
}

type revenueRequest struct {
	Item    sales.LineItem `json:"item"`
	Product sales.Product  `json:"product"`
}

// FieldError describes a payload field that failed validation.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Sales analyses the posted dataset and returns the ranked seller report.
func (h *Handler) Sales(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORT_NOT_CONFIGURED", "report service not configured", nil)
		return
	}
	var dataset sales.Dataset
	if !h.decode(w, r, &dataset) {
		return
	}
	res, err := h.Svc.Generate(r.Context(), &dataset)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, res.Sellers, reportMeta{
		ReportID:    res.ID,
		GeneratedAt: res.GeneratedAt,
		Cached:      res.Cached,
		Sellers:     len(res.Sellers),
	})
}

// Revenue evaluates the revenue calculator for one line item without rounding.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORT_NOT_CONFIGURED", "report service not configured", nil)
		return
	}
	var req revenueRequest
	if !h.decode(w, r, &req) {
		return
	}
	revenue, err := h.Svc.Revenue(req.Item, req.Product)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]float64{"revenue": revenue}, nil)
}

// Strategies lists the configured calculators.
func (h *Handler) Strategies(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "REPORT_NOT_CONFIGURED", "report service not configured", nil)
		return
	}
	common.JSONData(w, http.StatusOK, h.Svc.Strategies(), nil)
}

// decode reads and validates the JSON body into dst, writing the error response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return false
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "payload failed validation", fieldErrors(verrs))
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		// drop the root struct name
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out = append(out, FieldError{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}
