package sales

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/platform/money"
)

// ServicePort defines the sale operations the handler depends on.
type ServicePort interface {
	InsertSale(ctx context.Context, req CreateSaleRequest) (Sale, error)
	UpdateSale(ctx context.Context, id int64, req UpdateSaleRequest) (Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, error)
	GetTotalSales(ctx context.Context) (decimal.Decimal, error)
	GetTotalSalesByProduct(ctx context.Context, productID int64) (decimal.Decimal, error)
	WatchTotalSales(ctx context.Context) (<-chan decimal.Decimal, error)
	WatchTotalSalesByProduct(ctx context.Context, productID int64) (<-chan decimal.Decimal, error)
	WatchSales(ctx context.Context, filter ListFilter) (<-chan []Sale, error)
}

// Handler manages sales endpoints.
type Handler struct {
	logger  *slog.Logger
	service ServicePort
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createSale)
	r.Put("/{id}", h.updateSale)
	r.Delete("/{id}", h.deleteSale)
	r.Get("/total", h.totalSales)
	r.Get("/total/watch", h.watchTotalSales)
	r.Get("/by-product/{productID}", h.listSales)
	r.Get("/by-product/{productID}/watch", h.watchSales)
	r.Get("/by-product/{productID}/total", h.totalSalesByProduct)
	r.Get("/by-product/{productID}/total/watch", h.watchTotalSalesByProduct)
}

// SaleResponse decorates a sale with display strings.
type SaleResponse struct {
	Sale
	TotalDisplay string `json:"total_display"`
}

// TotalResponse reports an aggregate revenue figure.
type TotalResponse struct {
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
}

func toResponse(s Sale) SaleResponse {
	return SaleResponse{Sale: s, TotalDisplay: money.Format(s.Total)}
}

func toResponses(sales []Sale) []SaleResponse {
	out := make([]SaleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, toResponse(s))
	}
	return out
}

func toTotalResponse(total decimal.Decimal) TotalResponse {
	return TotalResponse{Total: total, TotalDisplay: money.Format(total)}
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	sale, err := h.service.InsertSale(r.Context(), req)
	if err != nil {
		h.logger.Error("create sale", slog.Any("error", err), slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(sale))
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req UpdateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	sale, err := h.service.UpdateSale(r.Context(), id, req)
	if err != nil {
		h.logger.Error("update sale", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(sale))
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseParam(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteSale(r.Context(), id); err != nil {
		h.logger.Error("delete sale", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	sales, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(sales))
}

func (h *Handler) totalSales(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.GetTotalSales(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTotalResponse(total))
}

func (h *Handler) totalSalesByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := parseParam(r, "productID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	total, err := h.service.GetTotalSalesByProduct(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTotalResponse(total))
}

func (h *Handler) watchTotalSales(w http.ResponseWriter, r *http.Request) {
	stream, err := h.service.WatchTotalSales(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.StreamEvents(w, h.logger, func() (any, bool) {
		total, ok := <-stream
		return toTotalResponse(total), ok
	})
}

func (h *Handler) watchTotalSalesByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := parseParam(r, "productID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	stream, err := h.service.WatchTotalSalesByProduct(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.StreamEvents(w, h.logger, func() (any, bool) {
		total, ok := <-stream
		return toTotalResponse(total), ok
	})
}

func (h *Handler) watchSales(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	stream, err := h.service.WatchSales(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.StreamEvents(w, h.logger, func() (any, bool) {
		sales, ok := <-stream
		return toResponses(sales), ok
	})
}

func parseFilter(r *http.Request) (ListFilter, error) {
	productID, err := parseParam(r, "productID")
	if err != nil {
		return ListFilter{}, err
	}
	q := r.URL.Query()
	return ListFilter{
		ProductID: productID,
		StartDate: q.Get("start"),
		EndDate:   q.Get("end"),
	}, nil
}

func parseParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
