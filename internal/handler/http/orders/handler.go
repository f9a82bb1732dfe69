package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bookstore/internal/app/orders"
	"bookstore/internal/app/status"
	"bookstore/internal/domain"
)

type StatusOperations interface {
	CancelOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ShipOrder(ctx context.Context, orderID string) (*orders.Order, error)
	DeliverOrder(ctx context.Context, orderID string) (*orders.Order, error)
}

type OrderHandler struct {
	service orders.OrderService
	status  StatusOperations
	logger  *zap.Logger
}

func NewOrderHandler(s orders.OrderService, st StatusOperations, l *zap.Logger) *OrderHandler {
	return &OrderHandler{service: s, status: st, logger: l}
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		h.logger.Warn("Order ID is missing in GetOrder request")
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.logger.Error("Error getting order", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if res == nil {
		h.logger.Info("Order not found", zap.String("order_id", orderID))
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "cancel", h.status.CancelOrder)
}

func (h *OrderHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "ship", h.status.ShipOrder)
}

func (h *OrderHandler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "deliver", h.status.DeliverOrder)
}

func (h *OrderHandler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, orderID string) (*orders.Order, error),
) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	res, err := apply(r.Context(), orderID)
	if err != nil {
		var invalid *status.InvalidTransitionError
		switch {
		case errors.As(err, &invalid):
			h.logger.Info("Rejected order status change",
				zap.String("operation", op),
				zap.String("order_id", orderID),
				zap.Error(err))
			http.Error(w, invalid.Error(), http.StatusConflict)
		case errors.Is(err, domain.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		default:
			h.logger.Error("Error changing order status",
				zap.String("operation", op),
				zap.String("order_id", orderID),
				zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
