package orders

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bookstore/internal/app/orders"
)

func RegisterRoutes(r chi.Router, s orders.OrderService, st StatusOperations, l *zap.Logger) {
	handler := NewOrderHandler(s, st, l.With(zap.String("component", "OrderHTTPHandler")))

	r.Route("/orders", func(r chi.Router) {
		r.Get("/{orderID}", handler.GetOrder)
		r.Post("/{orderID}/cancel", handler.CancelOrder)
		r.Post("/{orderID}/ship", handler.ShipOrder)
		r.Post("/{orderID}/deliver", handler.DeliverOrder)
	})
}
