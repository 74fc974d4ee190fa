package httpapi

import (
	"net/http"

	"genfity-floor-services/internal/config"
	"genfity-floor-services/internal/http/handlers"
	"genfity-floor-services/internal/middleware"
	"genfity-floor-services/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func NewRouter(h *handlers.Handler, logger *zap.Logger, cfg config.Config, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(logger))

	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"Idempotency-Key",
				"X-Request-Id",
				"X-Requested-With",
				"Cache-Control",
			},
			ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}

		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}

		r.Use(cors.Handler(options))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.StaffAuth(cfg.JWTSecret))

		r.Get("/tables", h.TablesList)
		r.Post("/tables", h.TableCreate)
		r.Get("/tables/{tableId}", h.TableDetail)
		r.Delete("/tables/{tableId}", h.TableDelete)
		r.Put("/tables/{tableId}/status", h.TableStatusUpdate)

		r.Get("/table-groups", h.TableGroupsList)
		r.Post("/table-groups", h.TableGroupMerge)
		r.Get("/table-groups/{groupId}", h.TableGroupDetail)
		r.Delete("/table-groups/{groupId}", h.TableGroupDisband)

		r.Get("/carts/{identity}", h.CartGet)
		r.Delete("/carts/{identity}", h.CartClear)
		r.Post("/carts/{identity}/items", h.CartAddItem)
		r.Put("/carts/{identity}/items/{kind}/{itemId}", h.CartUpdateItem)
		r.Delete("/carts/{identity}/items/{kind}/{itemId}", h.CartRemoveItem)
		r.Post("/carts/{identity}/submit", h.CartSubmit)

		r.Get("/orders", h.OrdersList)
		r.Post("/orders", h.OrderCreate)
		r.Get("/orders/{orderId}", h.OrderDetail)
		r.Post("/orders/{orderId}/settle", h.OrderSettle)

		r.Get("/kitchen/queue", h.KitchenQueue)
		r.Post("/kitchen/lines/{lineId}/accept", h.KitchenAccept)
		r.Post("/kitchen/lines/{lineId}/complete", h.KitchenComplete)
		r.Get("/kitchen/orders/{orderId}/ticket", h.KitchenTicket)
	})

	if wsServer != nil {
		r.Get("/ws/floor", wsServer.FloorWS)
	}

	return r
}
