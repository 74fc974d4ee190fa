package handlers

import (
	"genfity-floor-services/internal/config"
	"genfity-floor-services/internal/floor"
	"genfity-floor-services/internal/tickets"

	"go.uber.org/zap"
)

type Handler struct {
	Registry    *floor.Registry
	Coordinator *floor.Coordinator
	Carts       *floor.CartStore
	Lifecycle   *floor.Lifecycle
	Tickets     *tickets.Service
	Logger      *zap.Logger
	Config      config.Config
}
