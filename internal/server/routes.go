package server

import (
	"github.com/graphora-ai/graphora/internal/server/middleware"
	"github.com/graphora-ai/graphora/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Consistency checker routes
	apiRoutes.GET("/:graphname/:method/consistency_status", routes.GetConsistencyStatusHandler)
	apiRoutes.POST("/:graphname/:method/run", routes.PostRunHandler)
}
