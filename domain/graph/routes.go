package graph

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers knowledge graph routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/graph")

	// Nodes
	g.POST("/nodes", h.CreateNode)
	g.GET("/nodes/:id", h.GetNode)
	g.PATCH("/nodes/:id", h.UpdateNode)
	g.DELETE("/nodes/:id", h.DeleteNode)

	// Relations
	g.POST("/relations", h.CreateRelation)
	g.GET("/relations/:id", h.GetRelation)
	g.PATCH("/relations/:id", h.UpdateRelation)
	g.DELETE("/relations/:id", h.DeleteRelation)

	// Queries
	g.GET("/search", h.Search)
	g.GET("/path", h.FindPath)
	g.GET("/stats", h.Stats)
}
