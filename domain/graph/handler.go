package graph

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/noeticlabs/noetic-server/pkg/apperror"
)

// OwnerHeader carries the acting user's ID. Authentication happens upstream
// at the gateway; this service trusts the forwarded identity.
const OwnerHeader = "X-User-ID"

// Handler handles HTTP requests for the knowledge graph
type Handler struct {
	svc *Service
}

// NewHandler creates a new graph handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func ownerID(c echo.Context) (string, error) {
	owner := c.Request().Header.Get(OwnerHeader)
	if owner == "" {
		return "", apperror.NewBadRequest("X-User-ID header is required")
	}
	return owner, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.NewBadRequest("invalid " + name)
	}
	return id, nil
}

// CreateNode creates a knowledge node
// POST /api/graph/nodes
func (h *Handler) CreateNode(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	var in CreateNodeInput
	if err := c.Bind(&in); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	in.OwnerID = owner

	node, err := h.svc.CreateNode(c.Request().Context(), &in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, node)
}

// GetNode returns a node by ID
// GET /api/graph/nodes/:id
func (h *Handler) GetNode(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	node, err := h.svc.GetNode(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, node)
}

// UpdateNode applies a partial update to a node. The body must carry the
// version the caller last read; a stale version is rejected with 409.
// PATCH /api/graph/nodes/:id
func (h *Handler) UpdateNode(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var in UpdateNodeInput
	if err := c.Bind(&in); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	node, err := h.svc.UpdateNode(c.Request().Context(), id, &in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, node)
}

// DeleteNode soft-deletes a node and its relations
// DELETE /api/graph/nodes/:id
func (h *Handler) DeleteNode(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.DeleteNode(c.Request().Context(), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// CreateRelation creates a semantic relation between two nodes
// POST /api/graph/relations
func (h *Handler) CreateRelation(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	var in CreateRelationInput
	if err := c.Bind(&in); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}
	in.OwnerID = owner

	rel, err := h.svc.CreateRelation(c.Request().Context(), &in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, rel)
}

// GetRelation returns a relation by ID
// GET /api/graph/relations/:id
func (h *Handler) GetRelation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	rel, err := h.svc.GetRelation(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rel)
}

// UpdateRelation applies a partial update to a relation
// PATCH /api/graph/relations/:id
func (h *Handler) UpdateRelation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var in UpdateRelationInput
	if err := c.Bind(&in); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid request body")
	}

	rel, err := h.svc.UpdateRelation(c.Request().Context(), id, &in)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rel)
}

// DeleteRelation soft-deletes a relation
// DELETE /api/graph/relations/:id
func (h *Handler) DeleteRelation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.svc.DeleteRelation(c.Request().Context(), id); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// Search pages through the caller's nodes with their relations
// GET /api/graph/search
// Query params: limit (1-100, default 20), offset
func (h *Handler) Search(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	result, err := h.svc.SearchNodes(c.Request().Context(), owner, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// FindPath returns candidate paths between two nodes, cheapest first
// GET /api/graph/path
// Query params: from, to (node UUIDs), maxDepth (optional)
func (h *Handler) FindPath(c echo.Context) error {
	fromID, err := uuid.Parse(c.QueryParam("from"))
	if err != nil {
		return apperror.NewBadRequest("invalid from node ID")
	}
	toID, err := uuid.Parse(c.QueryParam("to"))
	if err != nil {
		return apperror.NewBadRequest("invalid to node ID")
	}
	maxDepth, _ := strconv.Atoi(c.QueryParam("maxDepth"))

	paths, err := h.svc.FindPath(c.Request().Context(), fromID, toID, maxDepth)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"paths": paths})
}

// Stats returns counts and connectivity for the caller's graph
// GET /api/graph/stats
func (h *Handler) Stats(c echo.Context) error {
	owner, err := ownerID(c)
	if err != nil {
		return err
	}

	stats, err := h.svc.GetStats(c.Request().Context(), owner)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
