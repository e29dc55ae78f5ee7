package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/noeticlabs/noetic-server/internal/config"
)

// MetricsHandler answers questions about the graph mirror outbox.
type MetricsHandler struct {
	db          bun.IDB
	maxAttempts int
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(db bun.IDB, cfg *config.Config) *MetricsHandler {
	return &MetricsHandler{
		db:          db,
		maxAttempts: cfg.Outbox.MaxAttempts,
	}
}

// OutboxMetrics summarizes the graph_outbox queue. A growing pending count
// means the graph store is unreachable or falling behind; exhausted entries
// need manual replay.
type OutboxMetrics struct {
	Pending    int64  `json:"pending"`
	Applied    int64  `json:"applied"`
	Exhausted  int64  `json:"exhausted"`
	LastHour   int64  `json:"last_hour"`
	OldestWait string `json:"oldest_wait,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// OutboxMetrics returns the current mirror queue depth
// GET /api/metrics/outbox
func (h *MetricsHandler) OutboxMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE applied_at IS NULL AND attempts < ?) as pending,
			COUNT(*) FILTER (WHERE applied_at IS NOT NULL) as applied,
			COUNT(*) FILTER (WHERE applied_at IS NULL AND attempts >= ?) as exhausted,
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '1 hour') as last_hour,
			MIN(created_at) FILTER (WHERE applied_at IS NULL) as oldest_pending
		FROM graph_outbox`

	var row struct {
		Pending       int64      `bun:"pending"`
		Applied       int64      `bun:"applied"`
		Exhausted     int64      `bun:"exhausted"`
		LastHour      int64      `bun:"last_hour"`
		OldestPending *time.Time `bun:"oldest_pending"`
	}

	if err := h.db.NewRaw(query, h.maxAttempts, h.maxAttempts).Scan(ctx, &row); err != nil {
		return err
	}

	metrics := OutboxMetrics{
		Pending:   row.Pending,
		Applied:   row.Applied,
		Exhausted: row.Exhausted,
		LastHour:  row.LastHour,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if row.OldestPending != nil {
		metrics.OldestWait = time.Since(*row.OldestPending).Round(time.Second).String()
	}

	return c.JSON(http.StatusOK, metrics)
}
