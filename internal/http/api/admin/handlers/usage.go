package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// UsageTotals sums recorded usage of an admin.
type UsageTotals interface {
	Totals(ctx context.Context, adminID uint64, since time.Time) (int64, int64, error)
}

// UsageHandler reports token usage of an admin.
type UsageHandler struct {
	usage UsageTotals
	now   func() time.Time
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(usage UsageTotals) *UsageHandler {
	return &UsageHandler{usage: usage, now: time.Now}
}

// Summary returns request and token totals over the last ?days (default 30).
func (h *UsageHandler) Summary(c *gin.Context) {
	days := 30
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 || parsed > 366 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}
	since := h.now().UTC().AddDate(0, 0, -days)
	requests, tokens, errTotals := h.usage.Totals(c.Request.Context(), adminIDFrom(c), since)
	if errTotals != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "usage summary failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "since": since, "requests": requests, "total_tokens": tokens})
}
