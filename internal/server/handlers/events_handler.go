package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

// Events streams the live view state of a bill as server-sent events until
// the client disconnects.
func (h *BillHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	billID := c.Param("id")

	if _, err := h.ledger.Get(ctx, billID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	session, err := h.controller.Open(ctx, billID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer session.Close()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	h.logger.Debug("event stream opened", zap.String("bill_id", billID))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case state, ok := <-session.Updates():
			if !ok {
				return false
			}
			c.SSEvent("state", state)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
	h.logger.Debug("event stream closed", zap.String("bill_id", billID))
}
