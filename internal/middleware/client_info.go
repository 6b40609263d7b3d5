package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/smarttransit/seat-booking-engine/internal/services"
	"github.com/smarttransit/seat-booking-engine/internal/utils"
)

// ClientInfo attaches the caller's real IP and user agent to the request
// context so audit records can pick them up.
func ClientInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := services.ContextWithClient(c.Request.Context(), utils.GetRealIP(c), utils.GetUserAgent(c))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
