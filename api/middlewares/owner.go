package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cabinet/tool"
)

// OwnerHeader carries the authenticated principal id. Authentication itself
// is an upstream concern; by the time a request reaches this service the
// header holds a verified identity.
const OwnerHeader = "X-Cabinet-Owner"

// RequireOwner extracts the principal and pins it into the context. The id
// doubles as the sandbox directory name, so its charset is locked down here
// once instead of in every path computation.
func RequireOwner(c *gin.Context) {
	owner := c.GetHeader(OwnerHeader)
	if owner == "" || !validOwnerID(owner) {
		tool.DefaultLogger.Warnf("Rejected request without valid principal (remote=%s)", c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, tool.FastReturnError("Missing or invalid principal"))
		return
	}
	c.Set("owner", owner)
	c.Next()
}

func validOwnerID(s string) bool {
	if len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
