package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/KanavDutta/keyfence/gate"
)

// GinKeyInfo is the gin context key holding gate.Info for admitted requests.
const GinKeyInfo = "keyfence.key"

// Gin returns the admission middleware as a gin handler.
func (a *Admission) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		admitted, ok := a.admit(c.Writer, c.Request)
		if !ok {
			c.Abort()
			return
		}
		c.Request = admitted
		if info, ok := gate.FromContext(admitted.Context()); ok {
			c.Set(GinKeyInfo, info)
		}
		c.Next()
	}
}

// GinRequireScope is RequireScope for gin routers.
func GinRequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !checkScope(c.Writer, c.Request, scope) {
			c.Abort()
			return
		}
		c.Next()
	}
}
