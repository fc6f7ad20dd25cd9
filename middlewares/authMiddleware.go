package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and stamps the tenant and actor
// onto the request context. Every downstream query is scoped by the
// business id set here.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		validated, err := utils.JwtValidate(token)
		if err != nil || !validated.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claims, ok := validated.Claims.(*utils.JwtCustomClaim)
		if !ok || claims.BusinessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), claims.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetUserNameInContext(ctx, claims.Name)
		ctx = utils.SetIsAdminInContext(ctx, claims.Role == "A" || claims.Role == "O")
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireManager gates the override endpoints: only owners, admins and
// managers may bypass a gate or force-release a holdback.
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		switch role {
		case "A", "O", "M":
			c.Next()
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "manager role required"})
			c.Abort()
		}
	}
}
