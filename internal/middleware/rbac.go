package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kua-dukcapil/workflow-api/internal/models"
	appErrors "github.com/kua-dukcapil/workflow-api/pkg/errors"
	"github.com/kua-dukcapil/workflow-api/pkg/response"
)

// RequireRoles enforces role-based access control for a route group.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireOperatorClass admits operators and verifiers: verifiers share
// the data-entry stage under the unified-interface policy.
func RequireOperatorClass() gin.HandlerFunc {
	return RequireRoles(models.RoleOperator, models.RoleVerifier)
}
