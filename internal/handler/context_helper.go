package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kua-dukcapil/workflow-api/internal/middleware"
	"github.com/kua-dukcapil/workflow-api/internal/models"
	"github.com/kua-dukcapil/workflow-api/internal/workflow"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (workflow.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return workflow.Actor{}, false
	}
	return workflow.Actor{
		ID:   claims.UserID,
		Name: claims.FullName,
		Role: claims.Role,
	}, true
}

func pageFromQuery(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
