package middleware

import (
	"strings"

	"fms/internal/server/service"
	"fms/pkg/errors"
	"fms/pkg/utils/logger"
	"fms/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// AuthPolicy restricts a route group.
type AuthPolicy struct {
	// Roles, when set, lists the roles allowed through.
	Roles []string
	// SelfParam names a path parameter that must equal the caller's user
	// unless the caller is an admin.
	SelfParam string
}

// AuthMiddleware enforces bearer-token validation and the policy.
func AuthMiddleware(auth *service.AuthService, policy AuthPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			response.AbortWithError(c, errors.New(errors.ServiceUnavailable).WithMessage("auth service unavailable"))
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		if len(policy.Roles) > 0 && !hasRole(principal.Role, policy.Roles) {
			response.AbortWithError(c, errors.ForbiddenError("insufficient role"))
			return
		}
		if policy.SelfParam != "" && !principal.CanActFor(c.Param(policy.SelfParam)) {
			response.AbortWithError(c, errors.ForbiddenError("token does not grant access to this account"))
			return
		}

		c.Set(principalContextKey, principal)
		c.Request = c.Request.WithContext(logger.WithUser(c.Request.Context(), principal.User))
		c.Next()
	}
}

// PrincipalFrom returns the caller set by AuthMiddleware. It reports false
// when the route runs without authentication.
func PrincipalFrom(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
