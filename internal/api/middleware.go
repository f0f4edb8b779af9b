package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/models"
)

const (
	authTypeBearer = "bearer"
	authTypeAPIKey = "apikey"
	authTypeCookie = "cookie"
	userContextKey = "user"
	authTypeKey    = "auth_type"
)

// authMiddleware accepts an X-API-Key header, a bearer token, or the
// session cookie set at login, in that order
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			apiKeyObj, err := s.authService.ValidateAPIKey(apiKey)
			if err != nil {
				s.abortUnauthorized(c, err)
				return
			}

			c.Set(userContextKey, &apiKeyObj.User)
			c.Set(authTypeKey, authTypeAPIKey)
			c.Set("api_key", apiKeyObj)
			c.Next()
			return
		}

		tokenString, authType := "", ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization format"})
				return
			}
			tokenString, authType = parts[1], authTypeBearer
		} else if cookie, err := c.Cookie(s.config.JWT.CookieName); err == nil && cookie != "" {
			tokenString, authType = cookie, authTypeCookie
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
			return
		}

		user, err := s.authService.UserFromToken(tokenString)
		if err != nil {
			s.abortUnauthorized(c, err)
			return
		}

		c.Set(userContextKey, user)
		c.Set(authTypeKey, authType)
		c.Next()
	}
}

func (s *Server) abortUnauthorized(c *gin.Context, err error) {
	if statusFor(err) == http.StatusUnauthorized {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	}
	s.respondError(c, err)
	c.Abort()
}

func getUserFromContext(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}

	u, ok := user.(*models.User)
	return u, ok
}

// currentUser returns the authenticated user or writes a 401
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	return user, ok
}

func getAuthType(c *gin.Context) string {
	authType, _ := c.Get(authTypeKey)
	t, _ := authType.(string)
	return t
}
