package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/models"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required" example:"moyo"`
	Password string `json:"password" binding:"required" example:"Demo@123"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"moyo"`
	Password string `json:"password" binding:"required" example:"Demo@123"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

type UserInfo struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	IsGuest  bool   `json:"is_guest"`
}

// MeResponse is returned by the session check
type MeResponse struct {
	Authenticated bool     `json:"authenticated"`
	AuthType      string   `json:"auth_type"`
	User          UserInfo `json:"user"`
}

type CreateAPIKeyRequest struct {
	Name      string     `json:"name" binding:"required" example:"Phone shortcut"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" example:"2026-12-31T23:59:59Z"`
}

type APIKeyResponse struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Key         string     `json:"key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	Permissions []string   `json:"permissions"`
}

func userInfo(u *models.User) UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, IsGuest: u.IsGuest}
}

// logActivity records an activity with the caller's address. Failures are
// logged by the activity service and never fail the request.
func (s *Server) logActivity(c *gin.Context, userID uint, activityType string, details map[string]interface{}) {
	_ = s.svc.Activity.LogActivity(c.Request.Context(), userID, activityType, details, c.ClientIP(), c.GetHeader("User-Agent"))
}

// registerHandler godoc
// @Summary Register a new user
// @Description Create a new user account. Also served at /auth/signup.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} UserInfo
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (s *Server) registerHandler(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := s.authService.RegisterUser(req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userInfo(user))
}

// loginHandler godoc
// @Summary Login user
// @Description Authenticate and receive a session token, also set as a cookie
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *Server) loginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := s.authService.AuthenticateUser(req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.startSession(c, user, models.ActivityLogin, http.StatusOK)
}

// guestHandler godoc
// @Summary Start a guest session
// @Description Create a throwaway guest account and log it in
// @Tags auth
// @Produce json
// @Success 201 {object} LoginResponse
// @Router /auth/guest [post]
func (s *Server) guestHandler(c *gin.Context) {
	user, err := s.authService.CreateGuest()
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.startSession(c, user, models.ActivityGuestLogin, http.StatusCreated)
}

func (s *Server) startSession(c *gin.Context, user *models.User, activityType string, status int) {
	token, expiresAt, err := s.authService.GenerateToken(user)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.JWT.CookieName, token, int(time.Until(expiresAt).Seconds()), "/", "", false, true)

	s.logActivity(c, user.ID, activityType, map[string]interface{}{"username": user.Username})

	c.JSON(status, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      userInfo(user),
	})
}

// logoutHandler godoc
// @Summary Logout
// @Description Clear the session cookie. Bearer tokens stay valid until they expire.
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *Server) logoutHandler(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.config.JWT.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// meHandler godoc
// @Summary Current user
// @Description Return the authenticated user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MeResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/me [get]
func (s *Server) meHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		Authenticated: true,
		AuthType:      getAuthType(c),
		User:          userInfo(user),
	})
}

// listAPIKeysHandler godoc
// @Summary List API keys
// @Description Get all API keys for the authenticated user
// @Tags keys
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} APIKeyResponse
// @Failure 401 {object} ErrorResponse
// @Router /keys [get]
func (s *Server) listAPIKeysHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	keys, err := s.authService.ListUserAPIKeys(user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	response := make([]APIKeyResponse, len(keys))
	for i, key := range keys {
		response[i] = APIKeyResponse{
			ID:          key.ID,
			Name:        key.Name,
			CreatedAt:   key.CreatedAt,
			ExpiresAt:   key.ExpiresAt,
			LastUsedAt:  key.LastUsedAt,
			IsActive:    key.IsActive,
			Permissions: key.GetPermissions(),
		}
	}

	c.JSON(http.StatusOK, response)
}

// createAPIKeyHandler godoc
// @Summary Create API key
// @Description Create a new API key. The key is only returned once.
// @Tags keys
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body CreateAPIKeyRequest true "API key details"
// @Success 201 {object} APIKeyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /keys [post]
func (s *Server) createAPIKeyHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	apiKey, err := s.authService.GenerateAPIKey(user.ID, req.Name, req.ExpiresAt)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.logActivity(c, user.ID, models.ActivityAPIKeyCreated, map[string]interface{}{
		"name":       apiKey.Name,
		"api_key_id": apiKey.ID,
	})

	c.JSON(http.StatusCreated, APIKeyResponse{
		ID:          apiKey.ID,
		Name:        apiKey.Name,
		Key:         apiKey.Key,
		CreatedAt:   apiKey.CreatedAt,
		ExpiresAt:   apiKey.ExpiresAt,
		IsActive:    apiKey.IsActive,
		Permissions: apiKey.GetPermissions(),
	})
}

// deleteAPIKeyHandler godoc
// @Summary Delete API key
// @Description Delete an API key
// @Tags keys
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "API key ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /keys/{id} [delete]
func (s *Server) deleteAPIKeyHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	keyID, ok := pathID(c)
	if !ok {
		return
	}

	key, err := s.authService.DeleteAPIKey(user.ID, keyID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.logActivity(c, user.ID, models.ActivityAPIKeyDeleted, map[string]interface{}{
		"api_key_id": key.ID,
		"name":       key.Name,
	})

	c.Status(http.StatusNoContent)
}

// pathID parses the :id path parameter or writes a 400
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}
