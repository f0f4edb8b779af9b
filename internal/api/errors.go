package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/utils"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error" example:"description is required"`
}

// statusFor maps service errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case utils.IsNotFoundError(err):
		return http.StatusNotFound
	case utils.IsConflictError(err):
		return http.StatusConflict
	case utils.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server errors are logged
// and their details kept out of the response.
func (s *Server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.requestLogger(c).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		msg := "internal server error"
		if utils.IsDatabaseError(err) {
			msg = utils.PublicMessage(err)
		}
		c.JSON(status, ErrorResponse{Error: msg})
		return
	}
	c.JSON(status, ErrorResponse{Error: utils.PublicMessage(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
