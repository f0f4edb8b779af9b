package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/models"
	"github.com/ksred/plansmart/internal/utils"
)

// CreateReminderRequest sets a reminder for a new task described by
// Description, or for an existing task when TaskID is set
type CreateReminderRequest struct {
	Description string `json:"description,omitempty" example:"Call the dentist"`
	TaskID      uint   `json:"task_id,omitempty"`
	Time        string `json:"time" example:"2025-03-10T15:00:00"`
}

// listRemindersHandler godoc
// @Summary List reminders
// @Tags reminders
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, sent, cancelled or missed"
// @Success 200 {object} ListResponse
// @Failure 400 {object} ErrorResponse
// @Router /reminders [get]
func (s *Server) listRemindersHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	reminders, err := s.svc.Reminders.List(c.Request.Context(), user.ID, c.Query("status"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: reminders, Count: len(reminders)})
}

// createReminderHandler godoc
// @Summary Schedule reminder
// @Tags reminders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateReminderRequest true "Reminder"
// @Success 201 {object} models.Reminder
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /reminders [post]
func (s *Server) createReminderHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Time) == "" {
		s.respondError(c, utils.RequiredFieldError("time"))
		return
	}
	at, err := s.parseTime("time", req.Time)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var reminder *models.Reminder
	if req.TaskID != 0 {
		reminder, err = s.svc.Reminders.ScheduleForTask(c.Request.Context(), user.ID, req.TaskID, at)
	} else {
		reminder, err = s.svc.Reminders.ScheduleReminder(c.Request.Context(), user.ID, req.Description, at)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reminder)
}

// cancelReminderHandler godoc
// @Summary Cancel reminder
// @Tags reminders
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reminder ID"
// @Success 200 {object} models.Reminder
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /reminders/{id} [delete]
func (s *Server) cancelReminderHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	reminder, err := s.svc.Reminders.Cancel(c.Request.Context(), user.ID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminder)
}
