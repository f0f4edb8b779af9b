package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/services"
	"github.com/ksred/plansmart/internal/utils"
)

type CreateScheduleRequest struct {
	Title       string `json:"title" example:"Sprint Planning"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time" example:"2025-03-10T10:00:00"`
	EndTime     string `json:"end_time,omitempty" example:"2025-03-10T11:00:00"`
}

// UpdateScheduleRequest changes only the fields that are present
type UpdateScheduleRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
}

// listSchedulesHandler godoc
// @Summary List schedules
// @Description List all schedules, or those on one day when date is given
// @Tags schedules
// @Produce json
// @Security BearerAuth
// @Param date query string false "YYYY-MM-DD or today"
// @Success 200 {object} ListResponse
// @Failure 400 {object} ErrorResponse
// @Router /schedules [get]
func (s *Server) listSchedulesHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	date := strings.ToLower(strings.TrimSpace(c.Query("date")))
	if date == "" {
		schedules, err := s.svc.Schedules.List(ctx, user.ID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ListResponse{Items: schedules, Count: len(schedules)})
		return
	}

	loc := s.svc.Assistant.Location()
	day := s.now().In(loc)
	if date != "today" {
		parsed, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD or 'today'")
			return
		}
		day = parsed
	}

	schedules, err := s.svc.Schedules.ListForDay(ctx, user.ID, day)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: schedules, Count: len(schedules)})
}

// createScheduleHandler godoc
// @Summary Create schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateScheduleRequest true "Schedule"
// @Success 201 {object} models.Schedule
// @Failure 400 {object} ErrorResponse
// @Router /schedules [post]
func (s *Server) createScheduleHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.StartTime) == "" {
		s.respondError(c, utils.RequiredFieldError("start_time"))
		return
	}

	start, err := s.parseTime("start_time", req.StartTime)
	if err != nil {
		s.respondError(c, err)
		return
	}
	end, err := s.optionalTime("end_time", req.EndTime)
	if err != nil {
		s.respondError(c, err)
		return
	}

	schedule, err := s.svc.Schedules.Create(c.Request.Context(), user.ID, services.CreateScheduleInput{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

// updateScheduleHandler godoc
// @Summary Update schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Schedule ID"
// @Param request body UpdateScheduleRequest true "Fields to change"
// @Success 200 {object} models.Schedule
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /schedules/{id} [put]
func (s *Server) updateScheduleHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	input := services.UpdateScheduleInput{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.StartTime != nil {
		start, err := s.parseTime("start_time", *req.StartTime)
		if err != nil {
			s.respondError(c, err)
			return
		}
		input.StartTime = &start
	}
	if req.EndTime != nil {
		end, err := s.parseTime("end_time", *req.EndTime)
		if err != nil {
			s.respondError(c, err)
			return
		}
		input.EndTime = &end
	}

	schedule, err := s.svc.Schedules.Update(c.Request.Context(), user.ID, id, input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// markScheduleDoneHandler godoc
// @Summary Complete schedule
// @Description Mark a schedule done along with the open tasks that mention it
// @Tags schedules
// @Produce json
// @Security BearerAuth
// @Param id path int true "Schedule ID"
// @Success 200 {object} services.ScheduleDoneResult
// @Failure 404 {object} ErrorResponse
// @Router /schedules/{id}/done [put]
func (s *Server) markScheduleDoneHandler(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := s.svc.Schedules.MarkDone(c.Request.Context(), user.ID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
